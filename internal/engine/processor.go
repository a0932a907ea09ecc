// Package engine drives composite scripts over a tile the way an
// orbit-mosaicking raster engine does.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/orbit-composite/internal/composite"
	"github.com/robert-malhotra/orbit-composite/internal/metrics"
)

var (
	// ErrNoOrbits is returned when no orbit is left to process.
	ErrNoOrbits = errors.New("no orbits to process")

	// ErrPixelMismatch is returned when orbits carry different pixel counts.
	ErrPixelMismatch = errors.New("orbits disagree on pixel count")

	// ErrOutputShape is returned when a script's pixel output does not match
	// its declared outputs.
	ErrOutputShape = errors.New("pixel output does not match declared outputs")
)

// TileRequest is one tile to process.
type TileRequest struct {
	Tile          string                  `json:"tile"`
	Orbits        []composite.Orbit       `json:"orbits"`
	InputMetadata composite.InputMetadata `json:"inputMetadata"`
}

// Result is the output of one tile run.
type Result struct {
	JobID   string                                 `json:"jobId"`
	Script  string                                 `json:"script"`
	Tile    string                                 `json:"tile"`
	Scenes  []composite.Scene                      `json:"scenes"`
	Outputs map[string]*composite.OutputDescriptor `json:"outputs"`
	// Metadata is the output metadata written by the script.
	Metadata composite.OutputMetadata `json:"metadata"`
	// Bands maps output ID to per-pixel arrays of per-scene values.
	Bands map[string][][]float64 `json:"bands"`
}

// Processor runs one script over tiles.
type Processor struct {
	script  composite.Script
	filter  DataFilter
	workers int
	logger  *slog.Logger
}

// NewProcessor creates a processor for script.
func NewProcessor(script composite.Script, logger *slog.Logger) *Processor {
	return &Processor{
		script:  script,
		filter:  DataFilter{Order: OrderLeastRecent},
		workers: runtime.GOMAXPROCS(0),
		logger:  logger,
	}
}

// WithDataFilter sets the catalog-side filter applied before pre-processing.
func (p *Processor) WithDataFilter(f DataFilter) *Processor {
	p.filter = f
	return p
}

// WithWorkers bounds concurrent pixel evaluations. Values below 1 are ignored.
func (p *Processor) WithWorkers(n int) *Processor {
	if n > 0 {
		p.workers = n
	}
	return p
}

// Script returns the script this processor runs.
func (p *Processor) Script() composite.Script {
	return p.script
}

// Process runs the script hooks over one tile.
func (p *Processor) Process(ctx context.Context, req *TileRequest) (result *Result, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveTile(p.script.Name(), err, time.Since(start))
	}()

	jobID := uuid.NewString()
	logger := p.logger.With(
		slog.String("job_id", jobID),
		slog.String("script", p.script.Name()),
		slog.String("tile", req.Tile),
	)

	declaration := p.script.Setup()
	outputs := declaration.Outputs()

	orbits := p.filter.Apply(req.Orbits)
	if len(orbits) == 0 {
		return nil, ErrNoOrbits
	}

	collection := p.script.PreProcessScenes(composite.NewCollection(orbits))
	retained := collection.Scenes.Orbits
	metrics.ObserveOrbits(p.script.Name(), len(retained), len(req.Orbits)-len(retained))

	logger.Debug("pre-processed scenes",
		slog.Int("input_orbits", len(req.Orbits)),
		slog.Int("filtered_orbits", len(orbits)),
		slog.Int("retained_orbits", len(retained)),
	)

	pixelCount, err := pixelCountOf(retained)
	if err != nil {
		return nil, err
	}

	p.script.UpdateOutput(outputs, collection)

	scenes := collection.SceneList()
	var meta composite.OutputMetadata
	if err := p.script.UpdateOutputMetadata(scenes, req.InputMetadata, &meta); err != nil {
		return nil, fmt.Errorf("update output metadata: %w", err)
	}

	bands, err := p.evaluate(ctx, retained, outputs, pixelCount)
	if err != nil {
		return nil, err
	}
	metrics.AddPixels(p.script.Name(), pixelCount)

	logger.Info("processed tile",
		slog.Int("scenes", len(scenes)),
		slog.Int("pixels", pixelCount),
		slog.Duration("duration", time.Since(start)),
	)

	return &Result{
		JobID:    jobID,
		Script:   p.script.Name(),
		Tile:     req.Tile,
		Scenes:   scenes,
		Outputs:  outputs,
		Metadata: meta,
		Bands:    bands,
	}, nil
}

// evaluate calls EvaluatePixel for every pixel with samples taken from the
// retained orbits in scene order.
func (p *Processor) evaluate(
	ctx context.Context,
	orbits []composite.Orbit,
	outputs map[string]*composite.OutputDescriptor,
	pixelCount int,
) (map[string][][]float64, error) {
	bands := make(map[string][][]float64, len(outputs))
	for id := range outputs {
		bands[id] = make([][]float64, pixelCount)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for px := 0; px < pixelCount; px++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			samples := make([]composite.Sample, len(orbits))
			for i, orbit := range orbits {
				samples[i] = orbit.Pixels[px]
			}

			values := p.script.EvaluatePixel(samples)
			for id, output := range outputs {
				arr, ok := values[id]
				if !ok {
					return fmt.Errorf("%w: pixel %d missing output %q", ErrOutputShape, px, id)
				}
				if len(arr) != output.Bands {
					return fmt.Errorf("%w: pixel %d output %q has %d values, want %d",
						ErrOutputShape, px, id, len(arr), output.Bands)
				}

				encoded := make([]float64, len(arr))
				for i, v := range arr {
					encoded[i] = output.SampleType.Convert(v)
				}
				// Each goroutine writes a distinct index.
				bands[id][px] = encoded
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bands, nil
}

func pixelCountOf(orbits []composite.Orbit) (int, error) {
	if len(orbits) == 0 {
		return 0, nil
	}
	n := len(orbits[0].Pixels)
	for i, orbit := range orbits[1:] {
		if len(orbit.Pixels) != n {
			return 0, fmt.Errorf("%w: orbit %d has %d pixels, orbit 0 has %d",
				ErrPixelMismatch, i+1, len(orbit.Pixels), n)
		}
	}
	return n, nil
}
