package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/orbit-composite/internal/composite"
	"github.com/robert-malhotra/orbit-composite/internal/config"
	"github.com/robert-malhotra/orbit-composite/internal/engine"
	intstac "github.com/robert-malhotra/orbit-composite/internal/stac"
	"github.com/robert-malhotra/orbit-composite/internal/storage"
	"github.com/robert-malhotra/orbit-composite/pkg/geojson"
)

// Handlers contains all HTTP handlers of the composite API.
type Handlers struct {
	cfg     *config.Config
	scripts *composite.Registry
	jobs    *config.JobRegistry
	store   *storage.Store
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(
	cfg *config.Config,
	scripts *composite.Registry,
	jobs *config.JobRegistry,
	store *storage.Store,
	logger *slog.Logger,
) *Handlers {
	if jobs == nil {
		jobs = config.NewJobRegistry()
	}
	return &Handlers{
		cfg:     cfg,
		scripts: scripts,
		jobs:    jobs,
		store:   store,
		logger:  logger,
	}
}

// ScriptInfo describes a registered script.
type ScriptInfo struct {
	Name     string                `json:"name"`
	DatesKey string                `json:"datesKey"`
	Setup    composite.Declaration `json:"setup"`
	// Jobs lists the IDs of configured jobs running the script.
	Jobs []string `json:"jobs,omitempty"`
}

// ScenesResponse is the result of pre-processing a set of STAC items.
type ScenesResponse struct {
	Script   string                                 `json:"script"`
	Orbits   []composite.Orbit                      `json:"orbits"`
	Scenes   []composite.Scene                      `json:"scenes"`
	Outputs  map[string]*composite.OutputDescriptor `json:"outputs"`
	Metadata composite.OutputMetadata               `json:"metadata"`
}

// TileResponse is a tile result as sent over HTTP. Non-finite band values
// are encoded as null.
type TileResponse struct {
	JobID    string                                 `json:"jobId"`
	Script   string                                 `json:"script"`
	Tile     string                                 `json:"tile"`
	Scenes   []composite.Scene                      `json:"scenes"`
	Outputs  map[string]*composite.OutputDescriptor `json:"outputs"`
	Metadata composite.OutputMetadata               `json:"metadata"`
	Bands    map[string][][]*float64                `json:"bands,omitempty"`
	Stored   []string                               `json:"stored,omitempty"`
}

// DatesResponse is the stored date list of a job tile.
type DatesResponse struct {
	Job   string   `json:"job"`
	Tile  string   `json:"tile"`
	Key   string   `json:"key"`
	Dates []string `json:"dates"`
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"scripts": h.scripts.Names(),
		"jobs":    h.jobs.Count(),
	})
}

// Scripts lists the registered scripts with their declarations.
// GET /scripts
func (h *Handlers) Scripts(w http.ResponseWriter, r *http.Request) {
	names := h.scripts.Names()
	infos := make([]ScriptInfo, 0, len(names))
	for _, name := range names {
		script, err := h.scripts.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, scriptInfo(script))
	}

	WriteJSON(w, http.StatusOK, map[string]any{"scripts": infos})
}

// Script returns one script declaration and the jobs that run it.
// GET /scripts/{script}
func (h *Handlers) Script(w http.ResponseWriter, r *http.Request) {
	script, ok := h.lookupScript(w, chi.URLParam(r, "script"))
	if !ok {
		return
	}

	info := scriptInfo(script)
	for _, job := range h.jobs.FindByScript(script.Name()) {
		info.Jobs = append(info.Jobs, job.ID)
	}
	WriteJSON(w, http.StatusOK, info)
}

// Scenes groups STAC items into orbits and applies the script's scene
// pre-processing, returning the retained orbits and their date list.
// POST /scripts/{script}/scenes
func (h *Handlers) Scenes(w http.ResponseWriter, r *http.Request) {
	script, ok := h.lookupScript(w, chi.URLParam(r, "script"))
	if !ok {
		return
	}

	var items intstac.ItemCollection
	if !h.decodeBody(w, r, &items) {
		return
	}

	orbits, err := intstac.OrbitsFromItems(items.Features)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	collection := script.PreProcessScenes(composite.NewCollection(orbits))
	outputs := script.Setup().Outputs()
	script.UpdateOutput(outputs, collection)

	scenes := collection.SceneList()
	var meta composite.OutputMetadata
	if err := script.UpdateOutputMetadata(scenes, composite.InputMetadata{}, &meta); err != nil {
		h.logger.Error("failed to write scene metadata",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("script", script.Name()),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to write scene metadata")
		return
	}

	WriteJSON(w, http.StatusOK, ScenesResponse{
		Script:   script.Name(),
		Orbits:   collection.Scenes.Orbits,
		Scenes:   scenes,
		Outputs:  outputs,
		Metadata: meta,
	})
}

// Tiles runs a script over one tile and returns the result.
// POST /scripts/{script}/tiles
func (h *Handlers) Tiles(w http.ResponseWriter, r *http.Request) {
	script, ok := h.lookupScript(w, chi.URLParam(r, "script"))
	if !ok {
		return
	}

	var req engine.TileRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	processor := engine.NewProcessor(script, h.logger).WithWorkers(h.cfg.Processing.Workers)
	result, err := processor.Process(r.Context(), &req)
	if err != nil {
		h.writeProcessError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, newTileResponse(result, true))
}

// Jobs lists the configured batch jobs.
// GET /jobs
func (h *Handlers) Jobs(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": h.jobs.All()})
}

// Job returns one batch job definition.
// GET /jobs/{job}
func (h *Handlers) Job(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, chi.URLParam(r, "job"))
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// JobTile processes one tile of a batch job and stores the result under
// the job's tiles path.
// POST /jobs/{job}/tiles/{tile}
func (h *Handlers) JobTile(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, chi.URLParam(r, "job"))
	if !ok {
		return
	}
	script, ok := h.lookupScript(w, job.Script)
	if !ok {
		return
	}

	var req engine.TileRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	req.Tile = chi.URLParam(r, "tile")

	processor := engine.NewProcessor(script, h.logger).
		WithDataFilter(job.DataFilter()).
		WithWorkers(h.cfg.Processing.Workers)

	result, err := processor.Process(r.Context(), &req)
	if err != nil {
		h.writeProcessError(w, r, err)
		return
	}

	if err := h.store.WriteResult(r.Context(), job.TilesPath, result); err != nil {
		h.logger.Error("failed to store tile",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("job", job.ID),
			slog.String("tile", req.Tile),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to store tile result")
		return
	}

	resp := newTileResponse(result, false)
	for _, output := range script.Setup().Output {
		if _, ok := result.Outputs[output.ID]; !ok {
			continue
		}
		resp.Stored = append(resp.Stored, h.store.Key(job.TilesPath, result.Tile, output.ID+".parquet"))
	}
	resp.Stored = append(resp.Stored, h.store.Key(job.TilesPath, result.Tile, storage.UserDataFile))

	WriteJSON(w, http.StatusCreated, resp)
}

// JobTileDates returns the date list stored for a processed job tile.
// GET /jobs/{job}/tiles/{tile}/dates
func (h *Handlers) JobTileDates(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, chi.URLParam(r, "job"))
	if !ok {
		return
	}
	script, ok := h.lookupScript(w, job.Script)
	if !ok {
		return
	}
	tile := chi.URLParam(r, "tile")

	dates, err := h.store.LoadDates(r.Context(), job.TilesPath, tile, script.DatesKey())
	if err != nil {
		if errors.Is(err, storage.ErrTileNotFound) {
			WriteNotFound(w, fmt.Sprintf("tile %q of job %q has not been processed", tile, job.ID))
			return
		}
		h.logger.Error("failed to load tile dates",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("job", job.ID),
			slog.String("tile", tile),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to load tile dates")
		return
	}

	WriteJSON(w, http.StatusOK, DatesResponse{
		Job:   job.ID,
		Tile:  tile,
		Key:   script.DatesKey(),
		Dates: formatDates(dates),
	})
}

// Extent returns the bounding-box polygon of a feature collection.
// POST /extent
func (h *Handlers) Extent(w http.ResponseWriter, r *http.Request) {
	fc, err := geojson.DecodeFeatureCollection(r.Body)
	if err != nil {
		h.writeDecodeError(w, err)
		return
	}

	extent, err := geojson.Extent(fc)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	WriteGeoJSON(w, http.StatusOK, extent)
}

func (h *Handlers) lookupScript(w http.ResponseWriter, name string) (composite.Script, bool) {
	script, err := h.scripts.Get(name)
	if err != nil {
		WriteNotFound(w, fmt.Sprintf("script %q not found", name))
		return nil, false
	}
	return script, true
}

func (h *Handlers) lookupJob(w http.ResponseWriter, id string) (*config.JobConfig, bool) {
	job := h.jobs.Get(id)
	if job == nil {
		WriteNotFound(w, fmt.Sprintf("job %q not found", id))
		return nil, false
	}
	return job, true
}

// decodeBody decodes a JSON request body into v, writing the error
// response itself on failure.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeDecodeError(w, err)
		return false
	}
	return true
}

func (h *Handlers) writeDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest,
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	case errors.Is(err, io.EOF):
		WriteBadRequest(w, "request body is empty")
	default:
		WriteBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
	}
}

func (h *Handlers) writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrNoOrbits), errors.Is(err, engine.ErrPixelMismatch):
		WriteUnprocessable(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusServiceUnavailable, ErrCodeServerError, "tile processing was cancelled")
	default:
		h.logger.Error("tile processing failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "tile processing failed")
	}
}

func scriptInfo(script composite.Script) ScriptInfo {
	return ScriptInfo{
		Name:     script.Name(),
		DatesKey: script.DatesKey(),
		Setup:    script.Setup(),
	}
}

func newTileResponse(result *engine.Result, withBands bool) TileResponse {
	resp := TileResponse{
		JobID:    result.JobID,
		Script:   result.Script,
		Tile:     result.Tile,
		Scenes:   result.Scenes,
		Outputs:  result.Outputs,
		Metadata: result.Metadata,
	}
	if withBands {
		resp.Bands = jsonBands(result.Bands)
	}
	return resp
}

// jsonBands converts band values for JSON encoding, mapping NaN and
// infinities to null.
func jsonBands(bands map[string][][]float64) map[string][][]*float64 {
	out := make(map[string][][]*float64, len(bands))
	for id, pixels := range bands {
		converted := make([][]*float64, len(pixels))
		for px, values := range pixels {
			row := make([]*float64, len(values))
			for i, v := range values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				row[i] = &values[i]
			}
			converted[px] = row
		}
		out[id] = converted
	}
	return out
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = composite.FormatTime(d)
	}
	return out
}
