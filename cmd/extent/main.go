// Command extent writes the bounding-box polygon of an area-of-interest
// GeoJSON as a single-feature FeatureCollection.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/robert-malhotra/orbit-composite/pkg/geojson"
)

func main() {
	in := flag.String("in", "", "input FeatureCollection (default stdin)")
	out := flag.String("out", "", "output file (default stdout)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*in, *out); err != nil {
		logger.Error("failed to generate extent", "in", *in, "error", err)
		os.Exit(1)
	}
}

func run(in, out string) error {
	var r io.Reader = os.Stdin
	if in != "" {
		f, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	fc, err := geojson.DecodeFeatureCollection(r)
	if err != nil {
		return err
	}

	extent, err := geojson.Extent(fc)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(extent)
}
