// Package storage persists tile results to blob storage using the batch
// output layout <tiles_path>/<tile>/<output>.<format>.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
	"gocloud.dev/gcerrors"

	"github.com/robert-malhotra/orbit-composite/internal/composite"
	"github.com/robert-malhotra/orbit-composite/internal/engine"
)

// UserDataFile is the name of the per-tile metadata object.
const UserDataFile = "userdata.json"

// ErrTileNotFound is returned when a tile has no stored output.
var ErrTileNotFound = errors.New("tile not found")

// BandRow is one value of one output band: a pixel at a scene.
type BandRow struct {
	Pixel int64   `parquet:"pixel"`
	Scene int32   `parquet:"scene"`
	Date  string  `parquet:"date"`
	Value float64 `parquet:"value"`
}

// Store writes and reads tile results in a blob bucket.
type Store struct {
	bucket *blob.Bucket
	prefix string
}

// Open opens the bucket at bucketURL (file://, mem://, s3://, gs://).
func Open(ctx context.Context, bucketURL, prefix string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return NewStore(bucket, prefix), nil
}

// NewStore wraps an open bucket.
func NewStore(bucket *blob.Bucket, prefix string) *Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{bucket: bucket, prefix: prefix}
}

// Key returns the object key of a tile file.
func (s *Store) Key(tilesPath, tile, name string) string {
	return s.prefix + path.Join(strings.Trim(tilesPath, "/"), tile, name)
}

// WriteResult writes the user data and one parquet file per output band.
func (s *Store) WriteResult(ctx context.Context, tilesPath string, result *engine.Result) error {
	for id := range result.Outputs {
		data, err := encodeBand(result.Scenes, result.Bands[id])
		if err != nil {
			return fmt.Errorf("encode band %s: %w", id, err)
		}
		if err := s.write(ctx, s.Key(tilesPath, result.Tile, id+".parquet"), data); err != nil {
			return err
		}
	}

	// User data last, so its presence marks a complete tile.
	userData, err := result.Metadata.MarshalUserData()
	if err != nil {
		return fmt.Errorf("marshal user data: %w", err)
	}
	return s.write(ctx, s.Key(tilesPath, result.Tile, UserDataFile), userData)
}

// LoadDates reads the date list stored for a tile under key.
func (s *Store) LoadDates(ctx context.Context, tilesPath, tile, key string) ([]time.Time, error) {
	data, err := s.read(ctx, s.Key(tilesPath, tile, UserDataFile))
	if err != nil {
		return nil, err
	}

	var userData map[string]any
	if err := json.Unmarshal(data, &userData); err != nil {
		return nil, fmt.Errorf("decode %s: %w", UserDataFile, err)
	}
	return composite.ParseDates(userData, key)
}

// ReadBand reads back the rows of one output band.
func (s *Store) ReadBand(ctx context.Context, tilesPath, tile, band string) ([]BandRow, error) {
	data, err := s.read(ctx, s.Key(tilesPath, tile, band+".parquet"))
	if err != nil {
		return nil, err
	}

	rows, err := parquet.Read[BandRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet band %s: %w", band, err)
	}
	return rows, nil
}

// Exists reports whether a tile has complete output.
func (s *Store) Exists(ctx context.Context, tilesPath, tile string) (bool, error) {
	return s.bucket.Exists(ctx, s.Key(tilesPath, tile, UserDataFile))
}

// Close releases the bucket.
func (s *Store) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func (s *Store) write(ctx context.Context, key string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrTileNotFound, key)
		}
		return nil, fmt.Errorf("open reader for %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// encodeBand writes one band as zstd-compressed parquet, pixel-major.
func encodeBand(scenes []composite.Scene, pixels [][]float64) ([]byte, error) {
	dates := make([]string, len(scenes))
	for i, scene := range scenes {
		dates[i] = composite.FormatTime(scene.Date)
	}

	rows := make([]BandRow, 0, len(pixels)*len(scenes))
	for px, values := range pixels {
		for i, v := range values {
			row := BandRow{Pixel: int64(px), Scene: int32(i), Value: v}
			if i < len(dates) {
				row.Date = dates[i]
			}
			rows = append(rows, row)
		}
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[BandRow](&buf, parquet.Compression(&parquet.Zstd))
	if _, err := w.Write(rows); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
