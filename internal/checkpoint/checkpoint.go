// Package checkpoint records which row tables a bucket already produced so a
// rerun can skip fetching and aggregating it.
//
// A bucket's marker is a plain-text done.txt inside the bucket's working
// directory, one output path per line. The marker's existence is the only
// resume signal: rasters or tables lying around without a marker are never
// trusted.
package checkpoint

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// MarkerName is the checkpoint filename inside a bucket directory.
const MarkerName = "done.txt"

// ErrNoCheckpoint is returned by Read when a bucket has no marker.
var ErrNoCheckpoint = errors.New("checkpoint: no marker")

// Store reads and writes bucket markers. Open the bucket with fileblob rooted
// at the pipeline working directory; blob writers only make an object visible
// once it is fully written, so a concurrent Has or Read never observes a
// partial list.
type Store struct {
	bucket *blob.Bucket
}

// New creates a Store over bucket.
func New(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Key returns the marker object key for a bucket directory key.
func Key(bucketDir string) string {
	return path.Join(bucketDir, MarkerName)
}

// Has reports whether bucketDir has a marker.
func (s *Store) Has(ctx context.Context, bucketDir string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, Key(bucketDir))
	if err != nil {
		return false, fmt.Errorf("check marker %s: %w", bucketDir, err)
	}
	return ok, nil
}

// Read returns the output paths listed in bucketDir's marker.
func (s *Store) Read(ctx context.Context, bucketDir string) ([]string, error) {
	data, err := s.bucket.ReadAll(ctx, Key(bucketDir))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read marker %s: %w", bucketDir, err)
	}

	var paths []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			paths = append(paths, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse marker %s: %w", bucketDir, err)
	}
	return paths, nil
}

// Write records paths as bucketDir's completed outputs. Call it only once
// every listed table exists.
func (s *Store) Write(ctx context.Context, bucketDir string, paths []string) error {
	var buf bytes.Buffer
	for _, p := range paths {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	opts := &blob.WriterOptions{ContentType: "text/plain; charset=utf-8"}
	if err := s.bucket.WriteAll(ctx, Key(bucketDir), buf.Bytes(), opts); err != nil {
		return fmt.Errorf("write marker %s: %w", bucketDir, err)
	}
	return nil
}

// Remove deletes bucketDir's marker, forcing the bucket to be reprocessed.
func (s *Store) Remove(ctx context.Context, bucketDir string) error {
	err := s.bucket.Delete(ctx, Key(bucketDir))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("remove marker %s: %w", bucketDir, err)
	}
	return nil
}
