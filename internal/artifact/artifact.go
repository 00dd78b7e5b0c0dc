// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package artifact reads and writes the on-disk artifacts components exchange:
// directories of gzip-compressed JSON-lines shards, one record per line.
package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/specialistvlad/featuregrid/internal/feature"
	"github.com/specialistvlad/featuregrid/internal/fsutil"
)

// Extension is the file suffix of every shard.
const Extension = ".jsonl.gz"

// ShardPath names shard i of prefix inside dir.
func ShardPath(dir, prefix string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%05d%s", prefix, i, Extension))
}

// Shards lists the shard files under dir in order.
func Shards(dir string) ([]string, error) {
	files, err := fsutil.FindFilesByExtension(dir, Extension)
	if err != nil {
		return nil, fmt.Errorf("failed to list shards in %s: %w", dir, err)
	}
	return files, nil
}

// Writer appends JSON records to a gzip-compressed shard.
type Writer struct {
	path  string
	file  *os.File
	buf   *bufio.Writer
	zw    *gzip.Writer
	enc   *json.Encoder
	count int
}

// Create truncates or creates the shard at path.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create shard %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	zw := gzip.NewWriter(buf)
	return &Writer{path: path, file: f, buf: buf, zw: zw, enc: json.NewEncoder(zw)}, nil
}

// Write encodes v as one line.
func (w *Writer) Write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write record %d to %s: %w", w.count, w.path, err)
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int { return w.count }

// Close flushes the compressed stream and closes the file.
func (w *Writer) Close() error {
	err := w.zw.Close()
	if ferr := w.buf.Flush(); err == nil {
		err = ferr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to close shard %s: %w", w.path, err)
	}
	return nil
}

// Read decodes every line of the shard at path into a T and hands it to fn.
// Iteration stops at the first error.
func Read[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open shard %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("failed to read shard %s: %w", path, err)
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	for line := 1; ; line++ {
		var v T
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode record %d of %s: %w", line, path, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// WriteBatch stores a batch as one record per row.
func WriteBatch(path string, b feature.Batch) error {
	n, err := b.Len()
	if err != nil {
		return err
	}
	w, err := Create(path)
	if err != nil {
		return err
	}
	row := make(map[string]string, len(b))
	for i := 0; i < n; i++ {
		for key, col := range b {
			row[key] = col[i]
		}
		if err := w.Write(row); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// ReadBatch loads a shard written by WriteBatch back into columns. Every row
// must carry the same keys as the first one.
func ReadBatch(path string) (feature.Batch, error) {
	b := feature.Batch{}
	rows := 0
	err := Read(path, func(row map[string]string) error {
		if rows == 0 {
			for key := range row {
				b[key] = nil
			}
		}
		if len(row) != len(b) {
			return fmt.Errorf("row %d of %s has %d fields, expected %d", rows+1, path, len(row), len(b))
		}
		for key, value := range row {
			if _, ok := b[key]; !ok {
				return fmt.Errorf("row %d of %s has unexpected field '%s'", rows+1, path, key)
			}
			b[key] = append(b[key], value)
		}
		rows++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// WriteRecords stores records, one per line.
func WriteRecords(path string, records []map[string]any) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(r); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
