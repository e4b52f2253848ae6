// Package merge concatenates row tables into a single table.
package merge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Result describes a merged table.
type Result struct {
	Path string
	// Rows counts data lines, excluding the header.
	Rows int
}

// Merge concatenates tables into dst in the given order. The first line of
// the first non-empty table is kept as the header; the first line of every
// later table is dropped. Other lines are copied verbatim. A table whose last
// line lacks a terminator gets a "\n" so lines never run together.
//
// When no data lines were written, dst is removed and Merge returns a nil
// Result: there is nothing to publish.
func Merge(tables []string, dst string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create merged table: %w", err)
	}

	w := bufio.NewWriter(out)
	headerWritten := false
	rows := 0
	for _, table := range tables {
		n, wroteHeader, err := appendTable(w, table, !headerWritten)
		if err != nil {
			out.Close()
			os.Remove(dst)
			return nil, err
		}
		headerWritten = headerWritten || wroteHeader
		rows += n
	}

	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(dst)
		return nil, fmt.Errorf("flush merged table: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("close merged table: %w", err)
	}

	if rows == 0 {
		os.Remove(dst)
		return nil, nil
	}
	return &Result{Path: dst, Rows: rows}, nil
}

// appendTable copies one table, keeping its header only when keepHeader is
// set. It returns the number of data lines copied and whether a header line
// was written.
func appendTable(w *bufio.Writer, table string, keepHeader bool) (int, bool, error) {
	f, err := os.Open(table)
	if err != nil {
		return 0, false, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	rows := 0
	wroteHeader := false
	for first := true; ; first = false {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			if line[len(line)-1] != '\n' {
				line = append(line, '\n')
			}
			switch {
			case first && keepHeader:
				wroteHeader = true
				if _, werr := w.Write(line); werr != nil {
					return rows, wroteHeader, werr
				}
			case first:
			default:
				rows++
				if _, werr := w.Write(line); werr != nil {
					return rows, wroteHeader, werr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return rows, wroteHeader, nil
		}
		if err != nil {
			return rows, wroteHeader, fmt.Errorf("read %s: %w", table, err)
		}
	}
}
