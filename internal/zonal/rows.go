package zonal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
)

// locationField is the boundary attribute carried through by --include-field.
const locationField = "ISO_3"

// WriteRows rewrites the tool's raw CSV at src into a row table at dst,
// tagging each row with key's year, month and product. Rows without a
// location code or with a no-data value are dropped.
func WriteRows(src, dst string, key domain.ScenarioKey, stat domain.Stat) (kept, dropped int, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, 0, err
	}
	defer in.Close()

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, 0, fmt.Errorf("%s: empty output", src)
		}
		return 0, 0, err
	}
	locIdx, statIdx, err := columns(header, stat)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", src, err)
	}

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, 0, err
	}
	defer os.Remove(tmp)

	w := csv.NewWriter(out)
	if err := w.Write(domain.RowHeader(stat)); err != nil {
		out.Close()
		return 0, 0, err
	}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.Close()
			return kept, dropped, err
		}
		row := domain.ZonalRow{
			LocationCode: field(rec, locIdx),
			Year:         key.Year,
			Month:        key.Month,
			Product:      key.Product,
			Value:        field(rec, statIdx),
		}
		if !row.Publishable() {
			dropped++
			continue
		}
		if err := w.Write(row.Record()); err != nil {
			out.Close()
			return kept, dropped, err
		}
		kept++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		out.Close()
		return kept, dropped, err
	}
	if err := out.Close(); err != nil {
		return kept, dropped, err
	}
	return kept, dropped, os.Rename(tmp, dst)
}

// columns locates the location and statistic columns. The statistic column
// may be named exactly after the stat or carry it as a suffix ("band_1_count").
func columns(header []string, stat domain.Stat) (loc, val int, err error) {
	loc, val = -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case h == strings.ToLower(locationField):
			loc = i
		case h == string(stat):
			val = i
		case val < 0 && strings.HasSuffix(h, "_"+string(stat)):
			val = i
		}
	}
	if loc < 0 {
		return 0, 0, fmt.Errorf("missing %s column", locationField)
	}
	if val < 0 {
		return 0, 0, fmt.Errorf("missing %s column", stat)
	}
	return loc, val, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
