// Command validate performs integrity checks on a merged zonal-statistics
// table and, optionally, on the checkpoint markers of the working directory
// that produced it. It verifies the header, row values, ISO3 location codes,
// and that every checkpointed table still exists.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -table /tmp/hdx-scraper-chc_ucsb/chc_ucsb_tmax_2030_ssp245.csv \
//	  -work-dir /tmp/hdx-scraper-chc_ucsb \
//	  -start-year 2030 -end-year 2030
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	"github.com/couchcryptid/chc-cmip6-etl/internal/checkpoint"
	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
)

var iso3 = regexp.MustCompile(`^[A-Z]{3}$`)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	table     string
	workDir   string
	startYear int
	endYear   int
}

func main() {
	var o options
	flag.StringVar(&o.table, "table", "", "path to a merged statistics CSV")
	flag.StringVar(&o.workDir, "work-dir", "", "pipeline working directory holding checkpoint markers")
	flag.IntVar(&o.startYear, "start-year", 0, "first expected year (0 disables the range check)")
	flag.IntVar(&o.endYear, "end-year", 0, "last expected year")
	flag.Parse()

	if o.table == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(o, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(o options, out io.Writer) int {
	fmt.Fprintln(out, "=== CHC-CMIP6 Table Validation ===")
	fmt.Fprintln(out)

	records, err := loadCSV(o.table)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load table: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateHeader(records),
		validateRows(records, o.startYear, o.endYear),
	}
	if o.workDir != "" {
		phases = append(phases, validateCheckpoints(context.Background(), o.workDir))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d\n", max(0, len(records)-1))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func loadCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return records, nil
}

// ── Phase 1: Header ──
// The first record is the only header and names a supported statistic.

func validateHeader(records [][]string) *phase {
	p := &phase{name: "Phase 1: Header"}

	header := records[0]
	if len(header) != 5 {
		p.errorf("header has %d columns, want 5: %v", len(header), header)
		return p
	}
	stat := domain.Stat(header[4])
	if !stat.Valid() {
		p.errorf("unknown statistic column %q", header[4])
	} else if want := domain.RowHeader(stat); !slices.Equal(header, want) {
		p.errorf("header %v, want %v", header, want)
	}

	for i, rec := range records[1:] {
		if len(rec) > 0 && rec[0] == "location_code" {
			p.errorf("line %d: repeated header", i+2)
		}
	}
	return p
}

// ── Phase 2: Rows ──
// Every data row is publishable and within the configured year range.

func validateRows(records [][]string, startYear, endYear int) *phase {
	p := &phase{name: "Phase 2: Rows (values and codes)"}

	for i, rec := range records[1:] {
		line := i + 2
		if len(rec) != 5 {
			p.errorf("line %d: %d fields, want 5", line, len(rec))
			continue
		}
		if rec[0] == "location_code" {
			continue
		}
		if !iso3.MatchString(rec[0]) {
			p.errorf("line %d: invalid location code %q", line, rec[0])
		}
		year, err := strconv.Atoi(rec[1])
		if err != nil {
			p.errorf("line %d: invalid year %q", line, rec[1])
		} else if startYear > 0 && (year < startYear || year > endYear) {
			p.errorf("line %d: year %d outside %d-%d", line, year, startYear, endYear)
		}
		month, err := strconv.Atoi(rec[2])
		if err != nil || month < 1 || month > 12 {
			p.errorf("line %d: invalid month %q", line, rec[2])
		}
		if strings.TrimSpace(rec[3]) == "" {
			p.errorf("line %d: missing product", line)
		}
		if domain.IsSentinel(rec[4]) {
			p.errorf("line %d: sentinel value %q", line, rec[4])
		}
	}
	return p
}

// ── Phase 3: Checkpoints ──
// Every table listed in a checkpoint marker exists on disk.

func validateCheckpoints(ctx context.Context, workDir string) *phase {
	p := &phase{name: "Phase 3: Checkpoints (markers vs tables)"}

	bucket, err := fileblob.OpenBucket(workDir, nil)
	if err != nil {
		p.errorf("open %s: %v", workDir, err)
		return p
	}
	defer bucket.Close()

	store := checkpoint.New(bucket)
	iter := bucket.List(&blob.ListOptions{})
	markers := 0
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.errorf("list %s: %v", workDir, err)
			return p
		}
		dir, name := splitKey(obj.Key)
		if name != checkpoint.MarkerName {
			continue
		}
		markers++
		paths, err := store.Read(ctx, dir)
		if err != nil {
			p.errorf("%s: %v", obj.Key, err)
			continue
		}
		for _, path := range paths {
			if _, err := os.Stat(path); err != nil {
				p.errorf("%s: listed table %s missing", obj.Key, path)
			}
		}
	}
	if markers == 0 {
		p.errorf("no checkpoint markers under %s", workDir)
	}
	return p
}

func splitKey(key string) (dir, name string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}
