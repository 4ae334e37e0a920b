// Command validate checks a consolidated CSV against the invariants the
// cleaning rules guarantee: column order, one row per CEG in ascending order,
// plausible capacity, recognized status and calendar dates.
//
// Usage:
//
//	go run ./cmd/validate -dir data/output
//	go run ./cmd/validate -file data/output/aerogeradores_consolidado_20240501_120000.csv
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/victor-cakess/hometown/internal/adapter/csvfile"
	"github.com/victor-cakess/hometown/internal/adapter/localfs"
	"github.com/victor-cakess/hometown/internal/domain"
)

// maxErrors caps the detail lines kept per phase.
const maxErrors = 20

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	errors  []string
	dropped int
}

func (p *phase) errorf(format string, args ...any) {
	if len(p.errors) >= maxErrors {
		p.dropped++
		return
	}
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	file := flag.String("file", "", "consolidated CSV to check")
	dir := flag.String("dir", filepath.Join("data", "output"), "directory searched for the newest consolidated CSV when -file is empty")
	flag.Parse()

	path := *file
	if path == "" {
		files, err := localfs.List(*dir, domain.ConsolidatedPattern)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: list %s: %v\n", *dir, err)
			os.Exit(1)
		}
		newest, ok := domain.NewestFile(files)
		if !ok {
			fmt.Fprintf(os.Stderr, "FATAL: no consolidated CSV in %s\n", *dir)
			os.Exit(1)
		}
		path = filepath.Join(*dir, newest.Name)
	}

	os.Exit(run(path))
}

func run(path string) int {
	fmt.Println("=== Consolidated Output Validation ===")
	fmt.Println(path)

	table, err := csvfile.NewStore().ReadTable(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load CSV: %v\n", err)
		return 1
	}

	phases := validate(table)

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors)+p.dropped)
			allPassed = false
		}
		fmt.Printf("  %-32s %s\n", p.name, status)
	}
	fmt.Printf("\nRecords: %d, columns: %d\n", table.Len(), len(table.Columns))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
		if p.dropped > 0 {
			fmt.Printf("  ... and %d more\n", p.dropped)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func validate(t *domain.Table) []*phase {
	return []*phase{
		validateColumns(t),
		validateFacilities(t),
		validateCapacity(t),
		validateStatus(t),
		validateDates(t),
		validateCoordinates(t),
	}
}

func validateColumns(t *domain.Table) *phase {
	p := &phase{name: "Column layout"}
	if len(t.Columns) < 2 || t.Columns[0] != domain.ColumnLatitude || t.Columns[1] != domain.ColumnLongitude {
		p.errorf("first columns must be latitude, longitude; got %v", t.Columns[:min(2, len(t.Columns))])
	}
	if t.Has(domain.ColumnWKT) {
		p.errorf("%s must be dropped", domain.ColumnWKT)
	}
	for _, col := range []string{domain.FieldFacility, domain.FieldCapacity, domain.FieldOperating, domain.FieldUpdatedAt} {
		if !t.Has(col) {
			p.errorf("missing column %s", col)
		}
	}
	return p
}

func validateFacilities(t *domain.Table) *phase {
	p := &phase{name: "One row per CEG, sorted"}
	i := t.Index(domain.FieldFacility)
	if i < 0 {
		p.errorf("no %s column", domain.FieldFacility)
		return p
	}
	seen := make(map[string]int, t.Len())
	prev := ""
	for n, row := range t.Rows {
		line := n + 2
		ceg, _ := row[i].(string)
		if ceg == "" {
			p.errorf("line %d: empty CEG", line)
			continue
		}
		if first, dup := seen[ceg]; dup {
			p.errorf("line %d: CEG %s already on line %d", line, ceg, first)
		}
		seen[ceg] = line
		if ceg < prev {
			p.errorf("line %d: CEG %s sorts before %s", line, ceg, prev)
		}
		prev = ceg
	}
	return p
}

func validateCapacity(t *domain.Table) *phase {
	p := &phase{name: "POT_MW below 1000"}
	i := t.Index(domain.FieldCapacity)
	if i < 0 {
		return p
	}
	for n, row := range t.Rows {
		mw, ok := domain.ToFloat(row[i])
		switch {
		case !ok:
			p.errorf("line %d: POT_MW %q is not a number", n+2, domain.FormatCell(row[i]))
		case mw >= domain.MaxCapacityMW:
			p.errorf("line %d: POT_MW %s out of range", n+2, strconv.FormatFloat(mw, 'f', -1, 64))
		}
	}
	return p
}

func validateStatus(t *domain.Table) *phase {
	p := &phase{name: "OPERACAO recognized"}
	i := t.Index(domain.FieldOperating)
	if i < 0 {
		return p
	}
	for n, row := range t.Rows {
		if !domain.IsRecognizedStatus(row[i]) {
			p.errorf("line %d: OPERACAO %q", n+2, domain.FormatCell(row[i]))
		}
	}
	return p
}

func validateDates(t *domain.Table) *phase {
	p := &phase{name: "DATA_ATUALIZACAO is YYYY-MM-DD"}
	i := t.Index(domain.FieldUpdatedAt)
	if i < 0 {
		return p
	}
	for n, row := range t.Rows {
		s, ok := row[i].(string)
		if !ok {
			continue // null dates are allowed
		}
		if _, err := time.Parse(domain.DateLayout, s); err != nil {
			p.errorf("line %d: DATA_ATUALIZACAO %q", n+2, s)
		}
	}
	return p
}

func validateCoordinates(t *domain.Table) *phase {
	p := &phase{name: "Coordinates numeric"}
	li, gi := t.Index(domain.ColumnLatitude), t.Index(domain.ColumnLongitude)
	if li < 0 || gi < 0 {
		return p
	}
	for n, row := range t.Rows {
		for _, i := range []int{li, gi} {
			if row[i] == nil {
				continue
			}
			if _, ok := domain.ToFloat(row[i]); !ok {
				p.errorf("line %d: %s %q is not a number", n+2, t.Columns[i], domain.FormatCell(row[i]))
			}
		}
	}
	return p
}
