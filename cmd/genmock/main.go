// Command genmock writes synthetic raw page files shaped like the SIGEL
// turbine layer, so the transform and consolidate stages can run without
// network access. It seeds the anomalies the cleaning rules remove and runs
// the real domain cleaning over the result to print the expected counts.
//
// Usage:
//
//	go run ./cmd/genmock -dir data/raw -pages 3 -features 100 -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/victor-cakess/hometown/internal/adapter/localfs"
	"github.com/victor-cakess/hometown/internal/domain"
)

var baseDate = time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

var states = []string{"RN", "CE", "BA", "PI", "RS", "PE", "PB", "MA"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

type options struct {
	dir       string
	pages     int
	features  int
	dupRate   float64
	badRate   float64
	seed      uint64
	emptyLast bool
}

func run() error {
	var o options
	flag.StringVar(&o.dir, "dir", filepath.Join("data", "raw"), "raw payload directory")
	flag.IntVar(&o.pages, "pages", 3, "number of page files")
	flag.IntVar(&o.features, "features", 100, "features per page")
	flag.Float64Var(&o.dupRate, "dup-rate", 0.05, "fraction of features repeating an earlier CEG with a later update")
	flag.Float64Var(&o.badRate, "bad-rate", 0.02, "fraction of features with out-of-range capacity or a stray status")
	flag.Uint64Var(&o.seed, "seed", 42, "random seed")
	flag.BoolVar(&o.emptyLast, "empty-last", false, "append one page with no features")
	flag.Parse()

	if o.pages < 1 || o.features < 1 {
		flag.Usage()
		return fmt.Errorf("-pages and -features must be positive")
	}

	// Fixed clock for reproducible file names.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	pages := generate(o)
	runTS := domain.RunTimestamp(domain.Clock().Now())

	removed, err := localfs.RemoveMatching(o.dir, domain.RawPattern)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("removed %d previous raw files", removed)
	}

	var all []domain.Feature
	for i, features := range pages {
		data, err := json.Marshal(struct {
			Features []domain.Feature `json:"features"`
		}{features})
		if err != nil {
			return fmt.Errorf("encode page %d: %w", i+1, err)
		}
		name := domain.RawFileName(runTS, i+1, len(pages))
		if err := localfs.WriteFile(filepath.Join(o.dir, name), data); err != nil {
			return err
		}
		log.Printf("%s: %d features", name, len(features))
		all = append(all, features...)
	}

	md := domain.ExtractionMetadata{
		ExtractionTimestamp: domain.Clock().Now().UTC(),
		APILatestUpdate:     domain.LatestUpdate(all),
		TotalRecords:        int64(len(all)),
		FilesCreated:        len(pages),
		FilePattern:         domain.RawPattern,
	}
	if o.emptyLast {
		md.FilesCreated--
	}
	if err := localfs.WriteMetadata(filepath.Join(o.dir, domain.MetadataFile), md); err != nil {
		return err
	}

	printStats(all)
	return nil
}

func generate(o options) [][]domain.Feature {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	pages := make([][]domain.Feature, 0, o.pages+1)
	next := 0

	for p := 0; p < o.pages; p++ {
		features := make([]domain.Feature, 0, o.features)
		for i := 0; i < o.features; i++ {
			id := next
			updated := baseDate.Add(time.Duration(rng.IntN(30*24)) * time.Hour)
			if next > 0 && rng.Float64() < o.dupRate {
				// Re-issue an earlier unit with a later update.
				id = rng.IntN(next)
				updated = updated.Add(45 * 24 * time.Hour)
			} else {
				next++
			}
			features = append(features, turbine(rng, id, updated, rng.Float64() < o.badRate))
		}
		pages = append(pages, features)
	}
	if o.emptyLast {
		pages = append(pages, []domain.Feature{})
	}
	return pages
}

func turbine(rng *rand.Rand, id int, updated time.Time, anomalous bool) domain.Feature {
	state := states[id%len(states)]
	capacity := []float64{1.5, 2.1, 2.5, 3.0, 3.6, 4.2, 5.7}[rng.IntN(7)]
	status := domain.StatusOperating
	if rng.IntN(10) == 0 {
		status = domain.StatusNotOperating
	}
	if anomalous {
		if rng.IntN(2) == 0 {
			capacity = 1000 + float64(rng.IntN(5000))
		} else {
			status = "Em teste"
		}
	}

	var a domain.Attributes
	a.Set("OBJECTID", int64(id+1))
	a.Set(domain.FieldFacility, fmt.Sprintf("EOL.CV.%s.%06d-%d", state, id, id%10))
	a.Set(domain.FieldFarmName, fmt.Sprintf("Complexo Eólico %s %02d", state, id%25))
	a.Set(domain.FieldCapacity, capacity)
	a.Set(domain.FieldHeight, float64(100+rng.IntN(80)))
	a.Set("UF", state)
	a.Set(domain.FieldOperating, status)
	a.Set(domain.FieldUpdatedAt, updated.UnixMilli())

	lon := -42.0 + rng.Float64()*8
	lat := -12.0 + rng.Float64()*10
	f := domain.Feature{Attributes: a, Geometry: &domain.Geometry{X: &lon, Y: &lat}}
	if rng.IntN(200) == 0 {
		f.Geometry = nil
	}
	return f
}

func printStats(features []domain.Feature) {
	table, geo := domain.FeaturesToTable(features, domain.Brazil)
	report := domain.Clean(table, domain.Brazil)

	fmt.Println("\n=== Expected consolidation ===")
	fmt.Printf("Features: %d (missing geometry %d, out of bounds %d)\n", geo.Records, geo.MissingGeometry, geo.OutOfBounds)
	fmt.Printf("Dropped: capacity=%d status=%d duplicates=%d\n",
		report.DroppedCapacity, report.DroppedStatus, report.DroppedDuplicates)
	fmt.Printf("Output rows: %d\n", report.OutputRows)

	statuses := make([]string, 0, len(report.StatusCounts))
	for s := range report.StatusCounts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("  OPERACAO=%s: %d\n", s, report.StatusCounts[s])
	}
}
