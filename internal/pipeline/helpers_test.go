package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/victor-cakess/hometown/internal/adapter/csvfile"
	"github.com/victor-cakess/hometown/internal/adapter/parquet"
	"github.com/victor-cakess/hometown/internal/config"
	"github.com/victor-cakess/hometown/internal/domain"
	"github.com/victor-cakess/hometown/internal/observability"
	"github.com/victor-cakess/hometown/internal/pipeline"
)

const baseMarker = int64(1714521600000) // 2024-05-01T00:00:00Z

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// freezeClock pins domain time for the test and returns the fake clock.
func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })
	return fc
}

// makeFeature builds a valid turbine record. Each i is a distinct CEG.
func makeFeature(i int) domain.Feature {
	var a domain.Attributes
	a.Set("CEG", fmt.Sprintf("EOL.CV.RN.%06d-1", i))
	a.Set("NOME_EOL", fmt.Sprintf("Parque Eolico %d", i%7))
	a.Set("POT_MW", 2.5)
	a.Set("ALT_TOTAL", int64(120))
	a.Set("OPERACAO", "Sim")
	a.Set("DATA_ATUALIZACAO", baseMarker+int64(i))
	x, y := -36.5+float64(i)/1000, -5.2
	return domain.Feature{Attributes: a, Geometry: &domain.Geometry{X: &x, Y: &y}}
}

func makeFeatures(from, n int) []domain.Feature {
	out := make([]domain.Feature, n)
	for i := range out {
		out[i] = makeFeature(from + i)
	}
	return out
}

func encodePage(t testing.TB, features []domain.Feature) []byte {
	t.Helper()
	if features == nil {
		features = []domain.Feature{}
	}
	data, err := json.Marshal(struct {
		Features []domain.Feature `json:"features"`
	}{features})
	require.NoError(t, err)
	return data
}

// fakeFetcher serves pages out of an in-memory feature list.
type fakeFetcher struct {
	t        testing.TB
	mu       sync.Mutex
	features []domain.Feature
	total    *int64
	marker   *int64 // overrides the sample's DATA_ATUALIZACAO when set

	countErr  error
	sampleErr error
	pageErrs  map[int]error // by offset

	pageCalls   atomic.Int32
	sampleCalls atomic.Int32
}

func newFakeFetcher(t testing.TB, features []domain.Feature) *fakeFetcher {
	return &fakeFetcher{t: t, features: features, pageErrs: map[int]error{}}
}

func (f *fakeFetcher) Count(_ context.Context) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.total != nil {
		return *f.total, nil
	}
	return int64(len(f.features)), nil
}

func (f *fakeFetcher) slice(offset, limit int) []domain.Feature {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= len(f.features) {
		return nil
	}
	return f.features[offset:min(offset+limit, len(f.features))]
}

func (f *fakeFetcher) Page(_ context.Context, offset, limit int) (domain.PagePayload, error) {
	f.pageCalls.Add(1)
	if err := f.pageErrs[offset]; err != nil {
		return domain.PagePayload{}, err
	}
	return domain.DecodePage(encodePage(f.t, f.slice(offset, limit)))
}

func (f *fakeFetcher) Sample(_ context.Context, n int) (domain.PagePayload, error) {
	f.sampleCalls.Add(1)
	if f.sampleErr != nil {
		return domain.PagePayload{}, f.sampleErr
	}
	features := f.slice(0, n)
	if f.marker != nil {
		var a domain.Attributes
		a.Set(domain.FieldUpdatedAt, *f.marker)
		features = []domain.Feature{{Attributes: a}}
	}
	return domain.DecodePage(encodePage(f.t, features))
}

func (f *fakeFetcher) setMarker(m int64) { f.marker = &m }

type testDirs struct {
	cfg *config.Config
}

func newTestDirs(t *testing.T) testDirs {
	t.Helper()
	return testDirs{cfg: &config.Config{DataDir: t.TempDir(), PageSize: 100, SampleSize: 10, Workers: 4}}
}

func (d testDirs) extractor(f pipeline.Fetcher) *pipeline.Extractor {
	return pipeline.NewExtractor(f, d.cfg.Extraction(), discardLogger(), newTestMetrics())
}

func (d testDirs) transformer() *pipeline.Transformer {
	return pipeline.NewTransformer(parquet.NewStore(), d.cfg.Transformation(), discardLogger(), newTestMetrics())
}

func (d testDirs) consolidator() *pipeline.Consolidator {
	return pipeline.NewConsolidator(parquet.NewStore(), csvfile.NewStore(), d.cfg.Consolidation(), discardLogger(), newTestMetrics())
}

// writeRaw writes a raw payload file for a 1-based page.
func (d testDirs) writeRaw(t *testing.T, page, pages int, features []domain.Feature) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(d.cfg.RawDir(), 0o755))
	path := filepath.Join(d.cfg.RawDir(), domain.RawFileName("20240501_120000", page, pages))
	require.NoError(t, os.WriteFile(path, encodePage(t, features), 0o644))
	return path
}

// age moves the mtime of every file in paths back by d.
func age(t *testing.T, d time.Duration, paths ...string) {
	t.Helper()
	past := time.Now().Add(-d)
	for _, p := range paths {
		require.NoError(t, os.Chtimes(p, past, past))
	}
}
