package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/victor-cakess/hometown/internal/adapter/localfs"
	"github.com/victor-cakess/hometown/internal/config"
	"github.com/victor-cakess/hometown/internal/domain"
	"github.com/victor-cakess/hometown/internal/observability"
)

// Transformer turns raw payload files into columnar files, one per page.
type Transformer struct {
	store   TableStore
	cfg     config.TransformationConfig
	box     domain.BoundingBox
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewTransformer creates the transformation stage writing through store.
func NewTransformer(store TableStore, cfg config.TransformationConfig, logger *slog.Logger, metrics *observability.Metrics) *Transformer {
	return &Transformer{store: store, cfg: cfg, box: domain.Brazil, logger: logger, metrics: metrics}
}

type transformResult struct {
	raw     string
	out     string
	records int
	skipped bool
	err     error
}

// Run transforms every raw payload file and returns the sorted output paths.
// A file that fails is logged and left out; the rest still complete.
func (t *Transformer) Run(ctx context.Context, force bool) ([]string, error) {
	raw, err := localfs.List(t.cfg.RawDir, domain.RawPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if len(raw) == 0 {
		t.logger.Warn("no raw payload files to transform", "dir", t.cfg.RawDir)
		return nil, nil
	}

	processed, err := localfs.List(t.cfg.ProcessedDir, domain.ProcessedPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !force {
		d := domain.TransformNeeded(raw, processed)
		if !d.Needed {
			t.logger.Info("processed files are current, skipping transformation", "reason", d.Reason)
			return localfs.Paths(t.cfg.ProcessedDir, processed), nil
		}
		t.logger.Info("transformation needed", "reason", d.Reason)
	}

	removed, err := localfs.RemoveMatching(t.cfg.ProcessedDir, domain.ProcessedPattern)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		t.logger.Info("removed previous processed files", "count", removed)
	}
	if err := os.MkdirAll(t.cfg.ProcessedDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", domain.ErrPersistence, t.cfg.ProcessedDir, err)
	}

	p := newPool[transformResult](t.cfg.Workers)
	for _, path := range localfs.Paths(t.cfg.RawDir, raw) {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() transformResult { return t.transformFile(ctx, path) })
	}
	results := p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var outputs []string
	failed, skipped, records := 0, 0, 0
	for _, r := range results {
		switch {
		case r.err != nil:
			failed++
			t.metrics.TransformErrors.Inc()
			t.logger.Error("transform file failed", "file", filepath.Base(r.raw), "error", r.err)
		case r.skipped:
			skipped++
		default:
			outputs = append(outputs, r.out)
			records += r.records
			t.metrics.FilesTransformed.Inc()
		}
	}
	sort.Strings(outputs)

	t.logger.Info("transformation finished",
		"files_total", len(raw),
		"files_processed", len(outputs),
		"files_empty", skipped,
		"files_failed", failed,
		"records", records,
	)
	return outputs, nil
}

func (t *Transformer) transformFile(ctx context.Context, rawPath string) transformResult {
	res := transformResult{raw: rawPath}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	data, err := os.ReadFile(rawPath)
	if err != nil {
		res.err = fmt.Errorf("%w: read %s: %v", domain.ErrProcessing, rawPath, err)
		return res
	}
	page, err := domain.DecodePage(data)
	if err != nil {
		res.err = err
		return res
	}
	if len(page.Features) == 0 {
		t.logger.Warn("raw file has no features, skipping", "file", filepath.Base(rawPath))
		res.skipped = true
		return res
	}

	table, report := domain.FeaturesToTable(page.Features, t.box)
	name := filepath.Base(rawPath)
	if report.MissingGeometry > 0 {
		t.logger.Warn("features without geometry", "file", name, "count", report.MissingGeometry)
	}
	if report.OutOfBounds > 0 {
		t.logger.Warn("coordinates outside expected bounds", "file", name, "count", report.OutOfBounds)
	}

	out := filepath.Join(t.cfg.ProcessedDir, domain.ProcessedFileName(name))
	if err := t.store.WriteTable(out, table); err != nil {
		res.err = err
		return res
	}

	t.logger.Debug("file transformed", "file", name, "records", report.Records)
	res.out = out
	res.records = report.Records
	return res
}
