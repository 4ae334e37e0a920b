package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/victor-cakess/hometown/internal/adapter/localfs"
	"github.com/victor-cakess/hometown/internal/config"
	"github.com/victor-cakess/hometown/internal/domain"
	"github.com/victor-cakess/hometown/internal/observability"
)

// ConsolidationResult describes the consolidated output.
type ConsolidationResult struct {
	Path    string
	Rows    int
	Skipped bool
	Reason  string

	// Table, Report and Summary are set only when a new output was written.
	Table   *domain.Table
	Report  domain.CleanReport
	Summary domain.Summary
}

// Consolidator merges all processed files into one cleaned CSV.
type Consolidator struct {
	processed TableStore
	output    TableStore
	cfg       config.ConsolidationConfig
	box       domain.BoundingBox
	logger    *slog.Logger
	metrics   *observability.Metrics
	summaries *lru[domain.Summary]
}

// NewConsolidator creates the consolidation stage reading from processed and
// writing through output.
func NewConsolidator(processed, output TableStore, cfg config.ConsolidationConfig, logger *slog.Logger, metrics *observability.Metrics) *Consolidator {
	return &Consolidator{
		processed: processed,
		output:    output,
		cfg:       cfg,
		box:       domain.Brazil,
		logger:    logger,
		metrics:   metrics,
		summaries: newLRU[domain.Summary](summaryCacheSize),
	}
}

// Check evaluates whether consolidation would do any work.
func (c *Consolidator) Check() (domain.ConsolidationDecision, []domain.FileInfo, error) {
	processed, err := localfs.List(c.cfg.ProcessedDir, domain.ProcessedPattern)
	if err != nil {
		return domain.ConsolidationDecision{}, nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	outputs, err := localfs.List(c.cfg.OutputDir, domain.ConsolidatedPattern)
	if err != nil {
		return domain.ConsolidationDecision{}, nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	check := domain.ConsolidationCheck{TransformedFiles: len(processed)}
	if newest, ok := domain.NewestFile(outputs); ok {
		check.ExistingOutput = filepath.Join(c.cfg.OutputDir, newest.Name)
		check.ExistingRows, check.ExistingErr = c.output.CountRows(check.ExistingOutput)
	}
	if len(processed) > 0 && check.ExistingOutput != "" && check.ExistingErr == nil {
		for _, p := range localfs.Paths(c.cfg.ProcessedDir, processed) {
			n, err := c.processed.CountRows(p)
			if err != nil {
				check.TransformedErr = err
				break
			}
			check.TransformedRows += n
		}
	}
	return domain.ConsolidationNeeded(check), processed, nil
}

// Run produces the consolidated CSV. outputName overrides the generated file
// name when non-empty.
func (c *Consolidator) Run(ctx context.Context, outputName string, force bool) (ConsolidationResult, error) {
	decision, processed, err := c.Check()
	if err != nil {
		return ConsolidationResult{}, err
	}

	if len(processed) == 0 {
		if force {
			return ConsolidationResult{}, fmt.Errorf("%w: no processed files in %s", domain.ErrProcessing, c.cfg.ProcessedDir)
		}
		c.logger.Warn("no processed files, skipping consolidation", "dir", c.cfg.ProcessedDir)
		return ConsolidationResult{Path: decision.Existing, Skipped: true, Reason: decision.Reason}, nil
	}
	if !force && !decision.Needed {
		rows, _ := c.output.CountRows(decision.Existing)
		c.logger.Info("consolidated output is current, skipping", "file", filepath.Base(decision.Existing), "reason", decision.Reason)
		return ConsolidationResult{Path: decision.Existing, Rows: int(rows), Skipped: true, Reason: decision.Reason}, nil
	}
	if !force {
		c.logger.Info("consolidation needed", "reason", decision.Reason)
	}

	combined, err := c.load(ctx, localfs.Paths(c.cfg.ProcessedDir, processed))
	if err != nil {
		return ConsolidationResult{}, err
	}

	report := domain.Clean(combined, c.box)
	c.logReport(report)

	if outputName == "" {
		outputName = domain.ConsolidatedFileName(domain.RunTimestamp(domain.Clock().Now()))
	}
	path := filepath.Join(c.cfg.OutputDir, outputName)
	if err := c.output.WriteTable(path, combined); err != nil {
		return ConsolidationResult{}, err
	}

	summary := domain.Summarize(combined)
	c.metrics.ConsolidatedRows.Set(float64(combined.Len()))
	c.logger.Info("consolidation finished",
		"file", outputName,
		"records", summary.Records,
		"columns", len(summary.Columns),
		"top_farms", summary.TopFarms,
	)

	return ConsolidationResult{
		Path:    path,
		Rows:    combined.Len(),
		Reason:  decision.Reason,
		Table:   combined,
		Report:  report,
		Summary: summary,
	}, nil
}

// load reads every processed file in name order and stacks them. Any
// unreadable file aborts.
func (c *Consolidator) load(ctx context.Context, paths []string) (*domain.Table, error) {
	tables := make([]*domain.Table, 0, len(paths))
	expected := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := c.processed.ReadTable(p)
		if err != nil {
			c.logger.Error("read processed file failed", "file", filepath.Base(p), "error", err)
			return nil, fmt.Errorf("load %s: %w", filepath.Base(p), err)
		}
		expected += t.Len()
		tables = append(tables, t)
	}

	combined := domain.Concat(tables...)
	if combined.Len() != expected {
		c.logger.Warn("combined row count differs from per-file sum", "combined", combined.Len(), "expected", expected)
	}
	c.logger.Info("processed files loaded", "files", len(paths), "records", combined.Len(), "columns", len(combined.Columns))
	return combined, nil
}

func (c *Consolidator) logReport(r domain.CleanReport) {
	if len(r.WidenedColumns) > 0 {
		c.logger.Debug("mixed integer and float columns widened", "columns", r.WidenedColumns)
	}
	if r.InvalidLatitude > 0 || r.InvalidLongitude > 0 {
		c.logger.Warn("coordinates outside expected bounds",
			"invalid_latitude", r.InvalidLatitude,
			"invalid_longitude", r.InvalidLongitude,
		)
	}
	for field, n := range r.NullCounts {
		c.logger.Warn("null values in important field", "field", field, "count", n)
	}

	c.metrics.RowsDropped.WithLabelValues("capacity").Add(float64(r.DroppedCapacity))
	c.metrics.RowsDropped.WithLabelValues("status").Add(float64(r.DroppedStatus))
	c.metrics.RowsDropped.WithLabelValues("duplicate").Add(float64(r.DroppedDuplicates))

	c.logger.Info("cleaning finished",
		"input_rows", r.InputRows,
		"dropped_capacity", r.DroppedCapacity,
		"dropped_status", r.DroppedStatus,
		"dropped_duplicates", r.DroppedDuplicates,
		"status_counts", r.StatusCounts,
		"unique_facilities", r.UniqueFacilities,
		"output_rows", r.OutputRows,
	)
}

// CleanOutputs removes every consolidated CSV and returns how many were removed.
func (c *Consolidator) CleanOutputs() (int, error) {
	n, err := localfs.RemoveMatching(c.cfg.OutputDir, domain.ConsolidatedPattern)
	if err != nil {
		return n, err
	}
	c.logger.Info("consolidated outputs removed", "count", n)
	return n, nil
}

// Inspect loads the newest consolidated output and summarizes it. Summaries
// are cached per file version.
func (c *Consolidator) Inspect() (string, domain.Summary, error) {
	outputs, err := localfs.List(c.cfg.OutputDir, domain.ConsolidatedPattern)
	if err != nil {
		return "", domain.Summary{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	newest, ok := domain.NewestFile(outputs)
	if !ok {
		return "", domain.Summary{}, fmt.Errorf("%w: no consolidated output in %s", domain.ErrProcessing, c.cfg.OutputDir)
	}
	path := filepath.Join(c.cfg.OutputDir, newest.Name)
	key := summaryKey(newest)
	if s, ok := c.summaries.Get(key); ok {
		return path, s, nil
	}
	t, err := c.output.ReadTable(path)
	if err != nil {
		return "", domain.Summary{}, err
	}
	s := domain.Summarize(t)
	c.summaries.Put(key, s)
	return path, s, nil
}
