package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/victor-cakess/hometown/internal/adapter/localfs"
	"github.com/victor-cakess/hometown/internal/config"
	"github.com/victor-cakess/hometown/internal/domain"
	"github.com/victor-cakess/hometown/internal/observability"
)

// Extractor downloads every page of the layer into raw payload files.
type Extractor struct {
	fetcher Fetcher
	cfg     config.ExtractionConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewExtractor creates the extraction stage.
func NewExtractor(f Fetcher, cfg config.ExtractionConfig, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	return &Extractor{fetcher: f, cfg: cfg, logger: logger, metrics: metrics}
}

func (e *Extractor) metadataPath() string {
	return filepath.Join(e.cfg.RawDir, domain.MetadataFile)
}

// LocalMarker returns the marker from the last extraction, or 0 when the
// metadata file is missing or unreadable.
func (e *Extractor) LocalMarker() int64 {
	md, err := localfs.ReadMetadata(e.metadataPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("extraction metadata unreadable, treating as absent", "error", err)
		}
		return 0
	}
	return md.APILatestUpdate
}

// CheckFreshness compares the newest DATA_ATUALIZACAO in a small remote sample
// with the locally persisted marker.
func (e *Extractor) CheckFreshness(ctx context.Context) (domain.Freshness, error) {
	sample, err := e.fetcher.Sample(ctx, e.cfg.SampleSize)
	if err != nil {
		return domain.Freshness{}, fmt.Errorf("fetch freshness sample: %w", err)
	}

	api := domain.LatestUpdate(sample.Features)
	local := e.LocalMarker()
	f := domain.Freshness{
		APIMarker:    api,
		LocalMarker:  local,
		NeedsRefresh: domain.NeedsRefresh(api, local),
	}
	e.logger.Info("freshness checked",
		"api_marker", api,
		"local_marker", local,
		"needs_refresh", f.NeedsRefresh,
	)
	return f, nil
}

type savedPage struct {
	page    int
	name    string
	records int
	err     error
}

// Run performs the extraction and returns the sorted raw payload paths. When
// the remote marker is unchanged and raw files exist, it returns them without
// fetching any page. Pages that fail to fetch or save are logged and left out
// of the result.
func (e *Extractor) Run(ctx context.Context, force bool) ([]string, error) {
	fresh, err := e.CheckFreshness(ctx)
	if err != nil {
		if !force {
			return nil, err
		}
		e.logger.Warn("freshness check failed, continuing forced extraction", "error", err)
		fresh = domain.Freshness{NeedsRefresh: true}
	}

	existing, err := localfs.List(e.cfg.RawDir, domain.RawPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !force && !fresh.NeedsRefresh && len(existing) > 0 {
		e.logger.Info("raw data is current, skipping extraction", "files", len(existing))
		return localfs.Paths(e.cfg.RawDir, existing), nil
	}

	removed, err := localfs.RemoveMatching(e.cfg.RawDir, domain.RawPattern)
	if err != nil {
		return nil, err
	}
	if err := localfs.Remove(e.metadataPath()); err != nil {
		return nil, err
	}
	if removed > 0 {
		e.logger.Info("removed previous raw files", "count", removed)
	}

	total, err := e.fetcher.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	pageSize := e.cfg.PageSize
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	runTS := domain.RunTimestamp(domain.Clock().Now())
	e.logger.Info("extraction started", "total_records", total, "pages", pages, "page_size", pageSize)

	p := newPool[savedPage](e.cfg.Workers)
	fetched, empty := 0, 0
	for i := 0; i < pages; i++ {
		if ctx.Err() != nil {
			break
		}

		page, err := e.fetcher.Page(ctx, i*pageSize, pageSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			e.logger.Error("page fetch failed, skipping", "page", i+1, "offset", i*pageSize, "error", err)
			e.metrics.PagesMissing.Inc()
			continue
		}
		fetched++
		if len(page.Features) == 0 {
			empty++
			e.logger.Debug("page has no features", "page", i+1)
			continue
		}

		num, raw, records := i+1, page.Raw, len(page.Features)
		name := domain.RawFileName(runTS, num, pages)
		p.Go(func() savedPage {
			err := localfs.WriteFile(filepath.Join(e.cfg.RawDir, name), raw)
			return savedPage{page: num, name: name, records: records, err: err}
		})
	}
	results := p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		files  []string
		saved  int
		failed int
	)
	for _, r := range results {
		if r.err != nil {
			failed++
			e.metrics.PagesUnsaved.Inc()
			e.logger.Error("save page failed, skipping", "page", r.page, "file", r.name, "error", r.err)
			continue
		}
		files = append(files, filepath.Join(e.cfg.RawDir, r.name))
		saved += r.records
	}
	sort.Strings(files)

	e.logger.Info("extraction finished",
		"pages_total", pages,
		"pages_fetched", fetched,
		"pages_empty", empty,
		"pages_missing", pages-fetched,
		"files_saved", len(files),
		"files_failed", failed,
		"records_saved", saved,
		"records_total", total,
	)

	md := domain.ExtractionMetadata{
		ExtractionTimestamp: domain.Clock().Now().UTC(),
		APILatestUpdate:     fresh.APIMarker,
		TotalRecords:        total,
		FilesCreated:        len(files),
		FilePattern:         domain.RawPattern,
	}
	if err := localfs.WriteMetadata(e.metadataPath(), md); err != nil {
		return nil, err
	}
	return files, nil
}
