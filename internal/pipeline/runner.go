package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/victor-cakess/hometown/internal/domain"
	"github.com/victor-cakess/hometown/internal/observability"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// RunOptions control a pipeline or single-stage run.
type RunOptions struct {
	Force  bool
	Output string // consolidated file name; generated when empty
}

// RunReport is what a full pipeline run produced.
type RunReport struct {
	RunID          string
	RawFiles       []string
	ProcessedFiles []string
	Consolidation  ConsolidationResult
}

// Runner executes extraction, transformation and consolidation in order,
// records every stage in the history store and delivers fresh output to the
// configured sinks.
type Runner struct {
	extractor    *Extractor
	transformer  *Transformer
	consolidator *Consolidator
	history      HistoryStore
	sinks        []Sink
	logger       *slog.Logger
	metrics      *observability.Metrics

	mu    sync.Mutex
	ready atomic.Bool
}

// NewRunner wires the stages. history may be nil.
func NewRunner(e *Extractor, t *Transformer, c *Consolidator, history HistoryStore, logger *slog.Logger, metrics *observability.Metrics, sinks ...Sink) *Runner {
	return &Runner{
		extractor:    e,
		transformer:  t,
		consolidator: c,
		history:      history,
		sinks:        sinks,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckReadiness returns nil once a full run has completed successfully.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Ready reports whether a full run has completed.
func (r *Runner) Ready() bool { return r.ready.Load() }

// Recent lists recent stage runs from the history store.
func (r *Runner) Recent(ctx context.Context, limit int) ([]domain.StageRun, error) {
	if r.history == nil {
		return []domain.StageRun{}, nil
	}
	return r.history.Recent(ctx, limit)
}

// Run executes all three stages. Runs never overlap; a concurrent call gets
// ErrRunInProgress.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	if !r.mu.TryLock() {
		return RunReport{}, ErrRunInProgress
	}
	defer r.mu.Unlock()

	report := RunReport{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", report.RunID)
	logger.Info("pipeline run started", "force", opts.Force)
	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)

	var err error
	if report.RawFiles, err = r.extract(ctx, report.RunID, opts); err != nil {
		logger.Error("pipeline run failed", "stage", domain.StageExtract, "error", err)
		return report, err
	}
	if report.ProcessedFiles, err = r.transform(ctx, report.RunID, opts); err != nil {
		logger.Error("pipeline run failed", "stage", domain.StageTransform, "error", err)
		return report, err
	}
	if report.Consolidation, err = r.consolidate(ctx, report.RunID, opts); err != nil {
		logger.Error("pipeline run failed", "stage", domain.StageConsolidate, "error", err)
		return report, err
	}

	r.ready.Store(true)
	logger.Info("pipeline run finished",
		"raw_files", len(report.RawFiles),
		"processed_files", len(report.ProcessedFiles),
		"output", report.Consolidation.Path,
		"rows", report.Consolidation.Rows,
		"consolidation_skipped", report.Consolidation.Skipped,
	)
	return report, nil
}

// Extract runs the extraction stage alone.
func (r *Runner) Extract(ctx context.Context, opts RunOptions) ([]string, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()
	return r.extract(ctx, uuid.NewString(), opts)
}

// Transform runs the transformation stage alone.
func (r *Runner) Transform(ctx context.Context, opts RunOptions) ([]string, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()
	return r.transform(ctx, uuid.NewString(), opts)
}

// Consolidate runs the consolidation stage alone.
func (r *Runner) Consolidate(ctx context.Context, opts RunOptions) (ConsolidationResult, error) {
	if !r.mu.TryLock() {
		return ConsolidationResult{}, ErrRunInProgress
	}
	defer r.mu.Unlock()
	return r.consolidate(ctx, uuid.NewString(), opts)
}

func (r *Runner) extract(ctx context.Context, runID string, opts RunOptions) ([]string, error) {
	run := r.begin(runID, domain.StageExtract, opts)
	files, err := r.extractor.Run(ctx, opts.Force)
	run.Files = len(files)
	r.finish(ctx, run, domain.OutcomeSucceeded, err)
	return files, err
}

func (r *Runner) transform(ctx context.Context, runID string, opts RunOptions) ([]string, error) {
	run := r.begin(runID, domain.StageTransform, opts)
	files, err := r.transformer.Run(ctx, opts.Force)
	run.Files = len(files)
	r.finish(ctx, run, domain.OutcomeSucceeded, err)
	return files, err
}

func (r *Runner) consolidate(ctx context.Context, runID string, opts RunOptions) (ConsolidationResult, error) {
	run := r.begin(runID, domain.StageConsolidate, opts)
	res, err := r.consolidator.Run(ctx, opts.Output, opts.Force)
	run.Rows = res.Rows
	if res.Path != "" {
		run.Files = 1
	}
	outcome := domain.OutcomeSucceeded
	if res.Skipped {
		outcome = domain.OutcomeSkipped
	}
	r.finish(ctx, run, outcome, err)

	if err == nil && !res.Skipped {
		r.deliver(ctx, domain.Delivery{
			RunID:       runID,
			Path:        res.Path,
			Table:       res.Table,
			Summary:     res.Summary,
			CompletedAt: run.FinishedAt,
		})
	}
	return res, err
}

func (r *Runner) begin(runID, stage string, opts RunOptions) *domain.StageRun {
	return &domain.StageRun{
		RunID:     runID,
		Stage:     stage,
		Forced:    opts.Force,
		StartedAt: domain.Clock().Now().UTC(),
	}
}

func (r *Runner) finish(ctx context.Context, run *domain.StageRun, outcome string, err error) {
	run.FinishedAt = domain.Clock().Now().UTC()
	run.Outcome = outcome
	if err != nil {
		run.Outcome = domain.OutcomeFailed
		run.Error = err.Error()
	}

	r.metrics.StageRuns.WithLabelValues(run.Stage, run.Outcome).Inc()
	r.metrics.StageDuration.WithLabelValues(run.Stage).Observe(run.Duration().Seconds())

	if r.history == nil {
		return
	}
	// Record even when ctx was cancelled mid-stage.
	if herr := r.history.Record(context.WithoutCancel(ctx), *run); herr != nil {
		r.logger.Warn("record stage run failed", "stage", run.Stage, "run_id", run.RunID, "error", herr)
	}
}

// deliver fans the output out to every sink. Sink failures are logged; the
// CSV on disk stays the authoritative result.
func (r *Runner) deliver(ctx context.Context, d domain.Delivery) {
	for _, s := range r.sinks {
		if err := s.Deliver(ctx, d); err != nil {
			r.metrics.SinkPublishes.WithLabelValues(s.Name(), "error").Inc()
			r.logger.Error("sink delivery failed", "sink", s.Name(), "run_id", d.RunID, "error", err)
			continue
		}
		r.metrics.SinkPublishes.WithLabelValues(s.Name(), "success").Inc()
		r.logger.Info("sink delivery finished", "sink", s.Name(), "run_id", d.RunID)
	}
}
