package pipeline

import (
	"context"

	"github.com/victor-cakess/hometown/internal/domain"
)

// Fetcher reads pages from the remote feature service.
type Fetcher interface {
	Count(ctx context.Context) (int64, error)
	Page(ctx context.Context, offset, limit int) (domain.PagePayload, error)
	Sample(ctx context.Context, n int) (domain.PagePayload, error)
}

// TableStore persists tables in one file format.
type TableStore interface {
	WriteTable(path string, t *domain.Table) error
	ReadTable(path string) (*domain.Table, error)
	CountRows(path string) (int64, error)
}

// HistoryStore records stage executions.
type HistoryStore interface {
	Record(ctx context.Context, run domain.StageRun) error
	Recent(ctx context.Context, limit int) ([]domain.StageRun, error)
}

// Sink receives a freshly consolidated output.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d domain.Delivery) error
}
