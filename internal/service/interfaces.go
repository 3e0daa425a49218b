package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"meli_sync/internal/domain"
	"meli_sync/internal/source/meli"
)

// OrderSource produces the complete upstream snapshot for one orders
// sync run.
type OrderSource interface {
	FetchOrders(ctx context.Context) (*meli.OrdersSnapshot, error)
}

// ItemSource produces the full catalog listing snapshot.
type ItemSource interface {
	FetchItems(ctx context.Context) ([]meli.Item, error)
}

type OrderStore interface {
	ReplaceRows(ctx context.Context, rows []domain.ReconciledRow) error
	ReplaceSummary(ctx context.Context, summary *domain.OrdersSummary) error
	ListRows(ctx context.Context) ([]domain.ReconciledRow, error)
	GetSummary(ctx context.Context) (*domain.OrdersSummary, error)
}

type ProductStore interface {
	UpsertBatch(ctx context.Context, products []domain.Product) error
	DeleteMissing(ctx context.Context, keepIDs []string) (int64, error)
	List(ctx context.Context) ([]domain.Product, error)
}

type SyncControlStore interface {
	Get(ctx context.Context, syncType string) (*domain.SyncControl, error)
	MarkSyncing(ctx context.Context, syncType string) error
	MarkCompleted(ctx context.Context, syncType string, totalItems int) error
	MarkError(ctx context.Context, syncType string, message string) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher emits a sync-completed event after a successful run.
// summary is nil for the catalog pipeline.
type Publisher interface {
	PublishSyncCompleted(ctx context.Context, stats *domain.SyncStats, summary *domain.SummaryTotals) error
	Close() error
}
