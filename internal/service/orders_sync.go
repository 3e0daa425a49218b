package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meli_sync/internal/domain"
)

// ErrSyncInProgress is returned when a sync is requested while another
// run of the same pipeline is still executing.
var ErrSyncInProgress = errors.New("sync already in progress")

// OrdersSyncService runs the fetch-reconcile-replace pipeline for
// orders and serves the cached result.
type OrdersSyncService struct {
	source    OrderSource
	store     OrderStore
	control   SyncControlStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger

	// mu rejects overlapping runs instead of queueing them. A run that
	// arrives while another is in flight gets ErrSyncInProgress.
	mu sync.Mutex
}

func NewOrdersSyncService(
	source OrderSource,
	store OrderStore,
	control SyncControlStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
) *OrdersSyncService {
	return &OrdersSyncService{
		source:    source,
		store:     store,
		control:   control,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("component", "orders_sync"),
	}
}

// Sync executes one full orders run: fetch everything upstream,
// reconcile, atomically replace the cached snapshot and record the
// outcome in sync control.
func (s *OrdersSyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	start := time.Now()
	s.logger.Info("starting orders sync")

	if err := s.control.MarkSyncing(ctx, domain.SyncTypeOrders); err != nil {
		return nil, fmt.Errorf("mark syncing: %w", err)
	}

	stats, summary, err := s.run(ctx, start)
	if err != nil {
		s.logger.Error("orders sync failed", "error", err)
		if markErr := s.control.MarkError(ctx, domain.SyncTypeOrders, err.Error()); markErr != nil {
			s.logger.Error("failed to record sync error", "error", markErr)
		}
		return nil, err
	}

	if err := s.control.MarkCompleted(ctx, domain.SyncTypeOrders, stats.Rows); err != nil {
		s.logger.Error("failed to record sync completion", "error", err)
	}

	s.publish(ctx, stats, summary)

	s.logger.Info("orders sync completed",
		"orders", stats.Orders,
		"rows", stats.Rows,
		"discounts", stats.Discounts,
		"shipments", stats.Shipments,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (s *OrdersSyncService) run(ctx context.Context, start time.Time) (*domain.SyncStats, *domain.SummaryTotals, error) {
	snapshot, err := s.source.FetchOrders(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch orders: %w", err)
	}

	syncedAt := time.Now().UTC()
	rows, summary := ReconcileSnapshot(snapshot, syncedAt)

	if len(rows) > 0 {
		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.store.ReplaceRows(txCtx, rows); err != nil {
				return fmt.Errorf("replace rows: %w", err)
			}
			if err := s.store.ReplaceSummary(txCtx, summary); err != nil {
				return fmt.Errorf("replace summary: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	} else {
		// An empty upstream result never wipes a previously cached
		// snapshot.
		s.logger.Warn("orders sync produced no rows, keeping cached snapshot")
	}

	stats := &domain.SyncStats{
		SyncType:  domain.SyncTypeOrders,
		Orders:    len(snapshot.Orders),
		Rows:      len(rows),
		Discounts: len(snapshot.Discounts),
		Shipments: len(snapshot.Shipments),
		Duration:  time.Since(start),
	}
	return stats, &summary.SummaryTotals, nil
}

func (s *OrdersSyncService) publish(ctx context.Context, stats *domain.SyncStats, summary *domain.SummaryTotals) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSyncCompleted(ctx, stats, summary); err != nil {
		// Event delivery is best effort, the run already succeeded.
		s.logger.Error("failed to publish sync event", "error", err)
	}
}

// CachedOrders is the response payload served from the cache.
type CachedOrders struct {
	Rows        []domain.ReconciledRow `json:"vendas_detalhadas"`
	TotalOrders int                    `json:"total_pedidos"`
	TotalRows   int                    `json:"total_linhas"`
	Summary     domain.SummaryTotals   `json:"resumo"`
	LastSyncAt  *time.Time             `json:"ultimo_sync"`
	SyncStatus  string                 `json:"sync_status"`
}

// GetCached returns the cached reconciled snapshot. A cold cache
// triggers one synchronous sync before responding; if that run fails
// the error propagates instead of an empty payload.
func (s *OrdersSyncService) GetCached(ctx context.Context) (*CachedOrders, error) {
	rows, err := s.store.ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}

	if len(rows) == 0 {
		if _, err := s.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			return nil, err
		}
		rows, err = s.store.ListRows(ctx)
		if err != nil {
			return nil, fmt.Errorf("list rows: %w", err)
		}
	}
	if rows == nil {
		rows = []domain.ReconciledRow{}
	}

	summary, err := s.store.GetSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}

	control, err := s.control.Get(ctx, domain.SyncTypeOrders)
	if err != nil {
		return nil, fmt.Errorf("get sync control: %w", err)
	}

	out := &CachedOrders{
		Rows:       rows,
		TotalRows:  len(rows),
		LastSyncAt: control.LastSyncAt,
		SyncStatus: control.Status,
	}
	if summary != nil {
		out.TotalOrders = summary.TotalOrders
		out.Summary = summary.SummaryTotals
	}
	return out, nil
}

// Status returns the current sync control record for this pipeline.
func (s *OrdersSyncService) Status(ctx context.Context) (*domain.SyncControl, error) {
	return s.control.Get(ctx, domain.SyncTypeOrders)
}
