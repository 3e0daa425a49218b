package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"meli_sync/internal/domain"
)

// SyncControlStore tracks run lifecycle per pipeline. One row per
// sync type, mutated in place and never deleted.
type SyncControlStore struct {
	db *sqlx.DB
}

func NewSyncControlStore(db *sqlx.DB) *SyncControlStore {
	return &SyncControlStore{db: db}
}

// Get returns the control record for syncType, or a fresh idle record
// when the pipeline has never run.
func (s *SyncControlStore) Get(ctx context.Context, syncType string) (*domain.SyncControl, error) {
	query := `
		SELECT sync_type, status, last_sync_at, total_items, error_message, updated_at
		FROM meli_sync_control
		WHERE sync_type = $1`

	var control domain.SyncControl
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &control, query, syncType)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.SyncControl{
			SyncType: syncType,
			Status:   domain.SyncStatusIdle,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &control, nil
}

// MarkSyncing flags a run as started.
func (s *SyncControlStore) MarkSyncing(ctx context.Context, syncType string) error {
	return s.upsert(ctx, syncType, domain.SyncStatusSyncing, nil, nil, false)
}

// MarkCompleted records a successful run: status, item count and the
// new last-sync time; any previous error message is cleared.
func (s *SyncControlStore) MarkCompleted(ctx context.Context, syncType string, totalItems int) error {
	return s.upsert(ctx, syncType, domain.SyncStatusCompleted, &totalItems, nil, true)
}

// MarkError records a failed run. The previous last-sync time stays
// untouched so a failure never advances the freshness clock.
func (s *SyncControlStore) MarkError(ctx context.Context, syncType string, message string) error {
	return s.upsert(ctx, syncType, domain.SyncStatusError, nil, &message, false)
}

func (s *SyncControlStore) upsert(ctx context.Context, syncType, status string, totalItems *int, errMsg *string, advanceClock bool) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO meli_sync_control (sync_type, status, total_items, error_message, last_sync_at, updated_at)
		VALUES ($1, $2, COALESCE($3, 0), $4, $5, $6)
		ON CONFLICT (sync_type) DO UPDATE SET
			status = EXCLUDED.status,
			total_items = COALESCE($3, meli_sync_control.total_items),
			error_message = $4,
			last_sync_at = CASE WHEN $7 THEN $5 ELSE meli_sync_control.last_sync_at END,
			updated_at = EXCLUDED.updated_at`

	var lastSync *time.Time
	if advanceClock {
		lastSync = &now
	}

	exec := GetExecutor(ctx, s.db)
	_, err := exec.ExecContext(ctx, query, syncType, status, totalItems, errMsg, lastSync, now, advanceClock)
	return err
}
