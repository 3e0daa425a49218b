package domain

import "time"

// SyncType identifies which pipeline a control record belongs to.
const (
	SyncTypeOrders   = "orders"
	SyncTypeProducts = "products"
)

// Sync run statuses. The cycle is idle -> syncing -> completed|error,
// then back to syncing on the next run. There is no terminal state.
const (
	SyncStatusIdle      = "idle"
	SyncStatusSyncing   = "syncing"
	SyncStatusCompleted = "completed"
	SyncStatusError     = "error"
)

// SyncControl is the per-pipeline run-lifecycle record. It is mutated
// in place across runs and never deleted. A failed run records the
// error but leaves LastSyncAt untouched.
type SyncControl struct {
	SyncType     string     `db:"sync_type"`
	Status       string     `db:"status"`
	LastSyncAt   *time.Time `db:"last_sync_at"`
	TotalItems   int        `db:"total_items"`
	ErrorMessage *string    `db:"error_message"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// SyncStats holds statistics about one completed sync run.
type SyncStats struct {
	SyncType  string
	Orders    int
	Rows      int
	Discounts int
	Shipments int
	Products  int
	Duration  time.Duration
}
