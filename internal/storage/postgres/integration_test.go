//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"meli_sync/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_tables.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM meli_order_rows")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM meli_orders_summary")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM meli_products")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM meli_tokens")
	_, _ = s.db.ExecContext(s.ctx,
		"UPDATE meli_sync_control SET status = 'idle', last_sync_at = NULL, total_items = 0, error_message = NULL")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func sampleRows(n int, syncedAt time.Time) []domain.ReconciledRow {
	rows := make([]domain.ReconciledRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, domain.ReconciledRow{
			OrderID:             "100",
			UnitPrice:           50,
			Quantity:            1,
			GrossItem:           50,
			GrossItemsOrder:     float64(50 * n),
			SaleFeeTotalOrder:   5,
			MarketplaceFeeOrder: 5,
			NetOrderSimplified:  float64(50*n) - 5,
			SyncedAt:            syncedAt,
		})
	}
	return rows
}

func (s *PostgresIntegrationSuite) TestOrderStore_ReplaceRows() {
	store := NewOrderStore(s.db, 2)
	now := time.Now().UTC().Truncate(time.Microsecond)

	// Batch size 2, five rows: exercises chunked inserts.
	err := store.ReplaceRows(s.ctx, sampleRows(5, now))
	s.Require().NoError(err)

	listed, err := store.ListRows(s.ctx)
	s.Require().NoError(err)
	s.Len(listed, 5)
	s.Equal("100", listed[0].OrderID)

	// A second replace swaps the snapshot entirely.
	err = store.ReplaceRows(s.ctx, sampleRows(2, now))
	s.Require().NoError(err)

	listed, err = store.ListRows(s.ctx)
	s.Require().NoError(err)
	s.Len(listed, 2)
}

func (s *PostgresIntegrationSuite) TestOrderStore_Summary() {
	store := NewOrderStore(s.db, 100)
	now := time.Now().UTC().Truncate(time.Microsecond)

	got, err := store.GetSummary(s.ctx)
	s.Require().NoError(err)
	s.Nil(got, "no summary before the first sync")

	summary := &domain.OrdersSummary{
		TotalOrders: 3,
		TotalRows:   5,
		SummaryTotals: domain.SummaryTotals{
			GrossTotal:     1000.50,
			FeesTotal:      100.05,
			ShippingTotal:  50,
			DiscountsTotal: 25,
			NetTotal:       850.45,
		},
		SyncedAt: now,
	}
	s.Require().NoError(store.ReplaceSummary(s.ctx, summary))

	got, err = store.GetSummary(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(3, got.TotalOrders)
	s.Equal(1000.50, got.GrossTotal)
	s.Equal(850.45, got.NetTotal)

	// Replace keeps exactly one live record.
	summary.TotalOrders = 4
	s.Require().NoError(store.ReplaceSummary(s.ctx, summary))

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM meli_orders_summary"))
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestOrderStore_ReplaceIsTransactional() {
	store := NewOrderStore(s.db, 100)
	txManager := NewTransactionManager(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(store.ReplaceRows(s.ctx, sampleRows(3, now)))

	// A failing transaction leaves the previous snapshot intact.
	err := txManager.WithTransaction(s.ctx, func(txCtx context.Context) error {
		if err := store.ReplaceRows(txCtx, sampleRows(1, now)); err != nil {
			return err
		}
		return errors.New("boom")
	})
	s.Error(err)

	listed, err := store.ListRows(s.ctx)
	s.Require().NoError(err)
	s.Len(listed, 3)
}

func (s *PostgresIntegrationSuite) TestProductStore_UpsertAndDeleteMissing() {
	store := NewProductStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	price := 99.9
	tts := 12.5
	products := []domain.Product{
		{ItemID: "MLB1", Title: "Widget", Price: &price, SoldQuantity: 4, TTSHours: &tts, SyncedAt: now},
		{ItemID: "MLB2", Title: "Gadget", SyncedAt: now},
		{ItemID: "MLB3", Title: "Gizmo", SyncedAt: now},
	}
	s.Require().NoError(store.UpsertBatch(s.ctx, products))

	listed, err := store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(listed, 3)
	// tts_hours ascending, NULLs last.
	s.Equal("MLB1", listed[0].ItemID)

	// Re-upsert updates in place.
	products[0].Title = "Widget v2"
	s.Require().NoError(store.UpsertBatch(s.ctx, products[:1]))

	listed, err = store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(listed, 3)
	s.Equal("Widget v2", listed[0].Title)

	// Delisted items disappear.
	deleted, err := store.DeleteMissing(s.ctx, []string{"MLB1", "MLB3"})
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	listed, err = store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(listed, 2)
}

func (s *PostgresIntegrationSuite) TestProductStore_DeleteMissingEmptyKeepIsNoop() {
	store := NewProductStore(s.db)
	now := time.Now().UTC()

	s.Require().NoError(store.UpsertBatch(s.ctx, []domain.Product{{ItemID: "MLB1", SyncedAt: now}}))

	deleted, err := store.DeleteMissing(s.ctx, nil)
	s.Require().NoError(err)
	s.Zero(deleted, "an empty keep list must never wipe the catalog")
}

func (s *PostgresIntegrationSuite) TestSyncControlStore_Lifecycle() {
	store := NewSyncControlStore(s.db)

	control, err := store.Get(s.ctx, domain.SyncTypeOrders)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusIdle, control.Status)
	s.Nil(control.LastSyncAt)

	s.Require().NoError(store.MarkSyncing(s.ctx, domain.SyncTypeOrders))
	control, err = store.Get(s.ctx, domain.SyncTypeOrders)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusSyncing, control.Status)

	s.Require().NoError(store.MarkCompleted(s.ctx, domain.SyncTypeOrders, 25))
	control, err = store.Get(s.ctx, domain.SyncTypeOrders)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusCompleted, control.Status)
	s.Equal(25, control.TotalItems)
	s.Require().NotNil(control.LastSyncAt)
	firstSync := *control.LastSyncAt

	// A failed run records the error but keeps the last success time.
	s.Require().NoError(store.MarkError(s.ctx, domain.SyncTypeOrders, "upstream down"))
	control, err = store.Get(s.ctx, domain.SyncTypeOrders)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusError, control.Status)
	s.Require().NotNil(control.ErrorMessage)
	s.Equal("upstream down", *control.ErrorMessage)
	s.Require().NotNil(control.LastSyncAt)
	s.WithinDuration(firstSync, *control.LastSyncAt, time.Millisecond)
}

func (s *PostgresIntegrationSuite) TestSyncControlStore_IndependentPipelines() {
	store := NewSyncControlStore(s.db)

	s.Require().NoError(store.MarkCompleted(s.ctx, domain.SyncTypeOrders, 10))

	control, err := store.Get(s.ctx, domain.SyncTypeProducts)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusIdle, control.Status)
	s.Nil(control.LastSyncAt)
}

func (s *PostgresIntegrationSuite) TestTokenStore_SaveAndGet() {
	store := NewTokenStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	got, err := store.Get(s.ctx)
	s.Require().NoError(err)
	s.Nil(got)

	token := &domain.Token{
		UserID:       42,
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		ExpiresAt:    now.Add(6 * time.Hour),
		Scope:        "offline_access read write",
		UpdatedAt:    now,
	}
	s.Require().NoError(store.Save(s.ctx, token))

	got, err = store.Get(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("access", got.AccessToken)

	// Saving again for the same user rotates in place.
	token.AccessToken = "access-2"
	token.UpdatedAt = now.Add(time.Minute)
	s.Require().NoError(store.Save(s.ctx, token))

	got, err = store.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("access-2", got.AccessToken)

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM meli_tokens"))
	s.Equal(1, count)
}
