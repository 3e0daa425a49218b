package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"meli_sync/internal/domain"
)

// OrderStore persists reconciled order rows and the run summary.
// Writes are full-snapshot replacements: delete everything, batch
// insert the new rows. Run inside a transaction via TransactionManager
// so readers never observe the half-empty window.
type OrderStore struct {
	db        *sqlx.DB
	batchSize int
}

func NewOrderStore(db *sqlx.DB, batchSize int) *OrderStore {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &OrderStore{db: db, batchSize: batchSize}
}

const orderRowColumns = `order_id, unit_price, quantity, gross_item,
	gross_items_order, sale_fee_total_order, marketplace_fee_order,
	seller_shipping_cost, net_order_simplified, discount_total_order, synced_at`

// ReplaceRows swaps the previous row snapshot for rows.
func (s *OrderStore) ReplaceRows(ctx context.Context, rows []domain.ReconciledRow) error {
	exec := GetExecutor(ctx, s.db)

	if _, err := exec.ExecContext(ctx, "DELETE FROM meli_order_rows"); err != nil {
		return fmt.Errorf("clear order rows: %w", err)
	}

	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.insertBatch(ctx, exec, rows[start:end]); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (s *OrderStore) insertBatch(ctx context.Context, exec sqlx.ExtContext, rows []domain.ReconciledRow) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO meli_order_rows (" + orderRowColumns + ") VALUES ")

	const fields = 11
	args := make([]interface{}, 0, len(rows)*fields)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for f := 0; f < fields; f++ {
			if f > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*fields + f + 1))
		}
		sb.WriteString(")")
		args = append(args,
			r.OrderID, r.UnitPrice, r.Quantity, r.GrossItem,
			r.GrossItemsOrder, r.SaleFeeTotalOrder, r.MarketplaceFeeOrder,
			r.SellerShippingCost, r.NetOrderSimplified, r.DiscountTotalOrder,
			r.SyncedAt,
		)
	}

	_, err := exec.ExecContext(ctx, sb.String(), args...)
	return err
}

// ReplaceSummary swaps the single live summary record.
func (s *OrderStore) ReplaceSummary(ctx context.Context, summary *domain.OrdersSummary) error {
	exec := GetExecutor(ctx, s.db)

	if _, err := exec.ExecContext(ctx, "DELETE FROM meli_orders_summary"); err != nil {
		return fmt.Errorf("clear summary: %w", err)
	}

	_, err := exec.ExecContext(ctx, `
		INSERT INTO meli_orders_summary (
			total_pedidos, total_linhas, bruto_total, taxas_total,
			frete_seller_total, descontos_total, liquido_total, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		summary.TotalOrders,
		summary.TotalRows,
		summary.GrossTotal,
		summary.FeesTotal,
		summary.ShippingTotal,
		summary.DiscountsTotal,
		summary.NetTotal,
		summary.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// ListRows returns the full cached snapshot ordered by insertion.
func (s *OrderStore) ListRows(ctx context.Context) ([]domain.ReconciledRow, error) {
	query := `
		SELECT id, ` + orderRowColumns + `
		FROM meli_order_rows
		ORDER BY id`

	var rows []domain.ReconciledRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetSummary returns the live summary record, nil when none exists.
func (s *OrderStore) GetSummary(ctx context.Context) (*domain.OrdersSummary, error) {
	query := `
		SELECT id, total_pedidos, total_linhas, bruto_total, taxas_total,
		       frete_seller_total, descontos_total, liquido_total, synced_at
		FROM meli_orders_summary
		LIMIT 1`

	var summary domain.OrdersSummary
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &summary, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
