package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"meli_sync/internal/domain"
)

// ProductStore caches catalog items. Unlike the order snapshot this is
// diff-based: upsert by item id, then delete whatever no longer exists
// upstream.
type ProductStore struct {
	db *sqlx.DB
}

func NewProductStore(db *sqlx.DB) *ProductStore {
	return &ProductStore{db: db}
}

const productBatchSize = 100

// UpsertBatch inserts or updates products by item id.
func (s *ProductStore) UpsertBatch(ctx context.Context, products []domain.Product) error {
	exec := GetExecutor(ctx, s.db)

	for start := 0; start < len(products); start += productBatchSize {
		end := start + productBatchSize
		if end > len(products) {
			end = len(products)
		}
		if err := s.upsertChunk(ctx, exec, products[start:end]); err != nil {
			return fmt.Errorf("upsert products %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (s *ProductStore) upsertChunk(ctx context.Context, exec sqlx.ExtContext, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO meli_products (
		item_id, title, price, available_quantity, sold_quantity,
		start_time, permalink, photo, buying_mode, logistic_type,
		brand, gtin, sku, tts_hours, synced_at
	) VALUES `)

	const fields = 15
	args := make([]interface{}, 0, len(products)*fields)
	for i, p := range products {
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
			p.ItemID, p.Title, p.Price, p.AvailableQuantity, p.SoldQuantity,
			p.StartTime, p.Permalink, p.Photo, p.BuyingMode, p.LogisticType,
			p.Brand, p.GTIN, p.SKU, p.TTSHours, p.SyncedAt,
		)
	}

	sb.WriteString(` ON CONFLICT (item_id) DO UPDATE SET
		title = EXCLUDED.title,
		price = EXCLUDED.price,
		available_quantity = EXCLUDED.available_quantity,
		sold_quantity = EXCLUDED.sold_quantity,
		start_time = EXCLUDED.start_time,
		permalink = EXCLUDED.permalink,
		photo = EXCLUDED.photo,
		buying_mode = EXCLUDED.buying_mode,
		logistic_type = EXCLUDED.logistic_type,
		brand = EXCLUDED.brand,
		gtin = EXCLUDED.gtin,
		sku = EXCLUDED.sku,
		tts_hours = EXCLUDED.tts_hours,
		synced_at = EXCLUDED.synced_at`)

	_, err := exec.ExecContext(ctx, sb.String(), args...)
	return err
}

// DeleteMissing removes items whose id no longer appears upstream.
// Returns the number of tombstoned rows.
func (s *ProductStore) DeleteMissing(ctx context.Context, keepIDs []string) (int64, error) {
	if len(keepIDs) == 0 {
		return 0, nil
	}

	exec := GetExecutor(ctx, s.db)
	result, err := exec.ExecContext(ctx,
		"DELETE FROM meli_products WHERE NOT (item_id = ANY($1))",
		pq.Array(keepIDs),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// List returns all cached products ordered by time-to-sale, best
// sellers first, never-sold items last.
func (s *ProductStore) List(ctx context.Context) ([]domain.Product, error) {
	query := `
		SELECT item_id, title, price, available_quantity, sold_quantity,
		       start_time, permalink, photo, buying_mode, logistic_type,
		       brand, gtin, sku, tts_hours, synced_at
		FROM meli_products
		ORDER BY tts_hours ASC NULLS LAST`

	var products []domain.Product
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &products, query); err != nil {
		return nil, err
	}
	return products, nil
}
