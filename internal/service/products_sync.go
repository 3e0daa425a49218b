package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meli_sync/internal/domain"
	"meli_sync/internal/money"
	"meli_sync/internal/source/meli"
)

// ProductsSyncService keeps the cached catalog aligned with the
// seller's live listings: upsert what exists upstream, delete what
// disappeared.
type ProductsSyncService struct {
	source    ItemSource
	store     ProductStore
	control   SyncControlStore
	publisher Publisher
	logger    *slog.Logger

	mu sync.Mutex
}

func NewProductsSyncService(
	source ItemSource,
	store ProductStore,
	control SyncControlStore,
	publisher Publisher,
	logger *slog.Logger,
) *ProductsSyncService {
	return &ProductsSyncService{
		source:    source,
		store:     store,
		control:   control,
		publisher: publisher,
		logger:    logger.With("component", "products_sync"),
	}
}

// Sync executes one full catalog run.
func (s *ProductsSyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	start := time.Now()
	s.logger.Info("starting products sync")

	if err := s.control.MarkSyncing(ctx, domain.SyncTypeProducts); err != nil {
		return nil, fmt.Errorf("mark syncing: %w", err)
	}

	stats, err := s.run(ctx, start)
	if err != nil {
		s.logger.Error("products sync failed", "error", err)
		if markErr := s.control.MarkError(ctx, domain.SyncTypeProducts, err.Error()); markErr != nil {
			s.logger.Error("failed to record sync error", "error", markErr)
		}
		return nil, err
	}

	if err := s.control.MarkCompleted(ctx, domain.SyncTypeProducts, stats.Products); err != nil {
		s.logger.Error("failed to record sync completion", "error", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSyncCompleted(ctx, stats, nil); err != nil {
			s.logger.Error("failed to publish sync event", "error", err)
		}
	}

	s.logger.Info("products sync completed",
		"products", stats.Products,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (s *ProductsSyncService) run(ctx context.Context, start time.Time) (*domain.SyncStats, error) {
	items, err := s.source.FetchItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}

	now := time.Now().UTC()
	products := make([]domain.Product, 0, len(items))
	keepIDs := make([]string, 0, len(items))
	for _, item := range items {
		products = append(products, itemToProduct(item, now))
		keepIDs = append(keepIDs, item.ID)
	}

	if len(products) > 0 {
		if err := s.store.UpsertBatch(ctx, products); err != nil {
			return nil, fmt.Errorf("upsert products: %w", err)
		}
		deleted, err := s.store.DeleteMissing(ctx, keepIDs)
		if err != nil {
			return nil, fmt.Errorf("delete missing products: %w", err)
		}
		if deleted > 0 {
			s.logger.Info("removed delisted products", "count", deleted)
		}
	} else {
		// Same rule as orders: an empty upstream result never wipes
		// the cache.
		s.logger.Warn("products sync returned no items, keeping cached catalog")
	}

	return &domain.SyncStats{
		SyncType: domain.SyncTypeProducts,
		Products: len(products),
		Duration: time.Since(start),
	}, nil
}

// itemToProduct maps an upstream listing onto the cached shape.
func itemToProduct(item meli.Item, now time.Time) domain.Product {
	p := domain.Product{
		ItemID:            item.ID,
		Title:             item.Title,
		Price:             item.Price,
		AvailableQuantity: item.AvailableQuantity,
		SoldQuantity:      item.SoldQuantity,
		SyncedAt:          now,
	}

	if item.Permalink != "" {
		p.Permalink = &item.Permalink
	}
	if len(item.Pictures) > 0 && item.Pictures[0].SecureURL != "" {
		p.Photo = &item.Pictures[0].SecureURL
	}
	if item.BuyingMode != "" {
		p.BuyingMode = &item.BuyingMode
	}
	if item.Shipping.LogisticType != "" {
		p.LogisticType = &item.Shipping.LogisticType
	}
	for _, attr := range item.Attributes {
		if attr.ValueName == nil || *attr.ValueName == "" {
			continue
		}
		switch attr.ID {
		case "BRAND":
			p.Brand = attr.ValueName
		case "GTIN":
			p.GTIN = attr.ValueName
		case "SELLER_SKU":
			p.SKU = attr.ValueName
		}
	}

	if startTime, err := time.Parse(time.RFC3339, item.StartTime); err == nil {
		p.StartTime = &startTime
		p.TTSHours = ttsHours(startTime, item.SoldQuantity, now)
	}

	return p
}

// ttsHours is average time-to-sale: hours of listing age per unit
// sold. Nil when nothing sold yet or the listing start is in the
// future.
func ttsHours(startTime time.Time, soldQuantity int, now time.Time) *float64 {
	if soldQuantity <= 0 {
		return nil
	}
	hours := now.Sub(startTime).Hours()
	if hours <= 0 {
		return nil
	}
	v := money.Round2(hours / float64(soldQuantity))
	return &v
}

// CachedProducts is the response payload served from the cache.
// Products come ordered by time-to-sale, fastest sellers first.
type CachedProducts struct {
	TotalProducts int              `json:"total_produtos"`
	Products      []domain.Product `json:"produtos"`
	LastSyncAt    *time.Time       `json:"ultimo_sync"`
	SyncStatus    string           `json:"sync_status"`
}

// GetCached returns the cached catalog, syncing first when the cache
// is cold.
func (s *ProductsSyncService) GetCached(ctx context.Context) (*CachedProducts, error) {
	products, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	if len(products) == 0 {
		if _, err := s.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			return nil, err
		}
		products, err = s.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
	}
	if products == nil {
		products = []domain.Product{}
	}

	control, err := s.control.Get(ctx, domain.SyncTypeProducts)
	if err != nil {
		return nil, fmt.Errorf("get sync control: %w", err)
	}

	return &CachedProducts{
		TotalProducts: len(products),
		Products:      products,
		LastSyncAt:    control.LastSyncAt,
		SyncStatus:    control.Status,
	}, nil
}

// Status returns the current sync control record for this pipeline.
func (s *ProductsSyncService) Status(ctx context.Context) (*domain.SyncControl, error) {
	return s.control.Get(ctx, domain.SyncTypeProducts)
}
