// Package api exposes the HTTP surface: cached reads, manual sync
// triggers, the streaming endpoint and the ads pass-through.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"meli_sync/internal/domain"
	"meli_sync/internal/service"
	"meli_sync/internal/source/meli"
)

// OrdersService is the slice of the orders pipeline the API needs.
type OrdersService interface {
	GetCached(ctx context.Context) (*service.CachedOrders, error)
	Sync(ctx context.Context) (*domain.SyncStats, error)
	Status(ctx context.Context) (*domain.SyncControl, error)
	StreamOrders(ctx context.Context, w io.Writer) error
}

// ProductsService is the slice of the catalog pipeline the API needs.
type ProductsService interface {
	GetCached(ctx context.Context) (*service.CachedProducts, error)
	Sync(ctx context.Context) (*domain.SyncStats, error)
	Status(ctx context.Context) (*domain.SyncControl, error)
}

// AdsClient fetches the Product Ads report live.
type AdsClient interface {
	FetchProductAds(ctx context.Context, periodDays int) (*meli.AdsReport, error)
}

// TokenInspector exposes credential metadata without the secrets.
type TokenInspector interface {
	Status(ctx context.Context) (*domain.Token, error)
}

type Server struct {
	engine *gin.Engine
	logger *slog.Logger
}

func NewServer(
	orders OrdersService,
	products ProductsService,
	ads AdsClient,
	tokens TokenInspector,
	logger *slog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	s := &Server{engine: engine, logger: logger.With("component", "api")}

	h := newHandlers(orders, products, ads, tokens, s.logger)

	engine.GET("/healthz", h.health)
	engine.GET("/myorders", h.getOrders)
	engine.GET("/myorders/stream", h.streamOrders)
	engine.POST("/myorders/sync", h.syncOrders)
	engine.GET("/myproducts", h.getProducts)
	engine.POST("/myproducts/sync", h.syncProducts)
	engine.GET("/productads", h.getProductAds)
	engine.GET("/token/status", h.tokenStatus)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		logger.Info("request", attrs...)
	}
}

// errResponse is the uniform error body.
type errResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, errResponse{Error: err.Error()})
}

// syncErrorStatus maps a sync trigger error onto an HTTP status.
func syncErrorStatus(err error) int {
	if errors.Is(err, service.ErrSyncInProgress) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
