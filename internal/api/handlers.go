package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"meli_sync/internal/source/meli"
	"meli_sync/internal/token"
)

type handlers struct {
	orders   OrdersService
	products ProductsService
	ads      AdsClient
	tokens   TokenInspector
	logger   *slog.Logger
}

func newHandlers(
	orders OrdersService,
	products ProductsService,
	ads AdsClient,
	tokens TokenInspector,
	logger *slog.Logger,
) *handlers {
	return &handlers{
		orders:   orders,
		products: products,
		ads:      ads,
		tokens:   tokens,
		logger:   logger,
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) getOrders(c *gin.Context) {
	cached, err := h.orders.GetCached(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, cached)
}

// flushWriter pushes every chunk to the client immediately so large
// responses stream instead of accumulating in the response buffer.
type flushWriter struct {
	w gin.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.w.Flush()
	return n, err
}

// streamOrders serves the live fetch-and-reconcile pipeline as one
// incrementally written JSON document. An upstream failure surfaces as
// a clean 502 because nothing is written before the fetch completes.
func (h *handlers) streamOrders(c *gin.Context) {
	c.Header("Content-Type", "application/json; charset=utf-8")

	if err := h.orders.StreamOrders(c.Request.Context(), flushWriter{c.Writer}); err != nil {
		if !c.Writer.Written() {
			respondError(c, http.StatusBadGateway, err)
			return
		}
		// Too late to change the status, the client gets a truncated
		// body and a closed connection.
		h.logger.Error("stream aborted mid-response", "error", err)
		c.Abort()
	}
}

type syncTriggeredResponse struct {
	Message    string     `json:"message"`
	TotalItems int        `json:"total_items"`
	LastSyncAt *time.Time `json:"ultimo_sync,omitempty"`
	Duration   string     `json:"duration"`
}

func (h *handlers) syncOrders(c *gin.Context) {
	stats, err := h.orders.Sync(c.Request.Context())
	if err != nil {
		respondError(c, syncErrorStatus(err), err)
		return
	}

	resp := syncTriggeredResponse{
		Message:    "orders sync completed",
		TotalItems: stats.Rows,
		Duration:   stats.Duration.String(),
	}
	if control, err := h.orders.Status(c.Request.Context()); err == nil {
		resp.LastSyncAt = control.LastSyncAt
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) getProducts(c *gin.Context) {
	cached, err := h.products.GetCached(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, cached)
}

func (h *handlers) syncProducts(c *gin.Context) {
	stats, err := h.products.Sync(c.Request.Context())
	if err != nil {
		respondError(c, syncErrorStatus(err), err)
		return
	}

	resp := syncTriggeredResponse{
		Message:    "products sync completed",
		TotalItems: stats.Products,
		Duration:   stats.Duration.String(),
	}
	if control, err := h.products.Status(c.Request.Context()); err == nil {
		resp.LastSyncAt = control.LastSyncAt
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) getProductAds(c *gin.Context) {
	period := 30
	if raw := c.Query("period"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, fmt.Errorf("invalid period %q", raw))
			return
		}
		period = parsed
	}
	if !meli.AllowedAdsPeriod(period) {
		respondError(c, http.StatusBadRequest,
			fmt.Errorf("period must be one of 7, 15, 30, 60, 90, got %d", period))
		return
	}

	report, err := h.ads.FetchProductAds(c.Request.Context(), period)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrNoToken):
			respondError(c, http.StatusUnauthorized, err)
		case errors.Is(err, meli.ErrNoAdvertiser):
			respondError(c, http.StatusNotFound, err)
		default:
			respondError(c, http.StatusBadGateway, err)
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

type tokenStatusResponse struct {
	UserID    int64     `json:"user_id"`
	TokenType string    `json:"token_type"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn string    `json:"expires_in"`
	Valid     bool      `json:"valid"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *handlers) tokenStatus(c *gin.Context) {
	stored, err := h.tokens.Status(c.Request.Context())
	if err != nil {
		if errors.Is(err, token.ErrNoToken) {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, tokenStatusResponse{
		UserID:    stored.UserID,
		TokenType: stored.TokenType,
		Scope:     stored.Scope,
		ExpiresAt: stored.ExpiresAt,
		ExpiresIn: time.Until(stored.ExpiresAt).Round(time.Second).String(),
		Valid:     time.Now().Before(stored.ExpiresAt),
		UpdatedAt: stored.UpdatedAt,
	})
}
