package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{ err error }

func (s staticTokens) Token(ctx context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "test-token", nil
}

func testClient(t *testing.T, baseURL string, pageSize int) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(Config{
		BaseURL:        baseURL,
		PageSize:       pageSize,
		Timeout:        5 * time.Second,
		MaxConcurrent:  4,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}, staticTokens{}, logger)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetJSON_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]any{"id": 42})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 50)

	var out userResponse
	res, err := c.getJSON(context.Background(), "tok", "/users/me", nil, nil, false, &out)

	require.NoError(t, err)
	assert.Equal(t, outcomeOK, res)
	assert.Equal(t, int64(42), out.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 50)

	res, err := c.getJSON(context.Background(), "tok", "/users/me", nil, nil, false, nil)

	assert.Equal(t, outcomeFailed, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_404Allowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 50)

	var d Discount
	res, err := c.getJSON(context.Background(), "tok", "/orders/1/discounts", nil, nil, true, &d)

	require.NoError(t, err)
	assert.Equal(t, outcomeEmpty, res)
	assert.Nil(t, d.Amounts)
}

func TestGetJSON_404NotAllowedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 50)

	res, _ := c.getJSON(context.Background(), "tok", "/orders/search", nil, nil, false, nil)

	assert.Equal(t, outcomeFailed, res)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_SendsAuthAndCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.Header.Get("Api-Version"))
		writeJSON(w, map[string]any{})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 50)

	res, err := c.getJSON(context.Background(), "tok", "/x", nil,
		map[string]string{"Api-Version": "1"}, false, nil)

	require.NoError(t, err)
	assert.Equal(t, outcomeOK, res)
}

func TestCalculateBackoff(t *testing.T) {
	c := testClient(t, "http://unused", 50)
	c.initialBackoff = 2 * time.Second
	c.maxBackoff = 8 * time.Second

	assert.Equal(t, 2*time.Second, c.calculateBackoff(1))
	assert.Equal(t, 4*time.Second, c.calculateBackoff(2))
	assert.Equal(t, 8*time.Second, c.calculateBackoff(3))
	assert.Equal(t, 8*time.Second, c.calculateBackoff(4))
}

func TestFetchOrders_FullPipeline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": 7})
	})
	mux.HandleFunc("/orders/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("seller"))
		assert.Equal(t, "date_desc", r.URL.Query().Get("sort"))

		offset := r.URL.Query().Get("offset")
		switch offset {
		case "0":
			writeJSON(w, map[string]any{
				"paging": map[string]any{"total": 3, "offset": 0, "limit": 2},
				"results": []map[string]any{
					{"id": 1, "order_items": []map[string]any{{"unit_price": 10.0, "quantity": 1}}, "shipping": map[string]any{"id": 100}},
					{"id": 2, "order_items": []map[string]any{{"unit_price": 20.0, "quantity": 1}}, "shipping": map[string]any{"id": 100}},
				},
			})
		default:
			writeJSON(w, map[string]any{
				"paging": map[string]any{"total": 3, "offset": 2, "limit": 2},
				"results": []map[string]any{
					{"id": 3, "order_items": []map[string]any{{"unit_price": 30.0, "quantity": 1}}},
				},
			})
		}
	})
	mux.HandleFunc("/orders/1/discounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"amounts": map[string]any{"total": 2.5}})
	})
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		// Orders without a discount payload 404 and degrade to zero.
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/shipments/100", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"costs": map[string]any{"seller": 15.0}})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL, 2)

	snapshot, err := c.FetchOrders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(7), snapshot.SellerID)
	assert.Len(t, snapshot.Orders, 3)
	assert.Len(t, snapshot.Discounts, 3)
	// Two orders share shipment 100: one distinct shipment fetch.
	assert.Len(t, snapshot.Shipments, 1)

	assert.Equal(t, 2.5, DiscountTotal(snapshot.Discounts[1]))
	assert.Equal(t, 0.0, DiscountTotal(snapshot.Discounts[2]))
	assert.Equal(t, 15.0, sellerShippingCostFromShipment(snapshot.Shipments[100]))
}

func TestFetchOrders_NoSeller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": 0})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 2)

	_, err := c.FetchOrders(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSeller)
}

func TestFetchOrders_TokenFailureIsFatal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := NewClient(Config{BaseURL: "http://unused", MaxAttempts: 1}, staticTokens{err: fmt.Errorf("no token")}, logger)

	_, err := c.FetchOrders(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire token")
}

func TestFetchItems_FullPipeline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": 7})
	})
	mux.HandleFunc("/users/7/items/search", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "0":
			writeJSON(w, map[string]any{"results": []string{"MLB1", "MLB2"}})
		default:
			writeJSON(w, map[string]any{"results": []string{}})
		}
	})
	mux.HandleFunc("/items/MLB1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "MLB1", "title": "Widget", "sold_quantity": 3})
	})
	mux.HandleFunc("/items/MLB2", func(w http.ResponseWriter, r *http.Request) {
		// A failed detail drops the item, not the run.
		w.WriteHeader(http.StatusInternalServerError)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL, 2)

	items, err := c.FetchItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "MLB1", items[0].ID)
	assert.Equal(t, "Widget", items[0].Title)
}

func TestFetchProductAds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/advertising/advertisers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.Header.Get("Api-Version"))
		assert.Equal(t, "PADS", r.URL.Query().Get("product_id"))
		writeJSON(w, map[string]any{
			"advertisers": []map[string]any{{"advertiser_id": 555, "site_id": "MLB"}},
		})
	})
	mux.HandleFunc("/advertising/MLB/advertisers/555/product_ads/campaigns/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.Header.Get("Api-Version"))
		assert.NotEmpty(t, r.URL.Query().Get("metrics"))
		writeJSON(w, map[string]any{
			"results": []map[string]any{
				{"id": 1, "metrics": map[string]any{"cost": 100.0, "total_amount": 300.0, "clicks": 40.0, "prints": 1000.0, "units_quantity": 5.0}},
				{"id": 2, "metrics": map[string]any{"cost": 50.0, "total_amount": 60.0, "clicks": 10.0, "prints": 200.0, "units_quantity": 1.0}},
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL, 50)

	report, err := c.FetchProductAds(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 30, report.PeriodDays)
	assert.Equal(t, 150.0, report.Dashboard.Investment)
	assert.Equal(t, 360.0, report.Dashboard.Revenue)
	assert.Equal(t, 6.0, report.Dashboard.Sales)
	assert.Equal(t, 1200.0, report.Dashboard.Impressions)
	assert.Equal(t, 50.0, report.Dashboard.Clicks)
	assert.Equal(t, 2.4, report.Dashboard.ROAS)
	assert.Len(t, report.Campaigns, 2)
}

func TestFetchProductAds_NoAdvertiser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"advertisers": []map[string]any{}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 50)

	_, err := c.FetchProductAds(context.Background(), 30)
	assert.ErrorIs(t, err, ErrNoAdvertiser)
}

func TestAllowedAdsPeriod(t *testing.T) {
	for _, days := range []int{7, 15, 30, 60, 90} {
		assert.True(t, AllowedAdsPeriod(days), "period %d", days)
	}
	for _, days := range []int{0, 1, 45, 100, -7} {
		assert.False(t, AllowedAdsPeriod(days), "period %d", days)
	}
}
