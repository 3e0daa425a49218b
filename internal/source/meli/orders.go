package meli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
)

// ErrNoSeller is returned when the metadata call cannot identify the
// account the credential belongs to. Without a seller id no order
// search is possible, so the whole run aborts.
var ErrNoSeller = errors.New("could not identify seller")

// FetchOrders acquires the complete upstream snapshot for one sync
// run in three phases:
//
//  1. identify the seller and learn the total order count from page 0
//  2. fetch all remaining search pages concurrently
//  3. fetch every order's discounts plus every distinct shipment,
//     awaited together at a single synchronization point
//
// Individual page or sub-resource failures degrade to empty payloads;
// only a missing credential or unidentifiable seller fails the run.
// Result ordering follows concurrent completion, so consumers must key
// by order id or shipment id, never by index.
func (c *Client) FetchOrders(ctx context.Context) (*OrdersSnapshot, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}

	// Phase 1: seller id + first page.
	var me userResponse
	if res, err := c.getJSON(ctx, token, "/users/me", nil, nil, false, &me); res != outcomeOK || me.ID == 0 {
		if err == nil {
			err = ErrNoSeller
		}
		return nil, fmt.Errorf("identify seller: %w", err)
	}

	firstPage, res, err := c.searchOrders(ctx, token, me.ID, 0)
	if res != outcomeOK {
		c.logger.Warn("first order page failed, treating as empty", "error", err)
		firstPage = orderSearchResponse{}
	}

	total := firstPage.Paging.Total
	orders := firstPage.Results

	c.logger.Info("order search started",
		"seller_id", me.ID,
		"total", total,
	)

	// One admission gate shared by every fan-out phase of this run.
	sem := make(chan struct{}, c.maxConcurrent)

	// Phase 2: remaining pages in parallel.
	if total > c.pageSize {
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for offset := c.pageSize; offset < total; offset += c.pageSize {
			wg.Add(1)
			go func(offset int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				page, res, err := c.searchOrders(ctx, token, me.ID, offset)
				if res != outcomeOK {
					c.logger.Warn("order page failed", "offset", offset, "error", err)
					return
				}
				mu.Lock()
				orders = append(orders, page.Results...)
				mu.Unlock()
			}(offset)
		}
		wg.Wait()
	}

	c.logger.Info("orders loaded", "count", len(orders))

	// Phase 3: discounts for every order + every distinct shipment,
	// all behind the same gate, one wait covering both groups.
	shipmentIDs := distinctShipmentIDs(orders)

	snapshot := &OrdersSnapshot{
		SellerID:  me.ID,
		Orders:    orders,
		Discounts: make(map[int64]Discount, len(orders)),
		Shipments: make(map[int64]Shipment, len(shipmentIDs)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, order := range orders {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var d Discount
			res, err := c.getJSON(ctx, token, fmt.Sprintf("/orders/%d/discounts", orderID), nil, nil, true, &d)
			if res == outcomeFailed {
				c.logger.Warn("discount fetch failed", "order_id", orderID, "error", err)
				d = Discount{}
			}
			mu.Lock()
			snapshot.Discounts[orderID] = d
			mu.Unlock()
		}(order.ID)
	}
	for _, sid := range shipmentIDs {
		wg.Add(1)
		go func(sid int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var sh Shipment
			res, err := c.getJSON(ctx, token, fmt.Sprintf("/shipments/%d", sid), nil, nil, true, &sh)
			if res == outcomeFailed {
				c.logger.Warn("shipment fetch failed", "shipment_id", sid, "error", err)
				sh = Shipment{}
			}
			mu.Lock()
			snapshot.Shipments[sid] = sh
			mu.Unlock()
		}(sid)
	}
	wg.Wait()

	c.logger.Info("sub-resources loaded",
		"discounts", len(snapshot.Discounts),
		"shipments", len(snapshot.Shipments),
	)

	return snapshot, nil
}

func (c *Client) searchOrders(ctx context.Context, token string, sellerID int64, offset int) (orderSearchResponse, outcome, error) {
	params := url.Values{}
	params.Set("seller", strconv.FormatInt(sellerID, 10))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("sort", "date_desc")
	if c.dateFrom != "" {
		params.Set("order.date_created.from", c.dateFrom)
	}

	var page orderSearchResponse
	res, err := c.getJSON(ctx, token, "/orders/search", params, nil, false, &page)
	return page, res, err
}

func distinctShipmentIDs(orders []Order) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, o := range orders {
		if o.Shipping.ID == nil {
			continue
		}
		if _, ok := seen[*o.Shipping.ID]; ok {
			continue
		}
		seen[*o.Shipping.ID] = struct{}{}
		ids = append(ids, *o.Shipping.ID)
	}
	return ids
}
