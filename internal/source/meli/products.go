package meli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
)

// FetchItems acquires the full catalog snapshot: the seller's item ids
// page by page, then every item's detail concurrently under the
// admission gate. A failed detail fetch drops that item from the
// snapshot instead of failing the run.
func (c *Client) FetchItems(ctx context.Context) ([]Item, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}

	var me userResponse
	if res, err := c.getJSON(ctx, token, "/users/me", nil, nil, false, &me); res != outcomeOK || me.ID == 0 {
		if err == nil {
			err = ErrNoSeller
		}
		return nil, fmt.Errorf("identify seller: %w", err)
	}

	itemIDs, err := c.fetchItemIDs(ctx, token, me.ID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("item ids loaded", "count", len(itemIDs))

	if len(itemIDs) == 0 {
		return nil, nil
	}

	sem := make(chan struct{}, c.maxConcurrent)
	items := make([]Item, 0, len(itemIDs))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range itemIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var item Item
			res, err := c.getJSON(ctx, token, "/items/"+id, nil, nil, false, &item)
			if res != outcomeOK {
				c.logger.Warn("item fetch failed", "item_id", id, "error", err)
				return
			}
			mu.Lock()
			items = append(items, item)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	c.logger.Info("items loaded", "count", len(items))
	return items, nil
}

// fetchItemIDs pages through the id search sequentially; the total is
// unknown until a page comes back short.
func (c *Client) fetchItemIDs(ctx context.Context, token string, userID int64) ([]string, error) {
	var ids []string
	offset := 0

	for {
		params := url.Values{}
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(c.pageSize))

		var page itemSearchResponse
		res, err := c.getJSON(ctx, token, fmt.Sprintf("/users/%d/items/search", userID), params, nil, false, &page)
		if res != outcomeOK {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("item id page failed, stopping pagination", "offset", offset, "error", err)
			break
		}
		if len(page.Results) == 0 {
			break
		}

		ids = append(ids, page.Results...)
		offset += c.pageSize
	}

	return ids, nil
}
