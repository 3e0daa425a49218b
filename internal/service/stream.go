package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"meli_sync/internal/domain"
	"meli_sync/internal/money"
)

// StreamOrders runs the live fetch-and-reconcile pipeline and writes
// the result to w as one JSON document, row by row, so large sellers
// see bytes flowing long before the last order is reconciled. The
// stream bypasses the cache entirely: nothing is persisted.
//
// The upstream fetch happens before the first byte is written, so a
// fetch failure can still surface as a clean error response.
func (s *OrdersSyncService) StreamOrders(ctx context.Context, w io.Writer) error {
	snapshot, err := s.source.FetchOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetch orders: %w", err)
	}

	syncedAt := time.Now().UTC()

	if _, err := io.WriteString(w, "{\n  \"vendas_detalhadas\": [\n"); err != nil {
		return err
	}

	var totals domain.SummaryTotals
	totalRows := 0
	for _, order := range snapshot.Orders {
		rows, orderTotals := ReconcileOrder(order, snapshot.Discounts, snapshot.Shipments, syncedAt)
		if len(rows) == 0 {
			continue
		}

		totals.GrossTotal += orderTotals.Gross
		totals.FeesTotal += orderTotals.Fee
		totals.ShippingTotal += orderTotals.Shipping
		totals.DiscountsTotal += orderTotals.Discount
		totals.NetTotal += orderTotals.Net

		for _, row := range rows {
			prefix := "    "
			if totalRows > 0 {
				prefix = ",\n    "
			}
			data, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("marshal row: %w", err)
			}
			if _, err := io.WriteString(w, prefix); err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
			totalRows++
		}
	}

	resumo := domain.SummaryTotals{
		GrossTotal:     money.Round2(totals.GrossTotal),
		FeesTotal:      money.Round2(totals.FeesTotal),
		ShippingTotal:  money.Round2(totals.ShippingTotal),
		DiscountsTotal: money.Round2(totals.DiscountsTotal),
		NetTotal:       money.Round2(totals.NetTotal),
	}
	resumoJSON, err := json.Marshal(resumo)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tail := fmt.Sprintf("\n  ],\n  \"total_pedidos\": %d,\n  \"total_linhas\": %d,\n  \"resumo\": %s\n}\n",
		len(snapshot.Orders), totalRows, resumoJSON)
	if _, err := io.WriteString(w, tail); err != nil {
		return err
	}
	return nil
}
