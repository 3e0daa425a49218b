package service

import (
	"strconv"
	"time"

	"meli_sync/internal/domain"
	"meli_sync/internal/money"
	"meli_sync/internal/source/meli"
)

// ReconcileOrder converts one raw order plus its related discount and
// shipment payloads into one row per line item and the order totals.
// Every row of the order carries the same order-level aggregates.
func ReconcileOrder(order meli.Order, discounts map[int64]meli.Discount, shipments map[int64]meli.Shipment, syncedAt time.Time) ([]domain.ReconciledRow, domain.OrderTotals) {
	discount := meli.DiscountTotal(discounts[order.ID])
	shippingCost := meli.SellerShippingCost(order, shipments)

	var grossItems, saleFeeTotal float64
	rows := make([]domain.ReconciledRow, 0, len(order.OrderItems))

	for _, item := range order.OrderItems {
		unitPrice := money.ToMoney(item.UnitPrice, 0)
		grossItem := unitPrice * float64(item.Quantity)
		saleFeeItem := money.ToMoney(item.SaleFee, 0) * float64(item.Quantity)

		grossItems += grossItem
		saleFeeTotal += saleFeeItem

		rows = append(rows, domain.ReconciledRow{
			OrderID:            strconv.FormatInt(order.ID, 10),
			UnitPrice:          money.Round2(unitPrice),
			Quantity:           item.Quantity,
			GrossItem:          money.Round2(grossItem),
			DiscountTotalOrder: money.Round2(discount),
			SyncedAt:           syncedAt,
		})
	}

	marketplaceFee := meli.MarketplaceFee(order, saleFeeTotal)
	net := grossItems - marketplaceFee - shippingCost

	totals := domain.OrderTotals{
		Gross:    money.Round2(grossItems),
		Fee:      money.Round2(marketplaceFee),
		Shipping: money.Round2(shippingCost),
		Discount: money.Round2(discount),
		Net:      money.Round2(net),
	}

	saleFeeRounded := money.Round2(saleFeeTotal)
	for i := range rows {
		rows[i].GrossItemsOrder = totals.Gross
		rows[i].SaleFeeTotalOrder = saleFeeRounded
		rows[i].MarketplaceFeeOrder = totals.Fee
		rows[i].SellerShippingCost = totals.Shipping
		rows[i].NetOrderSimplified = totals.Net
	}

	return rows, totals
}

// ReconcileSnapshot reconciles every order of a snapshot and builds
// the run summary. Orders without line items count toward the order
// total but contribute no rows and no money.
func ReconcileSnapshot(snapshot *meli.OrdersSnapshot, syncedAt time.Time) ([]domain.ReconciledRow, *domain.OrdersSummary) {
	var allRows []domain.ReconciledRow
	var totals domain.SummaryTotals

	for _, order := range snapshot.Orders {
		rows, orderTotals := ReconcileOrder(order, snapshot.Discounts, snapshot.Shipments, syncedAt)
		if len(rows) == 0 {
			continue
		}
		allRows = append(allRows, rows...)

		totals.GrossTotal += orderTotals.Gross
		totals.FeesTotal += orderTotals.Fee
		totals.ShippingTotal += orderTotals.Shipping
		totals.DiscountsTotal += orderTotals.Discount
		totals.NetTotal += orderTotals.Net
	}

	summary := &domain.OrdersSummary{
		TotalOrders: len(snapshot.Orders),
		TotalRows:   len(allRows),
		SummaryTotals: domain.SummaryTotals{
			GrossTotal:     money.Round2(totals.GrossTotal),
			FeesTotal:      money.Round2(totals.FeesTotal),
			ShippingTotal:  money.Round2(totals.ShippingTotal),
			DiscountsTotal: money.Round2(totals.DiscountsTotal),
			NetTotal:       money.Round2(totals.NetTotal),
		},
		SyncedAt: syncedAt,
	}

	return allRows, summary
}
