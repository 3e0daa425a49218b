package domain

import "time"

// ReconciledRow is one line item of an order after reconciliation.
// The order-level aggregates are denormalized onto every row of the
// same order so consumers never need a join.
type ReconciledRow struct {
	ID                  int64     `db:"id" json:"-"`
	OrderID             string    `db:"order_id" json:"order_id"`
	UnitPrice           float64   `db:"unit_price" json:"unit_price"`
	Quantity            int       `db:"quantity" json:"quantity"`
	GrossItem           float64   `db:"gross_item" json:"gross_item"`
	GrossItemsOrder     float64   `db:"gross_items_order" json:"gross_items_order"`
	SaleFeeTotalOrder   float64   `db:"sale_fee_total_order" json:"sale_fee_total_order"`
	MarketplaceFeeOrder float64   `db:"marketplace_fee_order" json:"marketplace_fee_order"`
	SellerShippingCost  float64   `db:"seller_shipping_cost" json:"seller_shipping_cost"`
	NetOrderSimplified  float64   `db:"net_order_simplified" json:"net_order_simplified"`
	DiscountTotalOrder  float64   `db:"discount_total_order" json:"discount_total_order"`
	SyncedAt            time.Time `db:"synced_at" json:"-"`
}

// OrderTotals holds the order-level aggregates of one reconciled order.
type OrderTotals struct {
	Gross    float64
	Fee      float64
	Shipping float64
	Discount float64
	Net      float64
}

// SummaryTotals is the financial summary across all orders of one run.
// JSON keys match the wire format served to dashboard consumers.
type SummaryTotals struct {
	GrossTotal     float64 `db:"bruto_total" json:"bruto_total"`
	FeesTotal      float64 `db:"taxas_total" json:"taxas_total"`
	ShippingTotal  float64 `db:"frete_seller_total" json:"frete_seller_total"`
	DiscountsTotal float64 `db:"descontos_total" json:"descontos_total"`
	NetTotal       float64 `db:"liquido_total" json:"liquido_total"`
}

// OrdersSummary is the single live summary record per orders sync run.
type OrdersSummary struct {
	ID          int64     `db:"id"`
	TotalOrders int       `db:"total_pedidos"`
	TotalRows   int       `db:"total_linhas"`
	SummaryTotals
	SyncedAt time.Time `db:"synced_at"`
}
