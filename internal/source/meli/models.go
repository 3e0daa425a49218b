package meli

// Upstream payload shapes. Monetary fields that arrive in more than
// one shape (number, locale string, nested object) are declared as any
// and coerced through the money package.

type userResponse struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

type paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type orderSearchResponse struct {
	Paging  paging  `json:"paging"`
	Results []Order `json:"results"`
}

// Order is one upstream order record from /orders/search.
type Order struct {
	ID         int64       `json:"id"`
	OrderItems []OrderItem `json:"order_items"`
	Shipping   Shipping    `json:"shipping"`

	// Direct cost and fee fields. Most orders carry none of these and
	// the extractors fall back to line-item sums or shipment lookups.
	ShippingCost   any `json:"shipping_cost"`
	MarketplaceFee any `json:"marketplace_fee"`
	TotalFees      any `json:"total_fees"`
	PaidAmountFees any `json:"paid_amount_fees"`
	FeesAmount     any `json:"fees_amount"`
}

type OrderItem struct {
	UnitPrice any `json:"unit_price"`
	Quantity  int `json:"quantity"`
	SaleFee   any `json:"sale_fee"`
}

type Shipping struct {
	ID         *int64 `json:"id"`
	Cost       any    `json:"cost"`
	SellerCost any    `json:"seller_cost"`
	SenderCost any    `json:"sender_cost"`
}

// Discount is the /orders/{id}/discounts payload. A 404 upstream is
// served as the zero value, which extracts to a zero total.
type Discount struct {
	Amounts *DiscountAmounts `json:"amounts"`
}

type DiscountAmounts struct {
	Total any `json:"total"`
}

// Shipment is the /shipments/{id} payload, shared across orders.
type Shipment struct {
	Seller         *ShipmentSeller `json:"seller"`
	SellerCost     any             `json:"seller_cost"`
	Costs          *ShipmentCosts  `json:"costs"`
	ShippingOption *ShippingOption `json:"shipping_option"`
}

type ShipmentSeller struct {
	Cost any `json:"cost"`
}

type ShipmentCosts struct {
	Seller  any           `json:"seller"`
	Sender  any           `json:"sender"`
	Senders []SenderEntry `json:"senders"`
}

type SenderEntry struct {
	Type  string `json:"type"`
	Payer string `json:"payer"`
	Cost  any    `json:"cost"`
}

type ShippingOption struct {
	Cost     any `json:"cost"`
	ListCost any `json:"list_cost"`
}

type itemSearchResponse struct {
	Paging  paging   `json:"paging"`
	Results []string `json:"results"`
}

// Item is one upstream catalog listing from /items/{id}.
type Item struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Price             *float64        `json:"price"`
	AvailableQuantity int             `json:"available_quantity"`
	SoldQuantity      int             `json:"sold_quantity"`
	StartTime         string          `json:"start_time"`
	Permalink         string          `json:"permalink"`
	BuyingMode        string          `json:"buying_mode"`
	Pictures          []Picture       `json:"pictures"`
	Shipping          ItemShipping    `json:"shipping"`
	Attributes        []ItemAttribute `json:"attributes"`
}

type Picture struct {
	SecureURL string `json:"secure_url"`
}

type ItemShipping struct {
	Mode         string `json:"mode"`
	LogisticType string `json:"logistic_type"`
}

type ItemAttribute struct {
	ID        string  `json:"id"`
	ValueName *string `json:"value_name"`
}

// OrdersSnapshot is the transient result of one order fetch run: every
// order plus the discount and shipment payloads reconciliation needs.
type OrdersSnapshot struct {
	SellerID  int64
	Orders    []Order
	Discounts map[int64]Discount
	Shipments map[int64]Shipment
}
