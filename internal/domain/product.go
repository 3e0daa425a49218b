package domain

import "time"

// Product is one cached catalog item. JSON keys follow the response
// contract of the /myproducts endpoint.
type Product struct {
	ItemID            string     `db:"item_id" json:"ID"`
	Title             string     `db:"title" json:"titulo"`
	Price             *float64   `db:"price" json:"preco"`
	AvailableQuantity int        `db:"available_quantity" json:"estoque_atual"`
	SoldQuantity      int        `db:"sold_quantity" json:"quantidade_vendida"`
	StartTime         *time.Time `db:"start_time" json:"data_de_criacao"`
	Permalink         *string    `db:"permalink" json:"permalink"`
	Photo             *string    `db:"photo" json:"foto"`
	BuyingMode        *string    `db:"buying_mode" json:"modo_de_compra"`
	LogisticType      *string    `db:"logistic_type" json:"tipo_logistico"`
	Brand             *string    `db:"brand" json:"Marca"`
	GTIN              *string    `db:"gtin" json:"GTIN"`
	SKU               *string    `db:"sku" json:"SKU"`
	// TTSHours is time-to-sale: hours since listing start divided by
	// units sold. Nil when nothing has been sold yet.
	TTSHours *float64  `db:"tts_hours" json:"TTS_horas"`
	SyncedAt time.Time `db:"synced_at" json:"-"`
}
