package meli

import "meli_sync/internal/money"

// Ordered fallback extraction over the upstream schema subset. Each
// candidate accessor yields a value that may be absent or zero; the
// first one coercing to a positive amount wins.

// SellerShippingCost resolves the seller-borne shipping cost for an
// order, falling back to the shipment payload when the order itself
// carries no usable cost field.
func SellerShippingCost(order Order, shipments map[int64]Shipment) float64 {
	if v := sellerShippingCostFromOrder(order); v > 0 {
		return v
	}
	if order.Shipping.ID != nil {
		if shipment, ok := shipments[*order.Shipping.ID]; ok {
			return sellerShippingCostFromShipment(shipment)
		}
	}
	return 0
}

func sellerShippingCostFromOrder(order Order) float64 {
	candidates := []any{
		order.Shipping.Cost,
		order.Shipping.SellerCost,
		order.Shipping.SenderCost,
		order.ShippingCost,
	}
	for _, c := range candidates {
		if v := money.ToMoney(c, 0); v > 0 {
			return v
		}
	}
	return 0
}

func sellerShippingCostFromShipment(shipment Shipment) float64 {
	var candidates []any
	if shipment.Seller != nil {
		candidates = append(candidates, shipment.Seller.Cost)
	}
	candidates = append(candidates, shipment.SellerCost)
	if shipment.Costs != nil {
		candidates = append(candidates, shipment.Costs.Seller, shipment.Costs.Sender)
	}
	if shipment.ShippingOption != nil {
		candidates = append(candidates, shipment.ShippingOption.Cost, shipment.ShippingOption.ListCost)
	}
	for _, c := range candidates {
		if v := money.ToMoney(c, 0); v > 0 {
			return v
		}
	}

	if shipment.Costs != nil {
		for _, entry := range shipment.Costs.Senders {
			if entry.Type == "seller" || entry.Type == "sender" || entry.Payer == "seller" {
				if v := money.ToMoney(entry.Cost, 0); v > 0 {
					return v
				}
			}
		}
	}
	return 0
}

// MarketplaceFee prefers an explicit order-level fee field over the
// summed per-line sale fee. The field priority is fixed; a present
// field wins even when it coerces to zero.
func MarketplaceFee(order Order, saleFeeTotal float64) float64 {
	for _, v := range []any{
		order.MarketplaceFee,
		order.TotalFees,
		order.PaidAmountFees,
		order.FeesAmount,
	} {
		if v != nil {
			return money.ToMoney(v, saleFeeTotal)
		}
	}
	return saleFeeTotal
}

// DiscountTotal reads the nested amounts/total field of a discount
// payload, zero when absent.
func DiscountTotal(d Discount) float64 {
	if d.Amounts == nil {
		return 0
	}
	return money.ToMoney(d.Amounts.Total, 0)
}
