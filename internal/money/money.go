// Package money coerces the heterogeneous monetary value shapes found
// in Mercado Livre payloads into plain float64 amounts.
package money

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// amountKeys is the priority order used when a monetary value arrives
// as a nested object instead of a number.
var amountKeys = []string{"value", "amount", "total", "cost", "price"}

// ToMoney converts a decoded JSON value into a float64 amount.
// Numbers pass through, strings are parsed as locale-formatted amounts
// ("1.234,56" -> 1234.56), objects are searched for the first known
// amount key and coerced recursively. Anything else yields def.
func ToMoney(v any, def float64) float64 {
	switch x := v.(type) {
	case nil:
		return def
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return def
		}
		return f
	case string:
		normalized := strings.ReplaceAll(x, ".", "")
		normalized = strings.ReplaceAll(normalized, ",", ".")
		f, err := strconv.ParseFloat(normalized, 64)
		if err != nil {
			return def
		}
		return f
	case map[string]any:
		for _, k := range amountKeys {
			if nested, ok := x[k]; ok {
				return ToMoney(nested, def)
			}
		}
		return def
	default:
		return def
	}
}

// Round2 rounds a monetary amount to 2 decimal places.
func Round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}
