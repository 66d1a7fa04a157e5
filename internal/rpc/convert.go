package rpc

import "github.com/shopspring/decimal"

// mustFloat converts a decimal price or quantity to the float64 the wire
// message carries (spec.md §6: "All numeric fields on the wire are
// strings; deserialization parses them into floats" on the inbound side,
// mirrored here for the outbound double fields). The aggregator itself
// never rounds; this conversion happens only at the RPC boundary.
func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
