// Package rpc exposes the aggregator's summary stream over gRPC
// (spec.md §6, "Outbound"). Message codegen is explicitly out of scope for
// the core per the specification, so these message types are hand-written
// and carried over the wire with a JSON codec rather than protoc-generated
// protobuf bindings (see DESIGN.md).
package rpc

// Empty is the request message for BookSummary; it carries no fields.
type Empty struct{}

// Level mirrors spec.md §6's outbound Level message.
type Level struct {
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
	Exchange string  `json:"exchange"`
}

// Summary mirrors spec.md §6's outbound Summary message.
type Summary struct {
	Spread float64 `json:"spread"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}
