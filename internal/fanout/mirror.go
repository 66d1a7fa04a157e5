package fanout

import (
	"encoding/json"

	"github.com/BullionBear/sequex/internal/aggregator"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// wireSummary is the JSON shape mirrored onto NATS; kept separate from
// aggregator.Summary so the wire format doesn't drift with internal field
// renames.
type wireSummary struct {
	Spread string      `json:"spread"`
	Bids   []wireLevel `json:"bids"`
	Asks   []wireLevel `json:"asks"`
}

type wireLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Venue    string `json:"venue"`
}

// NATSMirror republishes every summary onto a NATS subject as a secondary,
// best-effort telemetry sink, grounded on the teacher's internal/pubsub
// Publisher. It never blocks the aggregator and never returns an error to
// it; publish failures are logged and otherwise swallowed, since losing a
// mirrored summary is not a protocol violation (spec.md's persistence is
// explicitly out of scope, so this is additive telemetry, not durability).
type NATSMirror struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSMirror wires a mirror sink onto an already-connected NATS conn.
func NewNATSMirror(conn *nats.Conn, subject string, logger zerolog.Logger) *NATSMirror {
	return &NATSMirror{conn: conn, subject: subject, logger: logger}
}

// Publish implements aggregator.Sink.
func (m *NATSMirror) Publish(summary aggregator.Summary) {
	wire := wireSummary{
		Spread: summary.Spread.String(),
		Bids:   make([]wireLevel, len(summary.Bids)),
		Asks:   make([]wireLevel, len(summary.Asks)),
	}
	for i, b := range summary.Bids {
		wire.Bids[i] = wireLevel{Price: b.Price.String(), Quantity: b.Quantity.String(), Venue: b.Venue}
	}
	for i, a := range summary.Asks {
		wire.Asks[i] = wireLevel{Price: a.Price.String(), Quantity: a.Quantity.String(), Venue: a.Venue}
	}

	data, err := json.Marshal(wire)
	if err != nil {
		m.logger.Warn().Err(err).Msg("mirror: summary marshal failed")
		return
	}
	if err := m.conn.Publish(m.subject, data); err != nil {
		m.logger.Warn().Err(err).Msg("mirror: nats publish failed")
	}
}

// multiSink fans a single Publish call out to several sinks, letting the
// aggregator treat "broadcast plus mirror" as one Sink.
type multiSink struct {
	sinks []aggregator.Sink
}

// NewMultiSink composes sinks into one, in the order given.
func NewMultiSink(sinks ...aggregator.Sink) aggregator.Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) Publish(summary aggregator.Summary) {
	for _, sink := range m.sinks {
		sink.Publish(summary)
	}
}
