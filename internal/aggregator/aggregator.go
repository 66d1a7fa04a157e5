// Package aggregator implements the single consumer task that serializes
// PriceLevelUpdates from every venue adaptor into the two side containers,
// maintains the cached top-N, and publishes Summary snapshots (spec.md §4.5).
package aggregator

import (
	"context"

	"github.com/BullionBear/sequex/internal/book"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Level is the venue-tagged price/quantity pair carried in a published
// Summary, mirroring the outbound RPC's Level message (spec.md §6).
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Venue    string
}

// Summary is the published payload: the spread between the best bid and
// best ask, and the best-first top-N on each side (spec.md §4, "Summary").
type Summary struct {
	Spread decimal.Decimal
	Bids   []Level
	Asks   []Level
}

// Sink receives every published Summary. The fan-out broadcaster implements
// this; the aggregator never blocks on it and never learns about individual
// subscribers (spec.md §4.6).
type Sink interface {
	Publish(Summary)
}

// Config holds the aggregator's spawn-time parameters (spec.md §4.5,
// "Public contract").
type Config struct {
	MaxDepth             int
	BestN                int
	PriceLevelBufferSize int
}

// Aggregator owns both side containers exclusively; no other task ever
// touches them (spec.md §5, "Shared mutable state").
type Aggregator struct {
	cfg    Config
	logger zerolog.Logger
	sink   Sink

	bids *book.BidSide
	asks *book.AskSide

	bestNBids []book.Bid
	bestNAsks []book.Ask
	lastBid   *book.Bid
	lastAsk   *book.Ask
}

// New constructs an Aggregator. The caller is responsible for spawning the
// venue adaptors that feed the returned input channel.
func New(cfg Config, sink Sink, logger zerolog.Logger) (*Aggregator, chan book.PriceLevelUpdate) {
	in := make(chan book.PriceLevelUpdate, cfg.PriceLevelBufferSize)
	a := &Aggregator{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		bids:   book.NewBidSide(cfg.MaxDepth),
		asks:   book.NewAskSide(cfg.MaxDepth),
	}
	return a, in
}

// Run consumes in until ctx is cancelled or in is closed. It returns nil on
// either clean path; the aggregator only ever surfaces an error if its sink
// were to fail outright, which the broadcast sink never does (spec.md §7,
// "Propagation policy").
func (a *Aggregator) Run(ctx context.Context, in <-chan book.PriceLevelUpdate) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-in:
			if !ok {
				return nil
			}
			a.apply(update)
		}
	}
}

func (a *Aggregator) apply(update book.PriceLevelUpdate) {
	dirtyBids := a.applyBids(update.Bids)
	dirtyAsks := a.applyAsks(update.Asks)

	if !dirtyBids && !dirtyAsks {
		return
	}

	if dirtyBids {
		a.bestNBids = a.bids.BestN(a.cfg.BestN)
		if len(a.bestNBids) == 0 {
			a.logger.Debug().Msg("bid side empty")
			a.lastBid = nil
		} else {
			last := a.bestNBids[len(a.bestNBids)-1]
			a.lastBid = &last
		}
	}
	if dirtyAsks {
		a.bestNAsks = a.asks.BestN(a.cfg.BestN)
		if len(a.bestNAsks) == 0 {
			a.logger.Debug().Msg("ask side empty")
			a.lastAsk = nil
		} else {
			last := a.bestNAsks[len(a.bestNAsks)-1]
			a.lastAsk = &last
		}
	}

	if len(a.bestNBids) == 0 || len(a.bestNAsks) == 0 {
		// Suppress until both sides have at least one level (spec.md §4.5,
		// resolved open question: see SPEC_FULL.md).
		a.logger.Debug().Msg("suppressing publish, one side still empty")
		return
	}

	a.publish()
}

func (a *Aggregator) applyBids(bids []book.Bid) bool {
	dirty := false
	for _, bid := range bids {
		if a.lastBid == nil || len(a.bestNBids) < a.cfg.BestN || book.CompareBid(bid, *a.lastBid) >= 0 {
			dirty = true
		}
		a.bids.Update(bid)
	}
	return dirty
}

func (a *Aggregator) applyAsks(asks []book.Ask) bool {
	dirty := false
	for _, ask := range asks {
		if a.lastAsk == nil || len(a.bestNAsks) < a.cfg.BestN || book.CompareAsk(ask, *a.lastAsk) <= 0 {
			dirty = true
		}
		a.asks.Update(ask)
	}
	return dirty
}

func (a *Aggregator) publish() {
	bestBidPrice := a.bestNBids[0].Price
	bestAskPrice := a.bestNAsks[0].Price
	spread := bestAskPrice.Sub(bestBidPrice)

	summary := Summary{
		Spread: spread,
		Bids:   make([]Level, len(a.bestNBids)),
		Asks:   make([]Level, len(a.bestNAsks)),
	}
	for i, b := range a.bestNBids {
		summary.Bids[i] = Level{Price: b.Price, Quantity: b.Quantity, Venue: b.Venue}
	}
	for i, ask := range a.bestNAsks {
		summary.Asks[i] = Level{Price: ask.Price, Quantity: ask.Quantity, Venue: ask.Venue}
	}
	a.sink.Publish(summary)
}
