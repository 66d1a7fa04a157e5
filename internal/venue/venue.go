// Package venue implements one exchange adaptor per supported venue: a
// persistent websocket session, snapshot/delta reconciliation, and
// normalized book.PriceLevelUpdate emission, per spec.md §4.2-§4.4.
package venue

import (
	"context"
	"fmt"
	"strings"

	"github.com/BullionBear/sequex/internal/book"
	"github.com/rs/zerolog"
)

// Name identifies a supported venue. Parsing is case-insensitive.
type Name string

const (
	Binance  Name = "binance"
	Bitstamp Name = "bitstamp"
)

// UnrecognizedVenue is returned when a venue name does not match a known
// adaptor. It is a configuration error: fatal before spawn.
type UnrecognizedVenue struct {
	Raw string
}

func (e *UnrecognizedVenue) Error() string {
	return fmt.Sprintf("venue: unrecognized exchange %q", e.Raw)
}

// All lists every venue this multiplexer dispatches to, in no particular
// order; used as the default when no --exchanges flag is supplied.
func All() []Name {
	return []Name{Binance, Bitstamp}
}

// ParseNames parses a comma-separated, case-insensitive list of venue
// names, e.g. "Binance,Bitstamp".
func ParseNames(csv string) ([]Name, error) {
	var out []Name
	for _, raw := range strings.Split(csv, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		n, err := parseName(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, &UnrecognizedVenue{Raw: csv}
	}
	return out, nil
}

func parseName(raw string) (Name, error) {
	switch strings.ToLower(raw) {
	case string(Binance):
		return Binance, nil
	case string(Bitstamp):
		return Bitstamp, nil
	default:
		return "", &UnrecognizedVenue{Raw: raw}
	}
}

// Pair is the two-asset symbol this aggregator quotes, e.g. {Base: "eth",
// Quote: "btc"}.
type Pair struct {
	Base  string
	Quote string
}

// Lower returns the pair as a lowercase concatenated symbol, e.g. "ethbtc".
func (p Pair) Lower() string {
	return strings.ToLower(p.Base) + strings.ToLower(p.Quote)
}

// Upper returns the pair as an uppercase concatenated symbol, e.g. "ETHBTC".
func (p Pair) Upper() string {
	return strings.ToUpper(p.Base) + strings.ToUpper(p.Quote)
}

// Adaptor is the common shape every venue exposes to the multiplexer: a
// cancel-safe run loop that forwards normalized updates onto out until ctx
// is cancelled or an unrecoverable protocol violation occurs.
type Adaptor interface {
	Run(ctx context.Context, out chan<- book.PriceLevelUpdate) error
}

// Constructor builds an Adaptor for one venue given the pair, the
// snapshot/REST depth to request, the internal raw-frame channel capacity
// (the CLI's --exchange-stream-buffer), and a logger scoped to that venue.
type Constructor func(pair Pair, depth, streamBuffer int, logger zerolog.Logger) Adaptor

var constructors = map[Name]Constructor{
	Binance: func(pair Pair, depth, streamBuffer int, logger zerolog.Logger) Adaptor {
		return NewBinanceStyleAdaptor(pair, depth, streamBuffer, logger)
	},
	Bitstamp: func(pair Pair, depth, streamBuffer int, logger zerolog.Logger) Adaptor {
		return NewBitstampStyleAdaptor(pair, depth, streamBuffer, logger)
	},
}

// Spawn starts one goroutine per requested venue, each running its adaptor
// and forwarding normalized updates onto out (a multi-producer,
// single-consumer channel shared across every venue, per spec.md §4.5).
// Spawn returns a channel that receives the first adaptor's terminal error
// (nil on clean ctx cancellation); the caller (the supervisor) is expected
// to select on it alongside the aggregator and RPC server.
func Spawn(ctx context.Context, names []Name, pair Pair, depth, streamBuffer int, out chan<- book.PriceLevelUpdate, logger zerolog.Logger) <-chan error {
	errCh := make(chan error, len(names))
	for _, name := range names {
		constructor, ok := constructors[name]
		if !ok {
			errCh <- &UnrecognizedVenue{Raw: string(name)}
			continue
		}
		adaptor := constructor(pair, depth, streamBuffer, logger.With().Str("venue", string(name)).Logger())
		go func(name Name, a Adaptor) {
			errCh <- a.Run(ctx, out)
		}(name, adaptor)
	}
	return errCh
}
