// Package book implements the per-exchange price-level model and the
// depth-bounded ordered side containers the aggregator merges into a
// unified top-of-book view.
package book

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidLevel is returned by the Bid/Ask constructors when a price or
// quantity is negative, or the venue name is empty. shopspring/decimal has
// no NaN representation, so a value that would have been NaN under raw
// float64 arithmetic simply never reaches these constructors.
var ErrInvalidLevel = errors.New("book: invalid price level")

// Level is the common shape shared by Bid and Ask: a resting quantity at a
// price on one venue.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Venue    string
}

func newLevel(price, quantity decimal.Decimal, venue string) (Level, error) {
	if venue == "" {
		return Level{}, fmt.Errorf("%w: empty venue", ErrInvalidLevel)
	}
	if price.IsNegative() {
		return Level{}, fmt.Errorf("%w: negative price %s", ErrInvalidLevel, price)
	}
	if quantity.IsNegative() {
		return Level{}, fmt.Errorf("%w: negative quantity %s", ErrInvalidLevel, quantity)
	}
	return Level{Price: price, Quantity: quantity, Venue: venue}, nil
}

// Bid is a price level on the buy side of an order book. Two Bids are
// considered the same entry (for container membership and replacement) iff
// they share Price and Venue; Quantity is the mutable payload.
type Bid Level

// NewBid validates and constructs a Bid.
func NewBid(price, quantity decimal.Decimal, venue string) (Bid, error) {
	l, err := newLevel(price, quantity, venue)
	if err != nil {
		return Bid{}, err
	}
	return Bid(l), nil
}

// Level returns the underlying Level value.
func (b Bid) Level() Level { return Level(b) }

// IsZero reports whether the level carries a zero resting quantity, the
// sentinel for "remove this (price, venue)" in a PriceLevelUpdate.
func (b Bid) IsZero() bool { return b.Quantity.IsZero() }

// CompareBid implements the bid total order ≤B from the specification:
// higher price is better (sorts greater); at equal price, entries from the
// same venue compare equal (the mutable-quantity replacement case); at
// equal price and differing venue, higher quantity is better, and if the
// quantity also coincides the venue name lexicographic order breaks the
// tie so the comparator never reports equal for genuinely distinct
// (price, venue, quantity) entries at the same price with different
// venues. That final fallback is what keeps the underlying ordered-set
// search from stopping on a non-matching node (see the Side container).
func CompareBid(a, b Bid) int {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c
	}
	if a.Venue == b.Venue {
		return 0
	}
	if c := a.Quantity.Cmp(b.Quantity); c != 0 {
		return c
	}
	return strings.Compare(a.Venue, b.Venue)
}

// Ask is a price level on the sell side of an order book.
type Ask Level

// NewAsk validates and constructs an Ask.
func NewAsk(price, quantity decimal.Decimal, venue string) (Ask, error) {
	l, err := newLevel(price, quantity, venue)
	if err != nil {
		return Ask{}, err
	}
	return Ask(l), nil
}

// Level returns the underlying Level value.
func (a Ask) Level() Level { return Level(a) }

// IsZero reports whether the level carries a zero resting quantity.
func (a Ask) IsZero() bool { return a.Quantity.IsZero() }

// CompareAsk implements the ask total order ≤A: lower price is better
// (sorts less, so Min() of the container is the best ask); after the
// price step every comparison is reversed relative to CompareBid, so that
// at equal price the higher-quantity level is the better one.
func CompareAsk(a, b Ask) int {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c
	}
	if a.Venue == b.Venue {
		return 0
	}
	if c := a.Quantity.Cmp(b.Quantity); c != 0 {
		return -c
	}
	return -strings.Compare(a.Venue, b.Venue)
}

// PriceLevelUpdate is the atomic batch an exchange adaptor emits from one
// venue message or one snapshot.
type PriceLevelUpdate struct {
	Bids []Bid
	Asks []Ask
}

// Empty reports whether the update carries no levels on either side.
func (u PriceLevelUpdate) Empty() bool {
	return len(u.Bids) == 0 && len(u.Asks) == 0
}
