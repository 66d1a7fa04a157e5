package venue

import (
	"context"
	"time"

	"github.com/BullionBear/sequex/internal/book"
	"github.com/shopspring/decimal"
)

// levelsFromPairs converts wire-format [price-string, qty-string] pairs
// into a PriceLevelUpdate tagged with venue. A pair that fails to parse is
// dropped; one exchange message never fails outright over a single bad
// level.
func levelsFromPairs(rawBids, rawAsks [][2]string, venue string) (book.PriceLevelUpdate, error) {
	bids := make([]book.Bid, 0, len(rawBids))
	for _, pair := range rawBids {
		price, qty, ok := parsePair(pair)
		if !ok {
			continue
		}
		b, err := book.NewBid(price, qty, venue)
		if err != nil {
			continue
		}
		bids = append(bids, b)
	}

	asks := make([]book.Ask, 0, len(rawAsks))
	for _, pair := range rawAsks {
		price, qty, ok := parsePair(pair)
		if !ok {
			continue
		}
		a, err := book.NewAsk(price, qty, venue)
		if err != nil {
			continue
		}
		asks = append(asks, a)
	}

	return book.PriceLevelUpdate{Bids: bids, Asks: asks}, nil
}

func parsePair(pair [2]string) (price, qty decimal.Decimal, ok bool) {
	price, err := decimal.NewFromString(pair[0])
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	qty, err = decimal.NewFromString(pair[1])
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return price, qty, true
}

// sleepOrDone waits for d or ctx cancellation, whichever comes first. It
// returns false when ctx was the reason it returned, so callers can bail
// out of a reconnect loop without an extra select.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// trySend forwards update on out, respecting ctx cancellation. It returns
// false when ctx was cancelled first, signalling the caller to stop.
func trySend(ctx context.Context, out chan<- book.PriceLevelUpdate, update book.PriceLevelUpdate) bool {
	select {
	case out <- update:
		return true
	case <-ctx.Done():
		return false
	}
}
