package book

import (
	"github.com/emirpasic/gods/maps/treemap"
)

// BidSide is a depth-bounded ordered set of Bid price levels keyed by
// (price, venue), generalizing the teacher's single-venue BookArray to the
// multi-venue bid total order. The container owns no goroutine and is not
// safe for concurrent use; the aggregator is its sole owner.
type BidSide struct {
	tree     *treemap.Map
	maxDepth int
}

// NewBidSide constructs an empty bid side bounded at maxDepth entries.
func NewBidSide(maxDepth int) *BidSide {
	return &BidSide{
		tree:     treemap.NewWith(bidComparator),
		maxDepth: maxDepth,
	}
}

func bidComparator(a, b interface{}) int {
	return CompareBid(a.(Bid), b.(Bid))
}

// Update applies the insert/replace/remove/evict algorithm from the
// specification:
//  1. quantity == 0 removes any entry keyed by (price, venue).
//  2. an update to an existing key always applies: remove then re-insert,
//     which forces the red-black tree to re-sort the entry even though the
//     comparator treats the old and new keys as equal (same price, venue).
//  3. a brand new key is inserted directly while there is still room.
//  4. once full, a brand new key only displaces the current worst entry
//     (the minimum, for bids) if it strictly improves on it; otherwise the
//     update is dropped.
func (s *BidSide) Update(level Bid) {
	if level.IsZero() {
		s.tree.Remove(level)
		return
	}
	if _, found := s.tree.Get(level); found {
		s.tree.Remove(level)
		s.tree.Put(level, level)
		return
	}
	if s.tree.Size() < s.maxDepth {
		s.tree.Put(level, level)
		return
	}
	worstKey, _ := s.tree.Min()
	if worst, ok := worstKey.(Bid); ok && CompareBid(level, worst) > 0 {
		s.tree.Remove(worstKey)
		s.tree.Put(level, level)
	}
}

// Best returns the best bid (the maximum by ≤B), if any.
func (s *BidSide) Best() (Bid, bool) {
	if s.tree.Empty() {
		return Bid{}, false
	}
	k, _ := s.tree.Max()
	return k.(Bid), true
}

// Worst returns the worst entry currently held (the minimum by ≤B), if any.
// This is the entry Update evicts once the side is full.
func (s *BidSide) Worst() (Bid, bool) {
	if s.tree.Empty() {
		return Bid{}, false
	}
	k, _ := s.tree.Min()
	return k.(Bid), true
}

// BestN returns up to n best bids, best first. The result is short (never
// padded) when fewer than n levels exist.
func (s *BidSide) BestN(n int) []Bid {
	result := make([]Bid, 0, n)
	if n <= 0 {
		return result
	}
	it := s.tree.Iterator()
	for it.End(); it.Prev(); {
		result = append(result, it.Key().(Bid))
		if len(result) >= n {
			break
		}
	}
	return result
}

// Size reports the number of entries currently held.
func (s *BidSide) Size() int { return s.tree.Size() }

// AskSide is the sell-side counterpart of BidSide.
type AskSide struct {
	tree     *treemap.Map
	maxDepth int
}

// NewAskSide constructs an empty ask side bounded at maxDepth entries.
func NewAskSide(maxDepth int) *AskSide {
	return &AskSide{
		tree:     treemap.NewWith(askComparator),
		maxDepth: maxDepth,
	}
}

func askComparator(a, b interface{}) int {
	return CompareAsk(a.(Ask), b.(Ask))
}

// Update mirrors BidSide.Update with the ask order, where the worst entry
// sits at the maximum end and a strict improvement compares less.
func (s *AskSide) Update(level Ask) {
	if level.IsZero() {
		s.tree.Remove(level)
		return
	}
	if _, found := s.tree.Get(level); found {
		s.tree.Remove(level)
		s.tree.Put(level, level)
		return
	}
	if s.tree.Size() < s.maxDepth {
		s.tree.Put(level, level)
		return
	}
	worstKey, _ := s.tree.Max()
	if worst, ok := worstKey.(Ask); ok && CompareAsk(level, worst) < 0 {
		s.tree.Remove(worstKey)
		s.tree.Put(level, level)
	}
}

// Best returns the best ask (the minimum by ≤A), if any.
func (s *AskSide) Best() (Ask, bool) {
	if s.tree.Empty() {
		return Ask{}, false
	}
	k, _ := s.tree.Min()
	return k.(Ask), true
}

// Worst returns the worst entry currently held (the maximum by ≤A), if any.
func (s *AskSide) Worst() (Ask, bool) {
	if s.tree.Empty() {
		return Ask{}, false
	}
	k, _ := s.tree.Max()
	return k.(Ask), true
}

// BestN returns up to n best asks, best first.
func (s *AskSide) BestN(n int) []Ask {
	result := make([]Ask, 0, n)
	if n <= 0 {
		return result
	}
	it := s.tree.Iterator()
	for it.Next() {
		result = append(result, it.Key().(Ask))
		if len(result) >= n {
			break
		}
	}
	return result
}

// Size reports the number of entries currently held.
func (s *AskSide) Size() int { return s.tree.Size() }
