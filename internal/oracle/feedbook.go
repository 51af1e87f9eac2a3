package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

// FeedBook is an in-memory PriceSource holding the latest quote per feed.
// It is written by the price subscriber and read by the engine, so access
// is guarded.
type FeedBook struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewFeedBook() *FeedBook {
	return &FeedBook{quotes: make(map[string]Quote)}
}

// LatestQuote implements PriceSource.
func (b *FeedBook) LatestQuote(feed string) (Quote, error) {
	b.mu.RLock()
	q, ok := b.quotes[feed]
	b.mu.RUnlock()

	if !ok {
		return Quote{}, fmt.Errorf("%w: no quote for feed %s", ErrPriceUnavailable, feed)
	}
	q.Price = q.Price.Clone()
	return q, nil
}

// SetPrice records a new answer for feed, advancing its round.
func (b *FeedBook) SetPrice(feed string, price *uint256.Int, at time.Time) Quote {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := Quote{
		Feed:      feed,
		Price:     price.Clone(),
		Round:     b.quotes[feed].Round + 1,
		UpdatedAt: at,
	}
	b.quotes[feed] = q
	return q
}

// Apply records q unless the book already holds a later round for the feed.
// Returns false when q was ignored as out of order.
func (b *FeedBook) Apply(q Quote) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q.Price == nil {
		return false
	}
	if cur, ok := b.quotes[q.Feed]; ok && q.Round != 0 && q.Round <= cur.Round {
		return false
	}
	if q.Round == 0 {
		q.Round = b.quotes[q.Feed].Round + 1
	}
	q.Price = q.Price.Clone()
	b.quotes[q.Feed] = q
	return true
}

// Remove drops the feed so that subsequent queries fail.
func (b *FeedBook) Remove(feed string) {
	b.mu.Lock()
	delete(b.quotes, feed)
	b.mu.Unlock()
}

// Feeds returns a copy of every held quote.
func (b *FeedBook) Feeds() map[string]Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]Quote, len(b.quotes))
	for k, q := range b.quotes {
		q.Price = q.Price.Clone()
		out[k] = q
	}
	return out
}
