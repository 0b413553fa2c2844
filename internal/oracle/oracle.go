// Package oracle fetches price quotes for feed ids and enforces staleness.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lending/internal/errs"

	"github.com/shopspring/decimal"
)

// DefaultMaxAge bounds how old a quote may be when the caller sets no limit.
const DefaultMaxAge = time.Hour

// Quote is a price observation in quote currency per whole unit of the asset.
type Quote struct {
	Price       decimal.Decimal
	Confidence  decimal.Decimal
	PublishTime time.Time
}

// Source returns the latest known quote for a feed or errs.ErrFeedNotFound.
type Source interface {
	Latest(ctx context.Context, feed FeedID) (Quote, error)
}

// StaticSource serves quotes set in process. Used for development and tests.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[FeedID]Quote
}

func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[FeedID]Quote)}
}

func (s *StaticSource) Set(feed FeedID, quote Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[feed] = quote
}

func (s *StaticSource) Latest(_ context.Context, feed FeedID) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quote, ok := s.quotes[feed]
	if !ok {
		return Quote{}, fmt.Errorf("feed %s: %w", feed, errs.ErrFeedNotFound)
	}
	return quote, nil
}

// Gateway validates quotes from a Source before the risk engine uses them.
type Gateway struct {
	source Source
	now    func() time.Time
}

func NewGateway(source Source, now func() time.Time) *Gateway {
	if now == nil {
		now = time.Now
	}
	return &Gateway{source: source, now: now}
}

// GetPrice returns a quote no older than maxStaleness.
// A zero maxStaleness means DefaultMaxAge.
func (g *Gateway) GetPrice(ctx context.Context, feed FeedID, maxStaleness time.Duration) (Quote, error) {
	if maxStaleness <= 0 {
		maxStaleness = DefaultMaxAge
	}
	quote, err := g.source.Latest(ctx, feed)
	if err != nil {
		return Quote{}, err
	}
	if age := g.now().Sub(quote.PublishTime); age > maxStaleness {
		return Quote{}, fmt.Errorf("feed %s: published %s ago, limit %s: %w", feed, age.Truncate(time.Second), maxStaleness, errs.ErrStalePrice)
	}
	if !quote.Price.IsPositive() {
		return Quote{}, fmt.Errorf("feed %s: price %s: %w", feed, quote.Price, errs.ErrInvalidPrice)
	}
	return quote, nil
}
