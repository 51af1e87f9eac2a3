// Package oracle converts raw price feed quotes into USD values at the
// engine's fixed-point precision.
package oracle

import (
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/registry"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// ErrPriceUnavailable is returned when a feed cannot produce a usable price.
var ErrPriceUnavailable = errors.New("price oracle: price unavailable")

// Quote is the latest answer reported by a price feed. Price is USD per
// whole unit of the asset at the feed's own precision (8 decimals).
type Quote struct {
	Feed      string
	Price     *uint256.Int
	Round     uint64
	UpdatedAt time.Time
}

// PriceSource is the live price feed. Staleness of the answer is the
// source's responsibility.
type PriceSource interface {
	LatestQuote(feed string) (Quote, error)
}

// Adapter queries the source on every call; it holds no price state.
type Adapter struct {
	source                  PriceSource
	precision               *uint256.Int
	additionalFeedPrecision *uint256.Int
}

func NewAdapter(source PriceSource, precision, additionalFeedPrecision *uint256.Int) *Adapter {
	return &Adapter{
		source:                  source,
		precision:               precision.Clone(),
		additionalFeedPrecision: additionalFeedPrecision.Clone(),
	}
}

// ScaledPrice returns the feed price rescaled to engine precision:
// price * ADDITIONAL_FEED_PRECISION.
func (a *Adapter) ScaledPrice(asset registry.Asset) (*uint256.Int, error) {
	q, err := a.source.LatestQuote(asset.PriceFeed)
	if err != nil {
		if errors.Is(err, ErrPriceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: feed %s: %w", ErrPriceUnavailable, asset.PriceFeed, err)
	}
	if q.Price == nil || q.Price.IsZero() {
		return nil, fmt.Errorf("%w: feed %s reported no price", ErrPriceUnavailable, asset.PriceFeed)
	}

	return fpmath.Mul(q.Price, a.additionalFeedPrecision)
}

// USDValue = (price * ADDITIONAL_FEED_PRECISION) * amount / PRECISION
func (a *Adapter) USDValue(asset registry.Asset, amount *uint256.Int) (*uint256.Int, error) {
	price, err := a.ScaledPrice(asset)
	if err != nil {
		return nil, err
	}
	return fpmath.MulDiv(price, amount, a.precision)
}

// TokenAmountForUSD = usd * PRECISION / (price * ADDITIONAL_FEED_PRECISION)
func (a *Adapter) TokenAmountForUSD(asset registry.Asset, usd *uint256.Int) (*uint256.Int, error) {
	price, err := a.ScaledPrice(asset)
	if err != nil {
		return nil, err
	}
	return fpmath.MulDiv(usd, a.precision, price)
}
