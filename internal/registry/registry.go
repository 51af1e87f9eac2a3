// Package registry holds the fixed set of collateral assets accepted by the
// engine, each bound to the price feed that values it.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is returned when the registry cannot be built from the
// supplied asset and price feed lists.
var ErrConfiguration = errors.New("asset registry: configuration error")

// Asset is an accepted collateral token and the feed that prices it.
type Asset struct {
	Token     string // opaque token reference
	PriceFeed string // price source reference
	Index     int    // registration order, 0-based
}

// Registry is immutable after New returns.
type Registry struct {
	assets  []Asset
	byToken map[string]int
}

// New registers tokens[i] with priceFeeds[i]. Both lists must have the same
// length; tokens must be unique, non-empty and free of ':' (the ledger
// account path separator).
func New(tokens, priceFeeds []string) (*Registry, error) {
	if len(tokens) != len(priceFeeds) {
		return nil, fmt.Errorf("%w: %d tokens but %d price feeds", ErrConfiguration, len(tokens), len(priceFeeds))
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no collateral assets", ErrConfiguration)
	}

	r := &Registry{
		assets:  make([]Asset, 0, len(tokens)),
		byToken: make(map[string]int, len(tokens)),
	}

	for i, token := range tokens {
		feed := priceFeeds[i]
		switch {
		case token == "":
			return nil, fmt.Errorf("%w: token %d is empty", ErrConfiguration, i)
		case strings.Contains(token, ":"):
			return nil, fmt.Errorf("%w: token %q contains ':'", ErrConfiguration, token)
		case feed == "":
			return nil, fmt.Errorf("%w: token %q has no price feed", ErrConfiguration, token)
		}
		if _, dup := r.byToken[token]; dup {
			return nil, fmt.Errorf("%w: token %q registered twice", ErrConfiguration, token)
		}

		r.byToken[token] = i
		r.assets = append(r.assets, Asset{Token: token, PriceFeed: feed, Index: i})
	}

	return r, nil
}

// IsAccepted reports whether token is a registered collateral asset.
func (r *Registry) IsAccepted(token string) bool {
	_, ok := r.byToken[token]
	return ok
}

// Lookup returns the registered asset for token.
func (r *Registry) Lookup(token string) (Asset, bool) {
	i, ok := r.byToken[token]
	if !ok {
		return Asset{}, false
	}
	return r.assets[i], true
}

// List returns all assets in registration order.
func (r *Registry) List() []Asset {
	out := make([]Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

// Tokens returns the token references in registration order.
func (r *Registry) Tokens() []string {
	out := make([]string, len(r.assets))
	for i, a := range r.assets {
		out[i] = a.Token
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.assets)
}
