package config

import (
	"SynthLedger/internal/engine"
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// AssetConfig binds a collateral token to its price feed. InitialPrice is
// an optional USD price ("2000.00") seeded into the feed book at start.
type AssetConfig struct {
	Token        string `toml:"token"`
	PriceFeed    string `toml:"price_feed"`
	InitialPrice string `toml:"initial_price"`
}

// EngineFile is the on-disk engine definition.
type EngineFile struct {
	// Custodian is the engine's own account at the collateral vault and
	// synthetic token.
	Custodian string        `toml:"custodian"`
	Synthetic string        `toml:"synthetic"`
	Params    engine.Params `toml:"params"`
	Assets    []AssetConfig `toml:"assets"`
}

func DefaultEngineFile() EngineFile {
	return EngineFile{
		Custodian: "00000000-0000-0000-0000-00000000c0de",
		Synthetic: "SYNTH",
		Params:    engine.DefaultParams(),
		Assets: []AssetConfig{
			{Token: "WETH", PriceFeed: "ETH/USD", InitialPrice: "2000"},
			{Token: "WBTC", PriceFeed: "BTC/USD", InitialPrice: "30000"},
		},
	}
}

// LoadEngineFile decodes path over DefaultEngineFile. A missing file yields
// the defaults. Unknown keys are rejected.
func LoadEngineFile(path string) (EngineFile, error) {
	f := DefaultEngineFile()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return f, nil
	}

	// Assets replace the defaults rather than merging index by index.
	f.Assets = nil
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return EngineFile{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return EngineFile{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := f.Validate(); err != nil {
		return EngineFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f EngineFile) Validate() error {
	var errs []error
	if _, err := uuid.Parse(f.Custodian); err != nil {
		errs = append(errs, fmt.Errorf("custodian: %w", err))
	}
	if f.Synthetic == "" {
		errs = append(errs, errors.New("synthetic symbol is required"))
	}
	if err := f.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := f.Registry(); err != nil {
		errs = append(errs, err)
	}
	for _, a := range f.Assets {
		if a.InitialPrice == "" {
			continue
		}
		if _, err := fpmath.ParseUnits(a.InitialPrice, fpmath.FeedConfig); err != nil {
			errs = append(errs, fmt.Errorf("asset %s initial_price: %w", a.Token, err))
		}
	}
	return errors.Join(errs...)
}

func (f EngineFile) CustodianID() uuid.UUID {
	return uuid.MustParse(f.Custodian)
}

// Registry builds the asset registry in file order.
func (f EngineFile) Registry() (*registry.Registry, error) {
	tokens := make([]string, len(f.Assets))
	feeds := make([]string, len(f.Assets))
	for i, a := range f.Assets {
		tokens[i] = a.Token
		feeds[i] = a.PriceFeed
	}
	return registry.New(tokens, feeds)
}

// SeedPrices writes every configured initial price into book.
func (f EngineFile) SeedPrices(book *oracle.FeedBook, at time.Time) (int, error) {
	n := 0
	for _, a := range f.Assets {
		if a.InitialPrice == "" {
			continue
		}
		price, err := fpmath.ParseUnits(a.InitialPrice, fpmath.FeedConfig)
		if err != nil {
			return n, fmt.Errorf("asset %s initial_price: %w", a.Token, err)
		}
		book.SetPrice(a.PriceFeed, price, at)
		n++
	}
	return n, nil
}
