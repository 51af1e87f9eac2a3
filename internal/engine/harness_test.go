package engine_test

import (
	"SynthLedger/internal/custody"
	"SynthLedger/internal/engine"
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// harness wires an engine to in-memory collaborators: WETH priced by
// ETH/USD and WBTC priced by BTC/USD.
type harness struct {
	t       *testing.T
	engine  *engine.Engine
	vault   *custody.Vault
	synth   *custody.SyntheticToken
	feeds   *oracle.FeedBook
	outputs chan engine.Output
	self    uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	reg, err := registry.New([]string{"WETH", "WBTC"}, []string{"ETH/USD", "BTC/USD"})
	require.NoError(t, err)

	self := uuid.New()
	h := &harness{
		t:       t,
		vault:   custody.NewVault(self),
		synth:   custody.NewSyntheticToken("SYNTH", self),
		feeds:   oracle.NewFeedBook(),
		outputs: make(chan engine.Output, 256),
		self:    self,
	}
	h.setPrice("ETH/USD", 2000)
	h.setPrice("BTC/USD", 30000)

	log := zerolog.Nop()
	h.engine, err = engine.New(engine.Deps{
		Registry:    reg,
		Prices:      h.feeds,
		Collateral:  h.vault,
		Synthetic:   h.synth,
		Self:        self,
		Params:      engine.DefaultParams(),
		Metrics:     observability.NewMetrics(prometheus.NewRegistry()),
		Logger:      &log,
		PersistChan: h.outputs,
		Clock:       func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return h
}

// setPrice sets feed to usd whole dollars at 8 feed decimals.
func (h *harness) setPrice(feed string, usd uint64) {
	h.feeds.SetPrice(feed, new(uint256.Int).Mul(uint256.NewInt(usd), fpmath.FeedConfig.Scale), time.Now())
}

// fund gives user wallet tokens to deposit.
func (h *harness) fund(user uuid.UUID, token string, amount *uint256.Int) {
	h.t.Helper()
	require.NoError(h.t, h.vault.Mint(token, user, amount))
}

// open funds and deposits collateral, then issues debt.
func (h *harness) open(user uuid.UUID, token string, collateral, debt *uint256.Int) {
	h.t.Helper()
	h.fund(user, token, collateral)
	_, err := h.engine.DepositAndIssue(user, token, collateral, debt)
	require.NoError(h.t, err)
}

func (h *harness) drain() []engine.Output {
	var out []engine.Output
	for {
		select {
		case o := <-h.outputs:
			out = append(out, o)
		default:
			return out
		}
	}
}

// wad returns n whole units at 18 decimals.
func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fpmath.WadConfig.Scale)
}

func units(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := fpmath.ParseUnits(s, fpmath.WadConfig)
	require.NoError(t, err)
	return v
}
