package oracle_test

import (
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
)

var (
	weth = registry.Asset{Token: "WETH", PriceFeed: "ETH/USD"}
	wad  = fpmath.Pow10(18)
	t0   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newAdapter(book *oracle.FeedBook) *oracle.Adapter {
	return oracle.NewAdapter(book, fpmath.Pow10(18), fpmath.Pow10(10))
}

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), wad)
}

// feed price with 8 decimals
func usd8(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fpmath.Pow10(8))
}

type failingSource struct{ err error }

func (f failingSource) LatestQuote(string) (oracle.Quote, error) {
	return oracle.Quote{}, f.err
}

// ============================================================================
// Test: Adapter
// ============================================================================

func TestUSDValue_FifteenUnitsAt2000(t *testing.T) {
	book := oracle.NewFeedBook()
	book.SetPrice("ETH/USD", usd8(2000), t0)

	got, err := newAdapter(book).USDValue(weth, units(15))
	if err != nil {
		t.Fatalf("USDValue: %v", err)
	}
	if !got.Eq(units(30000)) {
		t.Errorf("got %s, want %s", got.Dec(), units(30000).Dec())
	}
}

func TestTokenAmountForUSD_Inverse(t *testing.T) {
	book := oracle.NewFeedBook()
	book.SetPrice("ETH/USD", usd8(2000), t0)

	// $100 at $2000/ETH = 0.05 ETH
	got, err := newAdapter(book).TokenAmountForUSD(weth, units(100))
	if err != nil {
		t.Fatalf("TokenAmountForUSD: %v", err)
	}
	want := uint256.MustFromDecimal("50000000000000000")
	if !got.Eq(want) {
		t.Errorf("got %s, want %s", got.Dec(), want.Dec())
	}
}

func TestAdapter_ReQueriesSourceEveryCall(t *testing.T) {
	book := oracle.NewFeedBook()
	a := newAdapter(book)

	book.SetPrice("ETH/USD", usd8(2000), t0)
	first, _ := a.USDValue(weth, units(1))

	book.SetPrice("ETH/USD", usd8(1000), t0.Add(time.Minute))
	second, _ := a.USDValue(weth, units(1))

	if first.Eq(second) {
		t.Errorf("adapter returned a stale price: %s", second.Dec())
	}
	if !second.Eq(units(1000)) {
		t.Errorf("got %s, want %s", second.Dec(), units(1000).Dec())
	}
}

func TestAdapter_MissingFeed(t *testing.T) {
	_, err := newAdapter(oracle.NewFeedBook()).USDValue(weth, units(1))
	if !errors.Is(err, oracle.ErrPriceUnavailable) {
		t.Fatalf("got %v, want ErrPriceUnavailable", err)
	}
}

func TestAdapter_ZeroPriceUnavailable(t *testing.T) {
	book := oracle.NewFeedBook()
	book.SetPrice("ETH/USD", new(uint256.Int), t0)

	_, err := newAdapter(book).TokenAmountForUSD(weth, units(1))
	if !errors.Is(err, oracle.ErrPriceUnavailable) {
		t.Fatalf("got %v, want ErrPriceUnavailable", err)
	}
}

func TestAdapter_WrapsSourceErrors(t *testing.T) {
	cause := errors.New("rpc timeout")
	a := oracle.NewAdapter(failingSource{err: cause}, fpmath.Pow10(18), fpmath.Pow10(10))

	_, err := a.USDValue(weth, units(1))
	if !errors.Is(err, oracle.ErrPriceUnavailable) {
		t.Errorf("got %v, want ErrPriceUnavailable", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("source error not preserved: %v", err)
	}
}

func TestAdapter_OverflowIsExplicit(t *testing.T) {
	book := oracle.NewFeedBook()
	book.SetPrice("ETH/USD", usd8(2000), t0)

	_, err := newAdapter(book).USDValue(weth, fpmath.Max())
	if !errors.Is(err, fpmath.ErrOverflow) {
		t.Fatalf("got %v, want ErrOverflow", err)
	}
}

// ============================================================================
// Test: FeedBook
// ============================================================================

func TestFeedBook_ApplyIgnoresOlderRounds(t *testing.T) {
	book := oracle.NewFeedBook()

	if !book.Apply(oracle.Quote{Feed: "ETH/USD", Price: usd8(2000), Round: 5}) {
		t.Fatal("first quote should apply")
	}
	if book.Apply(oracle.Quote{Feed: "ETH/USD", Price: usd8(1), Round: 4}) {
		t.Error("older round should be ignored")
	}

	q, err := book.LatestQuote("ETH/USD")
	if err != nil {
		t.Fatalf("LatestQuote: %v", err)
	}
	if q.Round != 5 || !q.Price.Eq(usd8(2000)) {
		t.Errorf("got round %d price %s", q.Round, q.Price.Dec())
	}
}

func TestFeedBook_ReturnsCopies(t *testing.T) {
	book := oracle.NewFeedBook()
	book.SetPrice("ETH/USD", usd8(2000), t0)

	q, _ := book.LatestQuote("ETH/USD")
	q.Price.SetUint64(1)

	again, _ := book.LatestQuote("ETH/USD")
	if !again.Price.Eq(usd8(2000)) {
		t.Errorf("book mutated through returned quote: %s", again.Price.Dec())
	}
}

func TestFeedBook_Remove(t *testing.T) {
	book := oracle.NewFeedBook()
	book.SetPrice("ETH/USD", usd8(2000), t0)
	book.Remove("ETH/USD")

	if _, err := book.LatestQuote("ETH/USD"); !errors.Is(err, oracle.ErrPriceUnavailable) {
		t.Errorf("got %v, want ErrPriceUnavailable", err)
	}
}
