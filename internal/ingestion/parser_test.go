package ingestion_test

import (
	"SynthLedger/internal/ingestion"
	"SynthLedger/internal/oracle"
	"errors"
	"testing"
	"time"
)

func TestParsePriceUpdate(t *testing.T) {
	data := []byte(`{"feed":"ETH/USD","price":"2000.5","round":7,"timestamp_us":1700000000000000}`)

	q, err := ingestion.ParsePriceUpdate("synth.prices.ETH/USD", data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if q.Feed != "ETH/USD" {
		t.Errorf("feed: got %s", q.Feed)
	}
	if got := q.Price.Dec(); got != "200050000000" {
		t.Errorf("price: got %s, want 200050000000", got)
	}
	if q.Round != 7 {
		t.Errorf("round: got %d", q.Round)
	}
	if !q.UpdatedAt.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("timestamp: got %v", q.UpdatedAt)
	}
}

func TestParsePriceUpdate_FeedFromSubject(t *testing.T) {
	q, err := ingestion.ParsePriceUpdate("synth.prices.BTC/USD", []byte(`{"price":"30000"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if q.Feed != "BTC/USD" {
		t.Errorf("feed: got %s, want BTC/USD", q.Feed)
	}
	if q.Round != 0 {
		t.Errorf("round should be left for the book, got %d", q.Round)
	}
	if q.UpdatedAt.IsZero() {
		t.Error("timestamp should default to now")
	}
}

func TestParsePriceUpdate_Rejects(t *testing.T) {
	cases := map[string]struct {
		subject string
		data    string
	}{
		"bad json":         {"synth.prices.ETH/USD", `{`},
		"missing feed":     {"other.subject", `{"price":"1"}`},
		"subject mismatch": {"synth.prices.BTC/USD", `{"feed":"ETH/USD","price":"1"}`},
		"missing price":    {"synth.prices.ETH/USD", `{}`},
		"negative price":   {"synth.prices.ETH/USD", `{"price":"-1"}`},
		"zero price":       {"synth.prices.ETH/USD", `{"price":"0"}`},
		"too precise":      {"synth.prices.ETH/USD", `{"price":"1.000000001"}`},
		"not a number":     {"synth.prices.ETH/USD", `{"price":"abc"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ingestion.ParsePriceUpdate(tc.subject, []byte(tc.data)); err == nil {
				t.Errorf("expected error for %s", tc.data)
			}
		})
	}
}

// ============================================================================
// Test: PriceSubscriber.Handle
// ============================================================================

func TestPriceSubscriber_Handle(t *testing.T) {
	book := oracle.NewFeedBook()
	ps := ingestion.NewPriceSubscriber(nil, book, nil)

	if err := ps.Handle("synth.prices.ETH/USD", []byte(`{"price":"2000","round":5}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	q, err := book.LatestQuote("ETH/USD")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Price.Dec() != "200000000000" || q.Round != 5 {
		t.Errorf("got price %s round %d", q.Price.Dec(), q.Round)
	}

	// An older round is ignored but not an error worth redelivering.
	err = ps.Handle("synth.prices.ETH/USD", []byte(`{"price":"1","round":4}`))
	if !errors.Is(err, ingestion.ErrStaleRound) {
		t.Fatalf("expected ErrStaleRound, got %v", err)
	}
	q, _ = book.LatestQuote("ETH/USD")
	if q.Price.Dec() != "200000000000" {
		t.Errorf("stale quote overwrote price: %s", q.Price.Dec())
	}

	if err := ps.Handle("synth.prices.ETH/USD", []byte(`{"price":"x"}`)); err == nil || errors.Is(err, ingestion.ErrStaleRound) {
		t.Errorf("expected parse error, got %v", err)
	}
}
