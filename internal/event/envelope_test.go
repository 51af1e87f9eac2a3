package event_test

import (
	"SynthLedger/internal/event"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ============================================================================
// Test: Envelope JSON
// ============================================================================

func TestEnvelope_JSONRoundTrip(t *testing.T) {
	target, liq := uuid.New(), uuid.New()
	hf := new(uint256.Int).SetAllOne()
	env := &event.Envelope{
		Sequence:       7,
		IdempotencyKey: "req-7",
		Operation:      "liquidate",
		Caller:         liq,
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		StateHash:      event.Hash{1, 2, 3},
		PrevHash:       event.Hash{9},
		Events: []event.Event{
			&event.CollateralRedeemed{From: target, To: liq, Asset: "WETH", Amount: uint256.NewInt(55), Reason: event.RedeemLiquidation},
			&event.DebtRepaid{OnBehalfOf: target, Payer: liq, Amount: uint256.NewInt(100)},
			&event.PositionLiquidated{
				Liquidator: liq, Target: target, Asset: "WETH",
				DebtCovered: uint256.NewInt(100), CollateralSeized: uint256.NewInt(55), Bonus: uint256.NewInt(5),
				HealthFactorBefore: uint256.NewInt(1), HealthFactorAfter: hf,
			},
		},
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got event.Envelope
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Sequence != 7 || got.Operation != "liquidate" || got.StateHash != env.StateHash || got.PrevHash != env.PrevHash {
		t.Errorf("header mismatch: %+v", got)
	}
	if len(got.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(got.Events))
	}
	redeemed, ok := got.Events[0].(*event.CollateralRedeemed)
	if !ok || redeemed.Reason != event.RedeemLiquidation || redeemed.Amount.Uint64() != 55 {
		t.Errorf("redeemed event mismatch: %+v", got.Events[0])
	}
	liquidated, ok := got.Events[2].(*event.PositionLiquidated)
	if !ok || !liquidated.HealthFactorAfter.Eq(hf) {
		t.Errorf("liquidated event mismatch: %+v", got.Events[2])
	}
}

func TestEnvelope_Users(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	env := &event.Envelope{Events: []event.Event{
		&event.CollateralDeposited{User: a},
		&event.DebtIssued{User: a},
		&event.PositionLiquidated{Liquidator: b, Target: a},
	}}

	users := env.Users()
	if len(users) != 2 || users[0] != a || users[1] != b {
		t.Errorf("got %v, want [%s %s]", users, a, b)
	}
}

func TestParseEventType(t *testing.T) {
	for et := event.EventTypeCollateralDeposited; et <= event.EventTypePositionLiquidated; et++ {
		got, err := event.ParseEventType(et.String())
		if err != nil || got != et {
			t.Errorf("ParseEventType(%q) = %v, %v", et.String(), got, err)
		}
	}
	if _, err := event.ParseEventType("TradeFill"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestParseHash(t *testing.T) {
	h := event.Hash{0xab, 0xcd}
	got, err := event.ParseHash(h.String())
	if err != nil || got != h {
		t.Errorf("got %v, %v", got, err)
	}
	if _, err := event.ParseHash("abcd"); err == nil {
		t.Error("expected error for short hash")
	}
}
