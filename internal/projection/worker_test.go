package projection_test

import (
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/projection"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var (
	alice = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	bob   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func journal(debit, credit ledger.AccountKey, amt uint64) ledger.Journal {
	return ledger.Journal{DebitAccount: debit, CreditAccount: credit, Amount: uint256.NewInt(amt)}
}

func TestDeltas_DepositAndIssue(t *testing.T) {
	deltas := projection.Deltas([]ledger.Journal{
		journal(ledger.NewCustodyKey("WETH"), ledger.NewCollateralKey(alice, "WETH"), 500),
		journal(ledger.NewDebtKey(alice), ledger.NewOutstandingKey(), 300),
	})

	want := []projection.PositionDelta{
		{User: alice, Account: "WETH", Amount: "500"},
		{User: alice, Account: projection.DebtAccount, Amount: "300"},
	}
	if len(deltas) != len(want) {
		t.Fatalf("got %d deltas, want %d: %+v", len(deltas), len(want), deltas)
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Errorf("delta %d: got %+v, want %+v", i, deltas[i], want[i])
		}
	}
}

func TestDeltas_WithdrawAndRepayAreNegative(t *testing.T) {
	deltas := projection.Deltas([]ledger.Journal{
		journal(ledger.NewCollateralKey(alice, "WBTC"), ledger.NewCustodyKey("WBTC"), 7),
		journal(ledger.NewOutstandingKey(), ledger.NewDebtKey(alice), 40),
	})
	if len(deltas) != 2 {
		t.Fatalf("got %d deltas", len(deltas))
	}
	if deltas[0].Account != "WBTC" || deltas[0].Amount != "-7" {
		t.Errorf("collateral delta: %+v", deltas[0])
	}
	if deltas[1].Account != projection.DebtAccount || deltas[1].Amount != "-40" {
		t.Errorf("debt delta: %+v", deltas[1])
	}
}

func TestDeltas_NetsWithinOutput(t *testing.T) {
	deltas := projection.Deltas([]ledger.Journal{
		journal(ledger.NewCustodyKey("WETH"), ledger.NewCollateralKey(alice, "WETH"), 100),
		journal(ledger.NewCollateralKey(alice, "WETH"), ledger.NewCustodyKey("WETH"), 100),
		journal(ledger.NewCollateralKey(bob, "WETH"), ledger.NewCustodyKey("WETH"), 30),
	})
	if len(deltas) != 1 {
		t.Fatalf("expected offsetting legs to cancel, got %+v", deltas)
	}
	if deltas[0].User != bob || deltas[0].Amount != "-30" {
		t.Errorf("got %+v", deltas[0])
	}
}

func TestDeltas_IgnoresSystemOnlyJournals(t *testing.T) {
	deltas := projection.Deltas([]ledger.Journal{
		journal(ledger.NewCustodyKey("WETH"), ledger.NewOutstandingKey(), 1),
	})
	if len(deltas) != 0 {
		t.Errorf("expected no deltas, got %+v", deltas)
	}
}
