package ledger_test

import (
	"SynthLedger/internal/ledger"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_CollateralPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewCollateralKey(userID, "WETH")

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:collateral:WETH"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPaths(t *testing.T) {
	if got := ledger.NewCustodyKey("WBTC").AccountPath(); got != "system:custody:WBTC" {
		t.Errorf("got %q, want %q", got, "system:custody:WBTC")
	}
	if got := ledger.NewOutstandingKey().AccountPath(); got != "system:outstanding" {
		t.Errorf("got %q, want %q", got, "system:outstanding")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	userID := uuid.New()
	keys := []ledger.AccountKey{
		ledger.NewCollateralKey(userID, "WETH"),
		ledger.NewDebtKey(userID),
		ledger.NewCustodyKey("WETH"),
		ledger.NewOutstandingKey(),
	}
	for _, k := range keys {
		got, err := ledger.ParseAccountPath(k.AccountPath())
		if err != nil {
			t.Fatalf("ParseAccountPath(%q): %v", k.AccountPath(), err)
		}
		if got != k {
			t.Errorf("got %+v, want %+v", got, k)
		}
	}
}

func TestParseAccountPath_Rejects(t *testing.T) {
	for _, p := range []string{"", "user:not-a-uuid:debt", "system:custody", "system:insurance", "external:deposits:USDT"} {
		if _, err := ledger.ParseAccountPath(p); err == nil {
			t.Errorf("expected error for %q", p)
		}
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if !bt.GetBalance(ledger.NewDebtKey(uuid.New())).IsZero() {
		t.Error("initial balance should be 0")
	}
}

func TestBalanceTracker_ApplyJournal_NormalSides(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()

	err := bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		DebitAccount:  ledger.NewCustodyKey("WETH"),
		CreditAccount: ledger.NewCollateralKey(userID, "WETH"),
		Amount:        u(1_000),
		JournalType:   ledger.JournalTypeDeposit,
	})
	if err != nil {
		t.Fatalf("ApplyJournal: %v", err)
	}

	if got := bt.GetBalance(ledger.NewCustodyKey("WETH")); !got.Eq(u(1_000)) {
		t.Errorf("custody: got %s, want 1000", got.Dec())
	}
	if got := bt.GetBalance(ledger.NewCollateralKey(userID, "WETH")); !got.Eq(u(1_000)) {
		t.Errorf("collateral: got %s, want 1000", got.Dec())
	}
}

func TestBalanceTracker_RejectsNegative(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()

	err := bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		DebitAccount:  ledger.NewCollateralKey(userID, "WETH"),
		CreditAccount: ledger.NewCustodyKey("WETH"),
		Amount:        u(1),
	})
	if !errors.Is(err, ledger.ErrNegativeBalance) {
		t.Fatalf("got %v, want ErrNegativeBalance", err)
	}
	if len(bt.Snapshot()) != 0 {
		t.Error("failed journal must not touch balances")
	}
}

func TestBalanceTracker_RejectsInvalidJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	key := ledger.NewCustodyKey("WETH")

	if err := bt.ApplyJournal(ledger.Journal{DebitAccount: key, CreditAccount: key, Amount: u(1)}); !errors.Is(err, ledger.ErrInvalidJournal) {
		t.Errorf("same account: got %v, want ErrInvalidJournal", err)
	}
	if err := bt.ApplyJournal(ledger.Journal{DebitAccount: key, CreditAccount: ledger.NewOutstandingKey()}); !errors.Is(err, ledger.ErrInvalidJournal) {
		t.Errorf("nil amount: got %v, want ErrInvalidJournal", err)
	}
}

func TestBalanceTracker_ApplyJournals_AllOrNothing(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()

	journals := []ledger.Journal{
		{
			JournalID:     uuid.New(),
			DebitAccount:  ledger.NewCustodyKey("WETH"),
			CreditAccount: ledger.NewCollateralKey(userID, "WETH"),
			Amount:        u(500),
		},
		{
			JournalID:     uuid.New(),
			DebitAccount:  ledger.NewCollateralKey(userID, "WETH"),
			CreditAccount: ledger.NewCustodyKey("WETH"),
			Amount:        u(600),
		},
	}

	if err := bt.ApplyJournals(journals); err == nil {
		t.Fatal("expected failure on overdraw")
	}
	if !bt.GetBalance(ledger.NewCustodyKey("WETH")).IsZero() {
		t.Error("first journal should have been reverted")
	}
}

func TestBalanceTracker_Snapshot(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	bt.SetBalance(ledger.NewOutstandingKey(), u(999))

	snap := bt.Snapshot()
	for k := range snap {
		snap[k].SetUint64(0)
	}

	if got := bt.GetBalance(ledger.NewOutstandingKey()); !got.Eq(u(999)) {
		t.Errorf("tracker balance should not be affected by snapshot mutation, got %s", got.Dec())
	}
}

// ============================================================================
// Test: Ledger batches
// ============================================================================

func TestLedger_BatchCommit(t *testing.T) {
	l := ledger.New()
	user := uuid.New()

	b, err := l.Begin("req-1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := b.AddCollateral(user, "WETH", u(15)); err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	if err := b.AddDebt(user, u(7)); err != nil {
		t.Fatalf("AddDebt: %v", err)
	}
	if err := b.Commit(42); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if !l.Collateral(user, "WETH").Eq(u(15)) || !l.Custody("WETH").Eq(u(15)) {
		t.Error("collateral and custody should both be 15")
	}
	if !l.Debt(user).Eq(u(7)) || !l.Outstanding().Eq(u(7)) {
		t.Error("debt and outstanding should both be 7")
	}
	for _, j := range b.Journals {
		if j.Sequence != 42 || j.EventRef != "req-1" || j.BatchID != b.BatchID {
			t.Errorf("journal not stamped: %+v", j)
		}
	}
	if !l.HasUser(user) {
		t.Error("user should be registered")
	}
	if l.InBatch() {
		t.Error("ledger should be released after commit")
	}
}

func TestLedger_SingleOpenBatch(t *testing.T) {
	l := ledger.New()
	b, _ := l.Begin("a")

	if _, err := l.Begin("b"); !errors.Is(err, ledger.ErrBatchInProgress) {
		t.Fatalf("got %v, want ErrBatchInProgress", err)
	}
	_ = b.Rollback()
	if _, err := l.Begin("b"); err != nil {
		t.Errorf("Begin after rollback: %v", err)
	}
}

func TestLedger_RollbackRestoresState(t *testing.T) {
	l := ledger.New()
	existing := uuid.New()
	fresh := uuid.New()

	b, _ := l.Begin("seed")
	_ = b.AddCollateral(existing, "WETH", u(10))
	_ = b.Commit(1)
	before := l.Balances()

	b, _ = l.Begin("undo")
	_ = b.AddCollateral(fresh, "WETH", u(5))
	_ = b.RemoveCollateral(existing, "WETH", u(4), ledger.JournalTypeWithdrawal)
	_ = b.AddDebt(existing, u(3))
	if err := b.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	after := l.Balances()
	if len(after) != len(before) {
		t.Fatalf("got %d balances, want %d", len(after), len(before))
	}
	for k, v := range before {
		if !after[k].Eq(v) {
			t.Errorf("%s: got %s, want %s", k.AccountPath(), after[k].Dec(), v.Dec())
		}
	}
	if l.HasUser(fresh) {
		t.Error("user created inside rolled-back batch should be forgotten")
	}
	if len(l.Users()) != 1 {
		t.Errorf("got %d users, want 1", len(l.Users()))
	}
}

func TestLedger_ClosedBatchRejectsWrites(t *testing.T) {
	l := ledger.New()
	b, _ := l.Begin("x")
	_ = b.Commit(1)

	if err := b.AddDebt(uuid.New(), u(1)); !errors.Is(err, ledger.ErrBatchClosed) {
		t.Errorf("got %v, want ErrBatchClosed", err)
	}
	if err := b.Rollback(); !errors.Is(err, ledger.ErrBatchClosed) {
		t.Errorf("got %v, want ErrBatchClosed", err)
	}
}

func TestLedger_InsufficientBalances(t *testing.T) {
	l := ledger.New()
	user := uuid.New()
	b, _ := l.Begin("x")
	_ = b.AddCollateral(user, "WETH", u(10))
	_ = b.AddDebt(user, u(5))

	if err := b.RemoveCollateral(user, "WETH", u(11), ledger.JournalTypeWithdrawal); !errors.Is(err, ledger.ErrInsufficientCollateral) {
		t.Errorf("got %v, want ErrInsufficientCollateral", err)
	}
	if err := b.RemoveDebt(user, u(6), ledger.JournalTypeRepay); !errors.Is(err, ledger.ErrInsufficientDebt) {
		t.Errorf("got %v, want ErrInsufficientDebt", err)
	}
	if err := b.RemoveCollateral(user, "WETH", u(10), ledger.JournalTypeWithdrawal); err != nil {
		t.Errorf("exact withdrawal should pass: %v", err)
	}
}

func TestLedger_ZeroAmountIsNoop(t *testing.T) {
	l := ledger.New()
	user := uuid.New()
	b, _ := l.Begin("x")

	if err := b.AddCollateral(user, "WETH", u(0)); err != nil {
		t.Fatalf("AddCollateral(0): %v", err)
	}
	if len(b.Journals) != 0 {
		t.Error("zero amount should not produce a journal")
	}
	if l.HasUser(user) {
		t.Error("zero amount should not register a user")
	}
}

func TestLedger_ReplayMatchesLive(t *testing.T) {
	live := ledger.New()
	a, c := uuid.New(), uuid.New()

	var all []ledger.Journal
	b, _ := live.Begin("1")
	_ = b.AddCollateral(a, "WETH", u(100))
	_ = b.AddDebt(a, u(40))
	_ = b.Commit(1)
	all = append(all, b.Journals...)

	b, _ = live.Begin("2")
	_ = b.AddCollateral(c, "WBTC", u(3))
	_ = b.RemoveDebt(a, u(10), ledger.JournalTypeRepay)
	_ = b.Commit(2)
	all = append(all, b.Journals...)

	replayed := ledger.New()
	if err := replayed.Replay(all); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for k, v := range live.Balances() {
		if !replayed.Balance(k).Eq(v) {
			t.Errorf("%s: got %s, want %s", k.AccountPath(), replayed.Balance(k).Dec(), v.Dec())
		}
	}
	if got, want := replayed.Users(), live.Users(); len(got) != len(want) || got[0] != want[0] {
		t.Errorf("got users %v, want %v", got, want)
	}
}

func TestLedger_Restore(t *testing.T) {
	l := ledger.New()
	user := uuid.New()
	err := l.Restore(map[ledger.AccountKey]*uint256.Int{
		ledger.NewCollateralKey(user, "WETH"): u(8),
		ledger.NewCustodyKey("WETH"):          u(8),
	}, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !l.HasUser(user) {
		t.Error("users should be derived from balances")
	}
	if !l.Collateral(user, "WETH").Eq(u(8)) {
		t.Errorf("got %s, want 8", l.Collateral(user, "WETH").Dec())
	}
}

func TestBatch_Accounts_Sorted(t *testing.T) {
	l := ledger.New()
	user := uuid.New()
	b, _ := l.Begin("x")
	_ = b.AddDebt(user, u(1))
	_ = b.AddCollateral(user, "WETH", u(1))

	accounts := b.Accounts()
	if len(accounts) != 4 {
		t.Fatalf("got %d accounts, want 4", len(accounts))
	}
	for i := 1; i < len(accounts); i++ {
		if accounts[i-1].AccountPath() > accounts[i].AccountPath() {
			t.Errorf("accounts not sorted at %d", i)
		}
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_Conservation(t *testing.T) {
	l := ledger.New()
	v := ledger.NewInvariantValidator(l)
	a, c := uuid.New(), uuid.New()

	b, _ := l.Begin("x")
	_ = b.AddCollateral(a, "WETH", u(10))
	_ = b.AddCollateral(c, "WETH", u(5))
	_ = b.AddDebt(a, u(3))
	_ = b.RemoveCollateral(c, "WETH", u(2), ledger.JournalTypeLiquidationSeize)
	_ = b.Commit(1)

	if err := v.ValidateConservation(); err != nil {
		t.Errorf("conserved ledger flagged: %v", err)
	}

	broken := ledger.New()
	_ = broken.Restore(map[ledger.AccountKey]*uint256.Int{
		ledger.NewCollateralKey(a, "WETH"): u(10),
		ledger.NewCustodyKey("WETH"):       u(9),
	}, nil)
	if err := ledger.NewInvariantValidator(broken).ValidateConservation(); err == nil {
		t.Error("expected custody mismatch")
	}

	broken = ledger.New()
	_ = broken.Restore(map[ledger.AccountKey]*uint256.Int{
		ledger.NewDebtKey(a): u(1),
	}, nil)
	if err := ledger.NewInvariantValidator(broken).ValidateConservation(); err == nil {
		t.Error("expected outstanding mismatch")
	}
}
