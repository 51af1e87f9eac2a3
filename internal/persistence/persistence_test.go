package persistence_test

import (
	"SynthLedger/internal/engine"
	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/persistence"
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExec records every statement.
type fakeExec struct {
	queries []string
	args    [][]any
}

func (f *fakeExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return nil, nil
}

func sampleOutput(t *testing.T) engine.Output {
	t.Helper()
	user := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	amount := uint256.MustFromDecimal("1500000000000000000")
	batch := uuid.New()

	return engine.Output{
		Envelope: &event.Envelope{
			Sequence:       7,
			IdempotencyKey: "req-7",
			Operation:      "deposit",
			Caller:         user,
			Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			StateHash:      event.Hash{0xaa},
			PrevHash:       event.Hash{0xbb},
			Events:         []event.Event{&event.CollateralDeposited{User: user, Asset: "WETH", Amount: amount}},
		},
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batch,
			EventRef:      "req-7",
			Sequence:      7,
			DebitAccount:  ledger.NewCustodyKey("WETH"),
			CreditAccount: ledger.NewCollateralKey(user, "WETH"),
			Amount:        amount,
			JournalType:   ledger.JournalTypeDeposit,
		}},
	}
}

// ============================================================================
// Test: Record conversion
// ============================================================================

func TestNewRecord(t *testing.T) {
	out := sampleOutput(t)
	rec, err := persistence.NewRecord(out)
	require.NoError(t, err)

	assert.Equal(t, int64(7), rec.Event.Sequence)
	assert.Equal(t, "deposit", rec.Event.Operation)
	assert.Equal(t, out.Envelope.StateHash[:], rec.Event.StateHash)

	var env event.Envelope
	require.NoError(t, json.Unmarshal(rec.Event.Payload, &env))
	assert.Equal(t, out.Envelope.IdempotencyKey, env.IdempotencyKey)
	require.Len(t, env.Events, 1)

	require.Len(t, rec.Journals, 1)
	row := rec.Journals[0]
	assert.Equal(t, "system:custody:WETH", row.DebitAccount)
	assert.Equal(t, "1500000000000000000", row.Amount)
	assert.Equal(t, 0, row.Position)

	j, err := row.Journal()
	require.NoError(t, err)
	assert.Equal(t, out.Journals[0], j)
}

func TestJournalRow_RejectsCorruptRows(t *testing.T) {
	rec, err := persistence.NewRecord(sampleOutput(t))
	require.NoError(t, err)

	bad := rec.Journals[0]
	bad.Amount = "-3"
	_, err = bad.Journal()
	assert.Error(t, err)

	bad = rec.Journals[0]
	bad.CreditAccount = "user:nobody:collateral:WETH"
	_, err = bad.Journal()
	assert.Error(t, err)
}

// ============================================================================
// Test: Writer
// ============================================================================

func TestWriter_MultiRowInsert(t *testing.T) {
	w := persistence.NewEventLogWriter()
	f := &fakeExec{}
	ctx := context.Background()

	a, err := persistence.NewRecord(sampleOutput(t))
	require.NoError(t, err)
	b := a
	b.Event.Sequence = 8

	require.NoError(t, w.WriteEventBatch(ctx, f, []persistence.EventRow{a.Event, b.Event}))
	require.Len(t, f.queries, 1)
	assert.Contains(t, f.queries[0], "($1, $2, $3, $4, $5, $6, $7, $8), ($9, $10, $11, $12, $13, $14, $15, $16)")
	assert.True(t, strings.HasSuffix(f.queries[0], "ON CONFLICT (sequence) DO NOTHING"))
	assert.Len(t, f.args[0], 16)
	assert.Equal(t, int64(8), f.args[0][8])

	require.NoError(t, w.WriteJournalBatch(ctx, f, a.Journals))
	require.Len(t, f.queries, 2)
	assert.Contains(t, f.queries[1], "($1, $2, $3, $4, $5, $6, $7, $8, $9)")
	assert.Len(t, f.args[1], 9)
}

func TestWriter_EmptyBatchIsNoop(t *testing.T) {
	w := persistence.NewEventLogWriter()
	f := &fakeExec{}
	require.NoError(t, w.WriteEventBatch(context.Background(), f, nil))
	require.NoError(t, w.WriteJournalBatch(context.Background(), f, nil))
	assert.Empty(t, f.queries)
}
