package persistence

import (
	"SynthLedger/internal/engine"
	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"
	fpmath "SynthLedger/internal/math"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Record is one committed operation in storage form.
type Record struct {
	Event    EventRow
	Journals []JournalRow
}

// NewRecord converts an engine output. The envelope is stored as the
// JSON payload.
func NewRecord(out engine.Output) (Record, error) {
	env := out.Envelope
	payload, err := json.Marshal(env)
	if err != nil {
		return Record{}, fmt.Errorf("marshal envelope %d: %w", env.Sequence, err)
	}

	rec := Record{
		Event: EventRow{
			Sequence:       env.Sequence,
			Operation:      env.Operation,
			IdempotencyKey: env.IdempotencyKey,
			Caller:         env.Caller,
			Payload:        payload,
			StateHash:      env.StateHash[:],
			PrevHash:       env.PrevHash[:],
			Timestamp:      env.Timestamp,
		},
		Journals: make([]JournalRow, 0, len(out.Journals)),
	}
	for i, j := range out.Journals {
		rec.Journals = append(rec.Journals, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			Position:      i,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Amount:        j.Amount.Dec(),
			JournalType:   int32(j.JournalType),
		})
	}
	return rec, nil
}

// Journal converts the row back to a ledger entry.
func (r JournalRow) Journal() (ledger.Journal, error) {
	journalID, err := uuid.Parse(r.JournalID)
	if err != nil {
		return ledger.Journal{}, fmt.Errorf("journal id: %w", err)
	}
	batchID, err := uuid.Parse(r.BatchID)
	if err != nil {
		return ledger.Journal{}, fmt.Errorf("journal %s batch id: %w", r.JournalID, err)
	}
	debit, err := ledger.ParseAccountPath(r.DebitAccount)
	if err != nil {
		return ledger.Journal{}, fmt.Errorf("journal %s: %w", r.JournalID, err)
	}
	credit, err := ledger.ParseAccountPath(r.CreditAccount)
	if err != nil {
		return ledger.Journal{}, fmt.Errorf("journal %s: %w", r.JournalID, err)
	}
	amount, err := fpmath.ParseBaseUnits(r.Amount)
	if err != nil {
		return ledger.Journal{}, fmt.Errorf("journal %s amount: %w", r.JournalID, err)
	}
	return ledger.Journal{
		JournalID:     journalID,
		BatchID:       batchID,
		EventRef:      r.EventRef,
		Sequence:      r.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
		JournalType:   ledger.JournalType(r.JournalType),
	}, nil
}

// replayRecord assembles the engine replay input for one event row.
func replayRecord(e EventRow, rows []JournalRow) (engine.ReplayRecord, error) {
	hash, err := hashFromBytes(e.StateHash)
	if err != nil {
		return engine.ReplayRecord{}, fmt.Errorf("event %d: %w", e.Sequence, err)
	}
	rec := engine.ReplayRecord{
		Sequence:  e.Sequence,
		RequestID: e.IdempotencyKey,
		StateHash: hash,
		Journals:  make([]ledger.Journal, 0, len(rows)),
	}

	for _, row := range rows {
		j, err := row.Journal()
		if err != nil {
			return engine.ReplayRecord{}, fmt.Errorf("event %d: %w", e.Sequence, err)
		}
		rec.Journals = append(rec.Journals, j)
	}
	return rec, nil
}

// hashFromBytes copies a stored hash column.
func hashFromBytes(b []byte) (event.Hash, error) {
	var h event.Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("hash has %d bytes, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}
