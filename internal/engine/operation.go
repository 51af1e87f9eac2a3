package engine

import (
	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// compensation undoes one external effect that already succeeded.
type compensation struct {
	effect string
	undo   func() error
}

// operation is the scope of one Execute call: its ledger batch, the
// external effects to undo on failure, and the events to emit on commit.
type operation struct {
	e      *Engine
	cmd    Command
	batch  *ledger.Batch
	undo   []compensation
	events []event.Event
}

func (e *Engine) begin(cmd Command) (*operation, error) {
	batch, err := e.ledger.Begin(cmd.RequestID)
	if err != nil {
		return nil, err
	}
	return &operation{e: e, cmd: cmd, batch: batch}, nil
}

func (op *operation) run() error {
	c := op.cmd
	switch c.Op {
	case OpDeposit:
		return op.deposit(c.Caller, c.Asset, c.CollateralAmount)
	case OpWithdraw:
		return op.withdraw(c.Caller, c.Asset, c.CollateralAmount)
	case OpIssue:
		return op.issue(c.Caller, c.DebtAmount)
	case OpRepay:
		return op.repay(c.Caller, c.Caller, c.DebtAmount, ledger.JournalTypeRepay)
	case OpDepositAndIssue:
		if err := op.deposit(c.Caller, c.Asset, c.CollateralAmount); err != nil {
			return err
		}
		return op.issue(c.Caller, c.DebtAmount)
	case OpWithdrawAndRepay:
		if err := op.repay(c.Caller, c.Caller, c.DebtAmount, ledger.JournalTypeRepay); err != nil {
			return err
		}
		return op.withdraw(c.Caller, c.Asset, c.CollateralAmount)
	case OpLiquidate:
		return op.liquidate(c.Caller, c.Asset, c.Target, c.DebtAmount)
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidCommand, c.Op)
	}
}

func (op *operation) emit(evt event.Event) {
	op.events = append(op.events, evt)
}

// --- External effects. Zero amounts are skipped. ---

func (op *operation) pullCollateral(token string, from uuid.UUID, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := op.e.collateral.Pull(token, from, amount); err != nil {
		return fmt.Errorf("%w: pull %s %s from %s: %w", ErrTransferFailed, amount.Dec(), token, from, err)
	}
	op.compensate("collateral_pull", func() error { return op.e.collateral.Push(token, from, amount) })
	return nil
}

func (op *operation) pushCollateral(token string, to uuid.UUID, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := op.e.collateral.Push(token, to, amount); err != nil {
		return fmt.Errorf("%w: push %s %s to %s: %w", ErrTransferFailed, amount.Dec(), token, to, err)
	}
	op.compensate("collateral_push", func() error { return op.e.collateral.Pull(token, to, amount) })
	return nil
}

func (op *operation) issueSynthetic(to uuid.UUID, amount *uint256.Int) error {
	if err := op.e.synthetic.Issue(to, amount); err != nil {
		return fmt.Errorf("%w: issue %s to %s: %w", ErrIssuanceFailed, amount.Dec(), to, err)
	}
	op.compensate("synthetic_issue", func() error {
		if err := op.e.synthetic.Pull(to, amount); err != nil {
			return err
		}
		return op.e.synthetic.Destroy(amount)
	})
	return nil
}

func (op *operation) pullSynthetic(from uuid.UUID, amount *uint256.Int) error {
	if err := op.e.synthetic.Pull(from, amount); err != nil {
		return fmt.Errorf("%w: pull %s synthetic from %s: %w", ErrTransferFailed, amount.Dec(), from, err)
	}
	op.compensate("synthetic_pull", func() error { return op.e.synthetic.Push(from, amount) })
	return nil
}

func (op *operation) destroySynthetic(amount *uint256.Int) error {
	if err := op.e.synthetic.Destroy(amount); err != nil {
		return fmt.Errorf("%w: destroy %s: %w", ErrDestroyFailed, amount.Dec(), err)
	}
	op.compensate("synthetic_destroy", func() error { return op.e.synthetic.Issue(op.e.self, amount) })
	return nil
}

func (op *operation) compensate(effect string, undo func() error) {
	op.undo = append(op.undo, compensation{effect: effect, undo: undo})
}

// abort undoes external effects newest first, then rolls back the ledger.
// If any compensation fails the engine halts and the returned error joins
// cause with ErrCompensationFailed.
func (op *operation) abort(cause error) error {
	e := op.e
	var failures []error

	for i := len(op.undo) - 1; i >= 0; i-- {
		c := op.undo[i]
		outcome := "ok"
		if err := c.undo(); err != nil {
			outcome = "failed"
			failures = append(failures, fmt.Errorf("%s: %w", c.effect, err))
			e.log.Error().Err(err).
				Str("request_id", op.cmd.RequestID).
				Str("effect", c.effect).
				Msg("compensation failed")
		}
		if e.metrics != nil {
			e.metrics.Compensations.WithLabelValues(c.effect, outcome).Inc()
		}
	}

	if err := op.batch.Rollback(); err != nil {
		failures = append(failures, fmt.Errorf("ledger rollback: %w", err))
	}

	if len(failures) == 0 {
		return cause
	}
	fatal := fmt.Errorf("%w: %w", ErrCompensationFailed, errors.Join(failures...))
	e.halt(fatal)
	return errors.Join(cause, fatal)
}

// commit checks conservation, seals the batch under the next sequence,
// extends the hash chain and emits the output.
func (op *operation) commit() (Receipt, error) {
	e := op.e

	if err := errors.Join(e.validator.ValidateBatchBalance(op.batch), e.validator.ValidateConservation()); err != nil {
		cause := fmt.Errorf("%w: %w", ErrInvariantViolated, err)
		err = op.abort(cause)
		if e.haltCause == nil {
			e.halt(cause)
		}
		return Receipt{}, err
	}

	seq := e.sequence + 1
	if err := op.batch.Commit(seq); err != nil {
		return Receipt{}, err
	}
	e.sequence = seq

	digest := stateDigest(e.ledger, op.batch.Accounts())
	prev := e.hasher.Tip()
	hash := e.hasher.ComputeHash(seq, digest)

	envelope := &event.Envelope{
		Sequence:       seq,
		IdempotencyKey: op.cmd.RequestID,
		Operation:      string(op.cmd.Op),
		Caller:         op.cmd.Caller,
		Timestamp:      e.clock().UTC(),
		StateHash:      hash,
		PrevHash:       prev,
		Events:         op.events,
	}
	e.publish(Output{Envelope: envelope, Journals: op.batch.Journals, StateDigest: digest})

	if e.metrics != nil {
		for _, j := range op.batch.Journals {
			e.metrics.Journals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}

	return Receipt{
		RequestID: op.cmd.RequestID,
		Op:        op.cmd.Op,
		Sequence:  seq,
		StateHash: hash,
		Events:    op.events,
	}, nil
}

// publish: persistence uses a blocking send so no committed output is
// lost; the publish channel drops on full since projections can rebuild
// from the event log.
func (e *Engine) publish(out Output) {
	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- out
		}
	}

	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}
