// Package engine is the synthetic-asset issuance engine: the Position
// Manager and Liquidation Engine over the position ledger, with atomic
// operations, a reentrancy guard and a hash-chained output stream.
package engine

import (
	"SynthLedger/internal/event"
	"SynthLedger/internal/health"
	"SynthLedger/internal/ledger"
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Op names a mutating operation.
type Op string

const (
	OpDeposit          Op = "deposit"
	OpWithdraw         Op = "withdraw"
	OpIssue            Op = "issue"
	OpRepay            Op = "repay"
	OpDepositAndIssue  Op = "deposit_and_issue"
	OpWithdrawAndRepay Op = "withdraw_and_repay"
	OpLiquidate        Op = "liquidate"
)

// Command is one mutating request. CollateralAmount carries the collateral
// side and DebtAmount the synthetic side; each Op reads the fields it
// needs (liquidate reads DebtAmount as debtToCover).
type Command struct {
	RequestID        string
	Op               Op
	Caller           uuid.UUID
	Target           uuid.UUID // liquidation target
	Asset            string
	CollateralAmount *uint256.Int
	DebtAmount       *uint256.Int
}

// Receipt describes a committed command.
type Receipt struct {
	RequestID string
	Op        Op
	Sequence  int64
	StateHash event.Hash
	Events    []event.Event
	Duplicate bool
}

// Output is emitted once per committed operation.
type Output struct {
	Envelope    *event.Envelope
	Journals    []ledger.Journal
	StateDigest []byte
}

// Deps wires an Engine. Registry, Prices, Collateral and Synthetic are
// required.
type Deps struct {
	Registry   *registry.Registry
	Prices     oracle.PriceSource
	Collateral CollateralTransfer
	Synthetic  SyntheticIssuer

	// Self is the engine's own account at the collaborators; compensation
	// of a destroy re-issues units here.
	Self   uuid.UUID
	Params Params

	// Ledger defaults to an empty ledger.
	Ledger *ledger.Ledger

	Metrics *observability.Metrics
	Logger  *zerolog.Logger

	// PersistChan receives every output with a blocking send; PublishChan
	// with a non-blocking send. Either may be nil.
	PersistChan chan<- Output
	PublishChan chan<- Output

	// Dedup is the optional Postgres tier of request deduplication.
	Dedup         DBIdempotencyChecker
	DedupCapacity int

	StartSequence int64
	Clock         func() time.Time
}

// Engine owns the position ledger. Mutating operations are serialized by a
// guard that rejects overlapping calls; use a Sequencer to queue callers
// from multiple goroutines. Queries take no guard but are not safe to run
// concurrently with a mutation from another goroutine.
type Engine struct {
	registry   *registry.Registry
	prices     *oracle.Adapter
	ledger     *ledger.Ledger
	validator  *ledger.InvariantValidator
	health     *health.Calculator
	collateral CollateralTransfer
	synthetic  SyntheticIssuer
	self       uuid.UUID

	params       Params
	hp           health.Params
	bonus        *uint256.Int
	liqPrecision *uint256.Int

	guard       guard
	hasher      *StateHasher
	idempotency *IdempotencyChecker
	sequence    int64
	haltCause   error

	metrics     *observability.Metrics
	log         zerolog.Logger
	persistChan chan<- Output
	publishChan chan<- Output
	clock       func() time.Time
}

func New(d Deps) (*Engine, error) {
	if d.Registry == nil || d.Prices == nil || d.Collateral == nil || d.Synthetic == nil {
		return nil, fmt.Errorf("%w: registry, prices, collateral and synthetic are required", registry.ErrConfiguration)
	}
	if err := d.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", registry.ErrConfiguration, err)
	}

	l := d.Ledger
	if l == nil {
		l = ledger.New()
	}
	log := observability.NewLogger("engine")
	if d.Logger != nil {
		log = *d.Logger
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	capacity := d.DedupCapacity
	if capacity <= 0 {
		capacity = 100_000
	}

	hp := d.Params.health()
	prices := oracle.NewAdapter(d.Prices, hp.Precision, uint256.NewInt(d.Params.AdditionalFeedPrecision))

	return &Engine{
		registry:     d.Registry,
		prices:       prices,
		ledger:       l,
		validator:    ledger.NewInvariantValidator(l),
		health:       health.NewCalculator(l, d.Registry, prices, hp),
		collateral:   d.Collateral,
		synthetic:    d.Synthetic,
		self:         d.Self,
		params:       d.Params,
		hp:           hp,
		bonus:        uint256.NewInt(d.Params.LiquidationBonus),
		liqPrecision: uint256.NewInt(d.Params.LiquidationPrecision),
		hasher:       NewStateHasher(),
		idempotency:  NewIdempotencyChecker(capacity, d.Dedup, d.Metrics, log),
		sequence:     d.StartSequence,
		metrics:      d.Metrics,
		log:          log,
		persistChan:  d.PersistChan,
		publishChan:  d.PublishChan,
		clock:        clock,
	}, nil
}

// Execute runs one command to commit or full rollback.
func (e *Engine) Execute(cmd Command) (Receipt, error) {
	start := time.Now()

	// Step 1: Reentrancy guard
	release, err := e.guard.acquire()
	if err != nil {
		e.rejected(cmd, err)
		return Receipt{}, err
	}
	defer release()

	// Step 2: Idempotency check
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	} else if r, dup := e.idempotency.Lookup(cmd.RequestID); dup {
		r.Duplicate = true
		e.log.Debug().Str("request_id", cmd.RequestID).Msg("duplicate request")
		return r, nil
	}

	// Step 3: Refuse work while halted
	if e.haltCause != nil {
		err := fmt.Errorf("%w: %w", ErrEngineHalted, e.haltCause)
		e.rejected(cmd, err)
		return Receipt{}, err
	}

	// Step 4: Guard clauses, before any mutation
	if err := e.validate(cmd); err != nil {
		e.rejected(cmd, err)
		return Receipt{}, err
	}

	// Step 5: Run against an open batch
	op, err := e.begin(cmd)
	if err != nil {
		e.rejected(cmd, err)
		return Receipt{}, err
	}
	if err := op.run(); err != nil {
		err = op.abort(err)
		e.rejected(cmd, err)
		return Receipt{}, err
	}

	// Step 6: Commit, hash and emit
	receipt, err := op.commit()
	if err != nil {
		e.rejected(cmd, err)
		return Receipt{}, err
	}
	e.idempotency.MarkProcessed(receipt)

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(string(cmd.Op)).Inc()
		e.metrics.OpDuration.WithLabelValues(string(cmd.Op)).Observe(time.Since(start).Seconds())
		e.metrics.Sequence.Set(float64(e.sequence))
		if cmd.Op == OpLiquidate {
			e.metrics.Liquidations.WithLabelValues(cmd.Asset).Inc()
		}
		e.observeTotals()
	}
	e.log.Debug().
		Str("op", string(cmd.Op)).
		Str("request_id", cmd.RequestID).
		Int64("sequence", receipt.Sequence).
		Msg("operation committed")

	return receipt, nil
}

func (e *Engine) validate(cmd Command) error {
	if cmd.Caller == uuid.Nil {
		return fmt.Errorf("%w: caller is required", ErrInvalidCommand)
	}

	switch cmd.Op {
	case OpDeposit, OpWithdraw:
		if err := requirePositive(cmd.CollateralAmount); err != nil {
			return err
		}
		return e.requireAccepted(cmd.Asset)
	case OpIssue, OpRepay:
		return requirePositive(cmd.DebtAmount)
	case OpDepositAndIssue, OpWithdrawAndRepay:
		if err := requirePositive(cmd.CollateralAmount); err != nil {
			return err
		}
		if err := requirePositive(cmd.DebtAmount); err != nil {
			return err
		}
		return e.requireAccepted(cmd.Asset)
	case OpLiquidate:
		if err := e.requireAccepted(cmd.Asset); err != nil {
			return err
		}
		if err := requirePositive(cmd.DebtAmount); err != nil {
			return err
		}
		if cmd.Target == uuid.Nil {
			return fmt.Errorf("%w: liquidation target is required", ErrInvalidCommand)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidCommand, cmd.Op)
	}
}

func requirePositive(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	return nil
}

func (e *Engine) requireAccepted(token string) error {
	if !e.registry.IsAccepted(token) {
		return fmt.Errorf("%w: %q", ErrAssetNotAccepted, token)
	}
	return nil
}

func (e *Engine) rejected(cmd Command, err error) {
	kind := Classify(err)
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(string(cmd.Op), kind.String()).Inc()
	}

	evt := e.log.Info()
	if kind == KindFatal {
		evt = e.log.Error()
	}
	evt.Err(err).
		Str("op", string(cmd.Op)).
		Str("request_id", cmd.RequestID).
		Str("caller", cmd.Caller.String()).
		Str("kind", kind.String()).
		Msg("operation rejected")
}

func (e *Engine) observeTotals() {
	for _, a := range e.registry.List() {
		e.metrics.CollateralHeld.WithLabelValues(a.Token).Set(fpmath.ToFloat(e.ledger.Custody(a.Token), fpmath.WadConfig))
	}
	e.metrics.DebtOutstanding.Set(fpmath.ToFloat(e.ledger.Outstanding(), fpmath.WadConfig))
}

// halt stops all further mutations until Resume.
func (e *Engine) halt(cause error) {
	e.haltCause = cause
	if e.metrics != nil {
		e.metrics.EngineHalted.Set(1)
	}
	e.log.Error().Err(cause).Int64("sequence", e.sequence).Msg("engine halted")
}

// Resume clears a halt once an operator has reconciled the collaborators
// with the ledger.
func (e *Engine) Resume() error {
	release, err := e.guard.acquire()
	if err != nil {
		return err
	}
	defer release()

	if e.haltCause == nil {
		return nil
	}
	if err := e.validator.ValidateConservation(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvariantViolated, err)
	}
	e.log.Warn().Err(e.haltCause).Msg("engine resumed")
	e.haltCause = nil
	if e.metrics != nil {
		e.metrics.EngineHalted.Set(0)
	}
	return nil
}

// Halted returns the halt cause, or nil.
func (e *Engine) Halted() error {
	return e.haltCause
}

// WarmIdempotency preloads committed request ids.
func (e *Engine) WarmIdempotency(requestIDs []string) {
	e.idempotency.Warm(requestIDs)
}

// --- Convenience wrappers, one per public operation ---

func (e *Engine) Deposit(user uuid.UUID, asset string, amount *uint256.Int) (Receipt, error) {
	return e.Execute(Command{Op: OpDeposit, Caller: user, Asset: asset, CollateralAmount: amount})
}

func (e *Engine) Withdraw(user uuid.UUID, asset string, amount *uint256.Int) (Receipt, error) {
	return e.Execute(Command{Op: OpWithdraw, Caller: user, Asset: asset, CollateralAmount: amount})
}

func (e *Engine) Issue(user uuid.UUID, amount *uint256.Int) (Receipt, error) {
	return e.Execute(Command{Op: OpIssue, Caller: user, DebtAmount: amount})
}

func (e *Engine) Repay(user uuid.UUID, amount *uint256.Int) (Receipt, error) {
	return e.Execute(Command{Op: OpRepay, Caller: user, DebtAmount: amount})
}

func (e *Engine) DepositAndIssue(user uuid.UUID, asset string, collateralAmount, issueAmount *uint256.Int) (Receipt, error) {
	return e.Execute(Command{Op: OpDepositAndIssue, Caller: user, Asset: asset, CollateralAmount: collateralAmount, DebtAmount: issueAmount})
}

func (e *Engine) WithdrawAndRepay(user uuid.UUID, asset string, collateralAmount, repayAmount *uint256.Int) (Receipt, error) {
	return e.Execute(Command{Op: OpWithdrawAndRepay, Caller: user, Asset: asset, CollateralAmount: collateralAmount, DebtAmount: repayAmount})
}

func (e *Engine) Liquidate(liquidator uuid.UUID, asset string, target uuid.UUID, debtToCover *uint256.Int) (Receipt, error) {
	return e.Execute(Command{Op: OpLiquidate, Caller: liquidator, Asset: asset, Target: target, DebtAmount: debtToCover})
}
