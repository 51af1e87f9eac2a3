package server

import (
	"SynthLedger/internal/engine"
	"SynthLedger/internal/event"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/query"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// CallerHeader carries the identity of the account issuing a command.
const CallerHeader = "X-Account-ID"

// Wallets is the development view of collateral token balances.
type Wallets interface {
	Mint(token string, to uuid.UUID, amount *uint256.Int) error
	BalanceOf(token string, account uuid.UUID) *uint256.Int
}

// SyntheticWallets exposes synthetic unit balances.
type SyntheticWallets interface {
	Symbol() string
	BalanceOf(account uuid.UUID) *uint256.Int
}

// Deps holds everything the HTTP API needs. Query is optional (projection
// routes answer 503 without it); Wallets and Synthetic enable the /v1/dev
// routes.
type Deps struct {
	Sequencer *engine.Sequencer
	Query     *query.QueryService
	Wallets   Wallets
	Synthetic SyntheticWallets
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
}

type api struct {
	deps Deps
	log  zerolog.Logger
}

// apiHandler returns the response body or an error mapped by httpStatus.
type apiHandler func(r *http.Request, params map[string]string) (any, error)

type route struct {
	method, pattern string
	h               apiHandler
}

// NewHandler builds the HTTP/JSON API on a grpc-gateway ServeMux, with
// health endpoints alongside.
func NewHandler(deps Deps) (http.Handler, error) {
	a := &api{deps: deps, log: observability.NewLogger("api")}
	gw := runtime.NewServeMux()

	routes := []route{
		{http.MethodPost, "/v1/deposit", a.command(engine.OpDeposit)},
		{http.MethodPost, "/v1/withdraw", a.command(engine.OpWithdraw)},
		{http.MethodPost, "/v1/issue", a.command(engine.OpIssue)},
		{http.MethodPost, "/v1/repay", a.command(engine.OpRepay)},
		{http.MethodPost, "/v1/deposit-and-issue", a.command(engine.OpDepositAndIssue)},
		{http.MethodPost, "/v1/withdraw-and-repay", a.command(engine.OpWithdrawAndRepay)},
		{http.MethodPost, "/v1/liquidate", a.command(engine.OpLiquidate)},

		{http.MethodGet, "/v1/value/{asset}/{amount}", a.usdValue},
		{http.MethodGet, "/v1/token-amount/{asset}/{usd}", a.tokenAmount},
		{http.MethodGet, "/v1/accounts/{user}", a.account},
		{http.MethodGet, "/v1/accounts/{user}/collateral-value", a.collateralValue},
		{http.MethodGet, "/v1/accounts/{user}/health", a.healthFactor},
		{http.MethodGet, "/v1/accounts/{user}/positions", a.positions},
		{http.MethodGet, "/v1/accounts/{user}/journals", a.journals},
		{http.MethodGet, "/v1/assets", a.assets},
		{http.MethodGet, "/v1/params", a.params},
		{http.MethodGet, "/v1/liquidations", a.liquidations},

		{http.MethodGet, "/v1/admin/integrity", a.integrity},
		{http.MethodPost, "/v1/admin/resume", a.resume},
	}
	if deps.Wallets != nil {
		routes = append(routes,
			route{http.MethodPost, "/v1/dev/faucet", a.faucet},
			route{http.MethodGet, "/v1/dev/wallets/{user}", a.wallet},
		)
	}

	for _, rt := range routes {
		if err := gw.HandlePath(rt.method, rt.pattern, a.wrap(rt.pattern, rt.h)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	mux := http.NewServeMux()
	if deps.Health != nil {
		mux.HandleFunc("/healthz", deps.Health.LivenessHandler)
		mux.HandleFunc("/readyz", deps.Health.ReadinessHandler)
	}
	mux.Handle("/", gw)
	return mux, nil
}

func (a *api) wrap(route string, h apiHandler) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		body, err := h(r, params)

		status := http.StatusOK
		if err != nil {
			status = httpStatus(err)
			body = errorBody(err)
			if status >= http.StatusInternalServerError {
				a.log.Error().Err(err).Str("route", route).Int("status", status).Msg("request failed")
			}
		}
		writeJSON(w, status, body)

		if m := a.deps.Metrics; m != nil {
			m.APIRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
			m.APIDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	}
}

// ============================================================================
// Commands
// ============================================================================

type commandRequest struct {
	RequestID        string `json:"request_id"`
	Asset            string `json:"asset"`
	Amount           string `json:"amount"`
	CollateralAmount string `json:"collateral_amount"`
	IssueAmount      string `json:"issue_amount"`
	RepayAmount      string `json:"repay_amount"`
	Target           string `json:"target"`
	DebtToCover      string `json:"debt_to_cover"`
}

// toCommand maps the body fields each operation reads onto a Command.
func (req commandRequest) toCommand(op engine.Op, caller uuid.UUID) (engine.Command, error) {
	cmd := engine.Command{RequestID: req.RequestID, Op: op, Caller: caller, Asset: req.Asset}
	var err error
	switch op {
	case engine.OpDeposit, engine.OpWithdraw:
		cmd.CollateralAmount, err = parseAmount("amount", req.Amount)
	case engine.OpIssue, engine.OpRepay:
		cmd.DebtAmount, err = parseAmount("amount", req.Amount)
	case engine.OpDepositAndIssue:
		if cmd.CollateralAmount, err = parseAmount("collateral_amount", req.CollateralAmount); err == nil {
			cmd.DebtAmount, err = parseAmount("issue_amount", req.IssueAmount)
		}
	case engine.OpWithdrawAndRepay:
		if cmd.CollateralAmount, err = parseAmount("collateral_amount", req.CollateralAmount); err == nil {
			cmd.DebtAmount, err = parseAmount("repay_amount", req.RepayAmount)
		}
	case engine.OpLiquidate:
		if cmd.Target, err = parseUser("target", req.Target); err == nil {
			cmd.DebtAmount, err = parseAmount("debt_to_cover", req.DebtToCover)
		}
	}
	return cmd, err
}

type receiptResponse struct {
	RequestID string      `json:"request_id"`
	Operation engine.Op   `json:"operation"`
	Sequence  int64       `json:"sequence"`
	StateHash event.Hash  `json:"state_hash"`
	Duplicate bool        `json:"duplicate"`
	Events    []eventView `json:"events"`
}

type eventView struct {
	Type event.EventType `json:"type"`
	Data event.Event     `json:"data"`
}

func (a *api) command(op engine.Op) apiHandler {
	return func(r *http.Request, _ map[string]string) (any, error) {
		caller, err := callerOf(r)
		if err != nil {
			return nil, err
		}
		var req commandRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}
		cmd, err := req.toCommand(op, caller)
		if err != nil {
			return nil, err
		}

		rec, err := a.deps.Sequencer.Submit(r.Context(), cmd)
		if err != nil {
			if a.deps.Health != nil && (errors.Is(err, engine.ErrCompensationFailed) || errors.Is(err, engine.ErrEngineHalted)) {
				a.deps.Health.SetDegraded("engine halted")
			}
			return nil, err
		}
		resp := receiptResponse{
			RequestID: rec.RequestID,
			Operation: rec.Op,
			Sequence:  rec.Sequence,
			StateHash: rec.StateHash,
			Duplicate: rec.Duplicate,
			Events:    make([]eventView, 0, len(rec.Events)),
		}
		for _, e := range rec.Events {
			resp.Events = append(resp.Events, eventView{Type: e.EventType(), Data: e})
		}
		return resp, nil
	}
}

func (a *api) resume(r *http.Request, _ map[string]string) (any, error) {
	err := a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) error {
		return e.Resume()
	})
	if err != nil {
		return nil, err
	}
	if a.deps.Health != nil {
		a.deps.Health.SetDegraded("")
	}
	a.log.Warn().Msg("engine resumed by operator")
	return map[string]string{"status": "resumed"}, nil
}
