package server

import (
	"SynthLedger/internal/engine"
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/query"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Amount fields are base-unit decimal strings; the *_display fields render
// the same value in whole units.

type valueResponse struct {
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	USD        string `json:"usd"`
	USDDisplay string `json:"usd_display"`
}

func (a *api) usdValue(r *http.Request, p map[string]string) (any, error) {
	amount, err := parseAmount("amount", p["amount"])
	if err != nil {
		return nil, err
	}
	var usd *uint256.Int
	err = a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) (err error) {
		usd, err = e.USDValue(p["asset"], amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return valueResponse{
		Asset:      p["asset"],
		Amount:     amount.Dec(),
		USD:        usd.Dec(),
		USDDisplay: fpmath.FormatUnits(usd, fpmath.WadConfig),
	}, nil
}

func (a *api) tokenAmount(r *http.Request, p map[string]string) (any, error) {
	usd, err := parseAmount("usd", p["usd"])
	if err != nil {
		return nil, err
	}
	var amount *uint256.Int
	err = a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) (err error) {
		amount, err = e.TokenAmountForUSD(p["asset"], usd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return valueResponse{
		Asset:      p["asset"],
		Amount:     amount.Dec(),
		USD:        usd.Dec(),
		USDDisplay: fpmath.FormatUnits(usd, fpmath.WadConfig),
	}, nil
}

type balanceView struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type accountResponse struct {
	User          uuid.UUID     `json:"user"`
	Collateral    []balanceView `json:"collateral"`
	Debt          string        `json:"debt"`
	CollateralUSD string        `json:"collateral_usd"`
	HealthFactor  string        `json:"health_factor"`
	Healthy       bool          `json:"healthy"`
	Sequence      int64         `json:"sequence"`
}

func (a *api) account(r *http.Request, p map[string]string) (any, error) {
	user, err := parseUser("user", p["user"])
	if err != nil {
		return nil, err
	}
	var resp accountResponse
	err = a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) error {
		debt, collUSD, err := e.AccountInformation(user)
		if err != nil {
			return err
		}
		hf, err := e.HealthFactor(user)
		if err != nil {
			return err
		}
		view := e.Position(user)
		resp = accountResponse{
			User:          user,
			Collateral:    make([]balanceView, 0, len(view.Collateral)),
			Debt:          debt.Dec(),
			CollateralUSD: collUSD.Dec(),
			HealthFactor:  hf.Dec(),
			Healthy:       !hf.Lt(uint256.NewInt(e.Params().MinHealthFactor)),
			Sequence:      e.Sequence(),
		}
		for _, c := range view.Collateral {
			resp.Collateral = append(resp.Collateral, balanceView{Asset: c.Asset, Amount: c.Amount.Dec()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *api) collateralValue(r *http.Request, p map[string]string) (any, error) {
	user, err := parseUser("user", p["user"])
	if err != nil {
		return nil, err
	}
	var usd *uint256.Int
	err = a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) (err error) {
		usd, err = e.CollateralValue(user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"user":           user,
		"collateral_usd": usd.Dec(),
		"usd_display":    fpmath.FormatUnits(usd, fpmath.WadConfig),
	}, nil
}

func (a *api) healthFactor(r *http.Request, p map[string]string) (any, error) {
	user, err := parseUser("user", p["user"])
	if err != nil {
		return nil, err
	}
	var hf, floor *uint256.Int
	err = a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) (err error) {
		floor = uint256.NewInt(e.Params().MinHealthFactor)
		hf, err = e.HealthFactor(user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"user":              user,
		"health_factor":     hf.Dec(),
		"min_health_factor": floor.Dec(),
		"healthy":           !hf.Lt(floor),
	}, nil
}

type assetView struct {
	Token     string `json:"token"`
	PriceFeed string `json:"price_feed"`
	Index     int    `json:"index"`
}

func (a *api) assets(r *http.Request, _ map[string]string) (any, error) {
	var out []assetView
	err := a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) error {
		for _, as := range e.Assets() {
			out = append(out, assetView{Token: as.Token, PriceFeed: as.PriceFeed, Index: as.Index})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"assets": out}, nil
}

func (a *api) params(r *http.Request, _ map[string]string) (any, error) {
	var params engine.Params
	err := a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) error {
		params = e.Params()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return params, nil
}

// --- projection-backed routes ---

func (a *api) positions(r *http.Request, p map[string]string) (any, error) {
	if a.deps.Query == nil {
		return nil, errNoProjections
	}
	user, err := parseUser("user", p["user"])
	if err != nil {
		return nil, err
	}
	return a.deps.Query.GetPositions(r.Context(), user)
}

func (a *api) journals(r *http.Request, p map[string]string) (any, error) {
	if a.deps.Query == nil {
		return nil, errNoProjections
	}
	user, err := parseUser("user", p["user"])
	if err != nil {
		return nil, err
	}
	limit, before, err := paging(r)
	if err != nil {
		return nil, err
	}
	entries, err := a.deps.Query.GetJournalHistory(r.Context(), user, limit, before)
	if err != nil {
		return nil, err
	}
	return map[string]any{"journals": entries}, nil
}

func (a *api) liquidations(r *http.Request, _ map[string]string) (any, error) {
	if a.deps.Query == nil {
		return nil, errNoProjections
	}
	var f query.LiquidationFilter
	var err error
	if t := r.URL.Query().Get("target"); t != "" {
		target, err := parseUser("target", t)
		if err != nil {
			return nil, err
		}
		f.Target = &target
	}
	if f.Limit, f.BeforeSequence, err = paging(r); err != nil {
		return nil, err
	}
	return a.deps.Query.GetLiquidations(r.Context(), f)
}

func (a *api) integrity(r *http.Request, _ map[string]string) (any, error) {
	if a.deps.Query == nil {
		return nil, errNoProjections
	}
	return a.deps.Query.VerifyIntegrity(r.Context())
}

// paging reads the limit and before query parameters.
func paging(r *http.Request) (int, *int64, error) {
	q := r.URL.Query()
	var limit int
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, nil, badRequest("invalid limit %q", s)
		}
		limit = n
	}
	var before *int64
	if s := q.Get("before"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, nil, badRequest("invalid before %q", s)
		}
		before = &n
	}
	return limit, before, nil
}

// --- development wallets ---

type faucetRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (a *api) faucet(r *http.Request, _ map[string]string) (any, error) {
	var req faucetRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	to, err := parseUser("to", req.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	err = a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) error {
		if _, err := e.CollateralBalance(to, req.Asset); err != nil {
			return err
		}
		return a.deps.Wallets.Mint(req.Asset, to, amount)
	})
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("asset", req.Asset).Str("to", to.String()).Str("amount", amount.Dec()).Msg("faucet mint")
	return balanceView{Asset: req.Asset, Amount: a.deps.Wallets.BalanceOf(req.Asset, to).Dec()}, nil
}

func (a *api) wallet(r *http.Request, p map[string]string) (any, error) {
	user, err := parseUser("user", p["user"])
	if err != nil {
		return nil, err
	}
	var out []balanceView
	err = a.deps.Sequencer.Query(r.Context(), func(e *engine.Engine) error {
		for _, as := range e.Assets() {
			out = append(out, balanceView{Asset: as.Token, Amount: a.deps.Wallets.BalanceOf(as.Token, user).Dec()})
		}
		if s := a.deps.Synthetic; s != nil {
			out = append(out, balanceView{Asset: s.Symbol(), Amount: s.BalanceOf(user).Dec()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": user, "balances": out}, nil
}
