package server

import (
	"SynthLedger/internal/engine"
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/oracle"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

const maxBodyBytes = 1 << 16

var (
	errNoProjections = errors.New("projections are not configured")
	errNoCaller      = errors.New("missing or invalid " + CallerHeader + " header")
)

// requestError is a malformed request rejected before reaching the engine.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// httpStatus maps an error to its response status.
func httpStatus(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, errNoCaller):
		return http.StatusUnauthorized
	case errors.Is(err, errNoProjections):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch engine.Classify(err) {
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindInvariant, engine.KindInsufficientBalance, engine.KindArithmetic:
		return http.StatusUnprocessableEntity
	case engine.KindConcurrency:
		return http.StatusConflict
	case engine.KindCollaborator:
		if errors.Is(err, oracle.ErrPriceUnavailable) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case engine.KindFatal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	// HealthFactor is set when the error carries the offending ratio.
	HealthFactor string `json:"health_factor,omitempty"`
}

func errorBody(err error) errorResponse {
	resp := errorResponse{Error: err.Error(), Kind: engine.Classify(err).String()}
	var reqErr *requestError
	if errors.As(err, &reqErr) || errors.Is(err, errNoCaller) {
		resp.Kind = engine.KindValidation.String()
	}
	var hfErr *engine.HealthFactorError
	if errors.As(err, &hfErr) && hfErr.HealthFactor != nil {
		resp.HealthFactor = hfErr.HealthFactor.Dec()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func callerOf(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Header.Get(CallerHeader))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errNoCaller
	}
	return id, nil
}

// parseAmount reads a base-unit decimal string. Zero is left for the
// engine to reject.
func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, badRequest("%s is required", field)
	}
	v, err := fpmath.ParseBaseUnits(s)
	if err != nil {
		return nil, badRequest("invalid %s: %v", field, err)
	}
	return v, nil
}

func parseUser(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, badRequest("invalid %s %q", field, s)
	}
	return id, nil
}
