package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MRAlirad/ccip-rebase-token/native/rebase"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/ledger"
	rbmw "github.com/MRAlirad/ccip-rebase-token/services/rebased/middleware"
)

// Stable error codes returned in the "code" field.
const (
	codeBadRequest          = "bad_request"
	codeInvalidAmount       = "invalid_amount"
	codeInvalidAddress      = "invalid_address"
	codeUnauthorized        = "unauthorized"
	codeRateDirection       = "rate_direction_violation"
	codeInsufficientBalance = "insufficient_principal"
	codeInsufficientAllow   = "insufficient_allowance"
	codePaused              = "paused"
	codeNotInitialised      = "not_initialised"
	codeConflict            = "conflict"
	codeUnavailable         = "unavailable"
	codeInternal            = "internal"
)

type apiError struct {
	status int
	code   string
}

func classify(err error) apiError {
	switch {
	case errors.Is(err, rebase.ErrUnauthorized):
		return apiError{http.StatusForbidden, codeUnauthorized}
	case errors.Is(err, rebase.ErrRateDirectionViolation):
		return apiError{http.StatusConflict, codeRateDirection}
	case errors.Is(err, rebase.ErrInsufficientPrincipal):
		return apiError{http.StatusUnprocessableEntity, codeInsufficientBalance}
	case errors.Is(err, rebase.ErrInsufficientAllowance):
		return apiError{http.StatusUnprocessableEntity, codeInsufficientAllow}
	case errors.Is(err, rebase.ErrInvalidAmount), errors.Is(err, rebase.ErrInvalidRate), errors.Is(err, rebase.ErrOverflow):
		return apiError{http.StatusBadRequest, codeInvalidAmount}
	case errors.Is(err, rebase.ErrInvalidAddress):
		return apiError{http.StatusBadRequest, codeInvalidAddress}
	case errors.Is(err, rebase.ErrUnknownCapability), errors.Is(err, ledger.ErrInvalidIdempotencyKey):
		return apiError{http.StatusBadRequest, codeBadRequest}
	case errors.Is(err, rebase.ErrPaused):
		return apiError{http.StatusServiceUnavailable, codePaused}
	case errors.Is(err, rebase.ErrNotInitialised):
		return apiError{http.StatusServiceUnavailable, codeNotInitialised}
	case errors.Is(err, ledger.ErrIdempotencyConflict), errors.Is(err, rebase.ErrLastOwner), errors.Is(err, rebase.ErrAlreadyInitialised):
		return apiError{http.StatusConflict, codeConflict}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apiError{http.StatusServiceUnavailable, codeUnavailable}
	default:
		return apiError{http.StatusInternalServerError, codeInternal}
	}
}

func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := classify(err)
	message := err.Error()
	if mapped.status == http.StatusInternalServerError {
		s.logger.Error("rebased: request failed",
			"route", r.URL.Path,
			"request_id", w.Header().Get(rbmw.RequestIDHeader),
			"error", err)
		message = http.StatusText(http.StatusInternalServerError)
	}
	rbmw.WriteError(w, mapped.status, mapped.code, message)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	rbmw.WriteError(w, http.StatusBadRequest, code, message)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
