package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/infigrid-core/internal/ledger"
	"github.com/nerrad567/infigrid-core/internal/node"
)

// Error represents a structured error response. LedgerCode carries the
// stable numeric rejection code when the ledger refused the call.
type Error struct {
	Status     int         `json:"status"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	LedgerCode ledger.Code `json:"ledger_code,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// ledgerStatus maps each ledger rejection code to an HTTP status and error code.
var ledgerStatus = map[ledger.Code]struct {
	status int
	code   string
}{
	ledger.ErrNotAuthorized.Code:           {http.StatusForbidden, ErrCodeForbidden},
	ledger.ErrDeviceNotFound.Code:          {http.StatusNotFound, ErrCodeNotFound},
	ledger.ErrDeviceAlreadyRegistered.Code: {http.StatusConflict, ErrCodeConflict},
	ledger.ErrDeviceInactive.Code:          {http.StatusConflict, ErrCodeConflict},
	ledger.ErrInvalidNumericValue.Code:     {http.StatusBadRequest, ErrCodeValidation},
	ledger.ErrTriggerAlreadyExists.Code:    {http.StatusConflict, ErrCodeConflict},
	ledger.ErrTriggerNotFound.Code:         {http.StatusNotFound, ErrCodeNotFound},
	ledger.ErrGroupNotFound.Code:           {http.StatusNotFound, ErrCodeNotFound},
	ledger.ErrGroupAlreadyExists.Code:      {http.StatusConflict, ErrCodeConflict},
	ledger.ErrAlertNotFound.Code:           {http.StatusNotFound, ErrCodeNotFound},
	ledger.ErrAlertAlreadyExists.Code:      {http.StatusConflict, ErrCodeConflict},
	ledger.ErrAlertAlreadyResolved.Code:    {http.StatusConflict, ErrCodeConflict},
	ledger.ErrInvalidInput.Code:            {http.StatusBadRequest, ErrCodeValidation},
	ledger.ErrTimestampConflict.Code:       {http.StatusConflict, ErrCodeConflict},
	ledger.ErrArithmeticOverflow.Code:      {http.StatusUnprocessableEntity, ErrCodeValidation},
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeSubmitError translates an error from node.Submit into a response.
// Ledger rejections keep their numeric code; anything else is a server fault.
func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	if code, ok := ledger.CodeOf(err); ok {
		m, known := ledgerStatus[code]
		if !known {
			m.status, m.code = http.StatusBadRequest, ErrCodeBadRequest
		}
		writeJSON(w, m.status, Error{
			Status:     m.status,
			Code:       m.code,
			Message:    err.Error(),
			LedgerCode: code,
		})
		return
	}

	switch {
	case errors.Is(err, node.ErrNotCommitted), errors.Is(err, node.ErrDegraded), errors.Is(err, node.ErrClosed):
		s.logger.Error("transaction not committed", "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "ledger unavailable, transaction not committed")
	default:
		s.logger.Error("transaction failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeLedgerNotFound writes a 404 carrying the ledger code a mutation on the
// same missing entity would have returned.
func writeLedgerNotFound(w http.ResponseWriter, err error) {
	code, _ := ledger.CodeOf(err)
	writeJSON(w, http.StatusNotFound, Error{
		Status:     http.StatusNotFound,
		Code:       ErrCodeNotFound,
		Message:    err.Error(),
		LedgerCode: code,
	})
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="infigrid"`)
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
