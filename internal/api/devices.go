package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/infigrid-core/internal/ledger"
	"github.com/nerrad567/infigrid-core/internal/node"
)

// activeRequest is the body of the device and trigger activation endpoints.
type activeRequest struct {
	Active *bool `json:"active"`
}

// handleRegisterDevice registers the authenticated caller as a device.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var call node.RegisterDevice
	if !decodeBody(w, r, &call) {
		return
	}
	s.submit(w, r, call, http.StatusCreated)
}

// handleGetDevice returns a registered device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := devicePath(r)

	var (
		dev ledger.Device
		ok  bool
	)
	if !s.view(w, func(l *ledger.Ledger) { dev, ok = l.GetDevice(id) }) {
		return
	}
	if !ok {
		writeLedgerNotFound(w, ledger.ErrDeviceNotFound)
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleSetDeviceActive activates or deactivates a device.
func (s *Server) handleSetDeviceActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeBadRequest(w, "active field is required")
		return
	}

	s.submit(w, r, node.SetDeviceActive{Device: devicePath(r), Active: *req.Active}, http.StatusOK)
}

// handleGetPermission returns the grant an operator holds on a device.
func (s *Server) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	id := devicePath(r)
	operator := ledger.Principal(pathParam(r, "operator"))

	var (
		grant ledger.PermissionGrant
		found bool
		known bool
	)
	if !s.view(w, func(l *ledger.Ledger) {
		_, known = l.GetDevice(id)
		grant, found = l.GetPermission(id, operator)
	}) {
		return
	}
	if !known {
		writeLedgerNotFound(w, ledger.ErrDeviceNotFound)
		return
	}
	if !found {
		// No grant is the same as an all-false grant.
		grant = ledger.PermissionGrant{Device: id, Operator: operator}
	}

	writeJSON(w, http.StatusOK, grant)
}

// handleSetPermission creates or replaces an operator's grant on a device.
func (s *Server) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	var call node.SetPermission
	if !decodeBody(w, r, &call) {
		return
	}
	call.Device = devicePath(r)
	call.Operator = ledger.Principal(pathParam(r, "operator"))

	s.submit(w, r, call, http.StatusOK)
}

// handleStoreData records a reading for a device.
func (s *Server) handleStoreData(w http.ResponseWriter, r *http.Request) {
	var call node.StoreData
	if !decodeBody(w, r, &call) {
		return
	}
	call.Device = devicePath(r)

	s.submit(w, r, call, http.StatusCreated)
}

// handleGetData returns the reading a device stored at a timestamp.
func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	id := devicePath(r)
	ts, ok := uintParam(w, r, "timestamp")
	if !ok {
		return
	}

	var (
		rec   ledger.TelemetryRecord
		found bool
	)
	if !s.view(w, func(l *ledger.Ledger) { rec, found = l.GetData(id, ts) }) {
		return
	}
	if !found {
		writeNotFound(w, "reading not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleGetAggregation returns the running summary of one metric.
func (s *Server) handleGetAggregation(w http.ResponseWriter, r *http.Request) {
	id := devicePath(r)
	dataType := pathParam(r, "dataType")

	var (
		agg   ledger.Aggregation
		found bool
	)
	if !s.view(w, func(l *ledger.Ledger) { agg, found = l.GetAggregation(id, dataType) }) {
		return
	}
	if !found {
		writeNotFound(w, "aggregation not found")
		return
	}

	writeJSON(w, http.StatusOK, agg)
}

// handleCreateTrigger installs a threshold rule on a device.
func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var call node.CreateTrigger
	if !decodeBody(w, r, &call) {
		return
	}
	call.Device = devicePath(r)
	// Accept any case on the wire; unknown names are left for the ledger to reject.
	if c, err := ledger.ParseCondition(string(call.Condition)); err == nil {
		call.Condition = c
	}

	s.submit(w, r, call, http.StatusCreated)
}

// handleGetTrigger returns one of a device's triggers.
func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	id := devicePath(r)
	triggerID, ok := uintParam(w, r, "triggerID")
	if !ok {
		return
	}

	var (
		t     ledger.Trigger
		found bool
	)
	if !s.view(w, func(l *ledger.Ledger) { t, found = l.GetTrigger(id, triggerID) }) {
		return
	}
	if !found {
		writeLedgerNotFound(w, ledger.ErrTriggerNotFound)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleSetTriggerActive enables or disables a trigger.
func (s *Server) handleSetTriggerActive(w http.ResponseWriter, r *http.Request) {
	triggerID, ok := uintParam(w, r, "triggerID")
	if !ok {
		return
	}
	var req activeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeBadRequest(w, "active field is required")
		return
	}

	s.submit(w, r, node.SetTriggerActive{
		Device:    devicePath(r),
		TriggerID: triggerID,
		Active:    *req.Active,
	}, http.StatusOK)
}

// submit runs call as the authenticated caller and writes the ledger's result.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, call node.Call, status int) {
	caller, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "bearer token required")
		return
	}

	result, err := s.node.Submit(r.Context(), caller, call)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	writeJSON(w, status, result)
}

// view runs a ledger lookup. It writes a 503 and returns false when the node
// has no ledger to read.
func (s *Server) view(w http.ResponseWriter, fn func(l *ledger.Ledger)) bool {
	if err := s.node.View(fn); err != nil {
		s.logger.Warn("ledger read refused", "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "ledger unavailable")
		return false
	}
	return true
}

// decodeBody decodes a JSON request body into v. It writes a 400 and returns
// false when the body is missing or malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
	case errors.Is(err, io.EOF):
		writeBadRequest(w, "request body required")
	default:
		writeBadRequest(w, "invalid JSON body")
	}
	return false
}

// pathParam returns an unescaped URL parameter.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// devicePath returns the {device} URL parameter as a principal.
func devicePath(r *http.Request) ledger.Principal {
	return ledger.Principal(pathParam(r, "device"))
}

// uintParam parses a numeric URL parameter, writing a 400 on failure.
func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid "+name)
		return 0, false
	}
	return v, true
}
