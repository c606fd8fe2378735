package api

import (
	"net/http"

	"github.com/nerrad567/infigrid-core/internal/ledger"
	"github.com/nerrad567/infigrid-core/internal/node"
)

// handleCreateGroup creates a device group.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var call node.CreateGroup
	if !decodeBody(w, r, &call) {
		return
	}
	s.submit(w, r, call, http.StatusCreated)
}

// handleGetGroup returns a group with its members and open-alert count.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "group")

	var (
		g     ledger.DeviceGroup
		found bool
	)
	if !s.view(w, func(l *ledger.Ledger) { g, found = l.GetGroup(id) }) {
		return
	}
	if !found {
		writeLedgerNotFound(w, ledger.ErrGroupNotFound)
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// handleAddDevice adds a registered device to a group.
func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, node.AddDevice{
		GroupID: pathParam(r, "group"),
		Device:  devicePath(r),
	}, http.StatusOK)
}

// handleCreateAlert opens an alert on a group.
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var call node.CreateAlert
	if !decodeBody(w, r, &call) {
		return
	}
	call.GroupID = pathParam(r, "group")

	s.submit(w, r, call, http.StatusCreated)
}

// handleGetAlert returns one of a group's alerts.
func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	groupID := pathParam(r, "group")
	alertID, ok := uintParam(w, r, "alertID")
	if !ok {
		return
	}

	var (
		a     ledger.GroupAlert
		found bool
	)
	if !s.view(w, func(l *ledger.Ledger) { a, found = l.GetAlert(groupID, alertID) }) {
		return
	}
	if !found {
		writeLedgerNotFound(w, ledger.ErrAlertNotFound)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// handleResolveAlert resolves an open group alert.
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := uintParam(w, r, "alertID")
	if !ok {
		return
	}

	s.submit(w, r, node.ResolveAlert{
		GroupID: pathParam(r, "group"),
		AlertID: alertID,
	}, http.StatusOK)
}
