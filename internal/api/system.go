package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/infigrid-core/internal/journal"
	"github.com/nerrad567/infigrid-core/internal/ledger"
	"github.com/nerrad567/infigrid-core/internal/node"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Head    journal.Head `json:"head"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	ledger.Stats
	Head      journal.Head `json:"head"`
	WSClients int          `json:"ws_clients"`
}

// JournalEntry is a journal entry with its call decoded for display. Entries
// this build cannot decode carry their arguments in CBOR diagnostic notation
// instead.
type JournalEntry struct {
	journal.Entry
	Call       node.Call `json:"call,omitempty"`
	Diagnostic string    `json:"diagnostic,omitempty"`
}

// handleHealth reports whether the node still accepts transactions.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Head:    s.node.Head(),
	}
	status := http.StatusOK
	if s.node.Degraded() {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleStats returns ledger table sizes and the journal head.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var stats ledger.Stats
	if !s.view(w, func(l *ledger.Ledger) { stats = l.GetStats() }) {
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Stats:     stats,
		Head:      s.node.Head(),
		WSClients: s.hub.ClientCount(),
	})
}

// handleJournalHead returns the sequence number and hash of the last
// committed entry.
func (s *Server) handleJournalHead(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Head())
}

// handleJournalEntries pages through the journal.
//
// Query parameters:
//   - from: first sequence number (default 1)
//   - limit: page size (default and cap set by the journal)
func (s *Server) handleJournalEntries(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "journal access not enabled")
		return
	}

	from := uint64(1)
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeBadRequest(w, "invalid from")
			return
		}
		from = n
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.journal.Entries(r.Context(), from, limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		writeInternalError(w, "failed to read journal")
		return
	}

	out := make([]JournalEntry, 0, len(entries))
	for _, e := range entries {
		je := JournalEntry{Entry: e}
		call, err := node.DecodeCall(e.Op, e.Args)
		if err != nil {
			s.logger.Warn("undecodable journal entry", "seq", e.Seq, "op", e.Op, "error", err)
			if diag, diagErr := journal.Diagnose(e.Args); diagErr == nil {
				je.Diagnostic = diag
			}
		} else {
			je.Call = call
		}
		out = append(out, je)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}
