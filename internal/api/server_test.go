package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/infigrid-core/internal/auth"
	"github.com/nerrad567/infigrid-core/internal/infrastructure/config"
	"github.com/nerrad567/infigrid-core/internal/infrastructure/database"
	"github.com/nerrad567/infigrid-core/internal/infrastructure/logging"
	"github.com/nerrad567/infigrid-core/internal/journal"
	"github.com/nerrad567/infigrid-core/internal/ledger"
	"github.com/nerrad567/infigrid-core/internal/node"
	_ "github.com/nerrad567/infigrid-core/migrations"
)

const (
	testSecret = "test-secret-key-at-least-32-characters-long"

	sensor   ledger.Principal = "ST1SENSOR"
	operator ledger.Principal = "ST2OPERATOR"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

// testServer creates a Server over a real node and journal backed by a
// temporary SQLite database.
func testServer(t *testing.T) *Server {
	t.Helper()
	srv, _ := testServerWithDB(t)
	return srv
}

// testServerWithDB is testServer that also returns the database so a test
// can break the journal underneath the node.
func testServerWithDB(t *testing.T) (*Server, *database.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	j := journal.New(db.DB)
	n, err := node.Open(ctx, j)
	if err != nil {
		t.Fatalf("node.Open() error: %v", err)
	}
	t.Cleanup(func() { n.Close() }) //nolint:errcheck // Test cleanup

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret, TokenTTL: 15}},
		Logger:   testLogger(),
		Node:     n,
		Journal:  j,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, db
}

func tokenFor(t *testing.T, p ledger.Principal) string {
	t.Helper()
	token, err := auth.GenerateToken(p, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	return token
}

// do sends a request through h. An empty token sends no Authorization header.
func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// expectStatus fails the test when w does not carry want.
func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}

// expectLedgerError checks status and the ledger code of an error response.
func expectLedgerError(t *testing.T, w *httptest.ResponseRecorder, status int, code *ledger.Error) {
	t.Helper()
	expectStatus(t, w, status)
	e := decode[Error](t, w)
	if e.LedgerCode != code.Code {
		t.Errorf("ledger_code = %d, want %d", e.LedgerCode, code.Code)
	}
}

func registerDevice(t *testing.T, h http.Handler, p ledger.Principal) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/devices", tokenFor(t, p),
		node.RegisterDevice{Name: "Sensor " + string(p), DeviceType: "thermometer"})
	expectStatus(t, w, http.StatusCreated)
}

// ─── Server Construction ───────────────────────────────────────────

func TestNew_MissingDependencies(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Node: &node.Node{}, Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}}}},
		{"no node", Deps{Logger: testLogger(), Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}}}},
		{"no secret", Deps{Logger: testLogger(), Node: &node.Node{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

// ─── Health and System Endpoints ───────────────────────────────────

func TestHealth(t *testing.T) {
	router := testServer(t).buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/health", "", nil)
	expectStatus(t, w, http.StatusOK)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestStatsAndJournalHead(t *testing.T) {
	router := testServer(t).buildRouter()
	registerDevice(t, router, sensor)

	w := do(t, router, http.MethodGet, "/api/v1/stats", "", nil)
	expectStatus(t, w, http.StatusOK)
	stats := decode[struct {
		Devices int `json:"devices"`
		Head    struct {
			Seq  uint64 `json:"seq"`
			Hash string `json:"hash"`
		} `json:"head"`
	}](t, w)
	if stats.Devices != 1 {
		t.Errorf("devices = %d, want 1", stats.Devices)
	}
	if stats.Head.Seq != 1 || len(stats.Head.Hash) != 64 {
		t.Errorf("head = %+v, want seq 1 with a 64-char hash", stats.Head)
	}

	w = do(t, router, http.MethodGet, "/api/v1/journal/head", "", nil)
	expectStatus(t, w, http.StatusOK)
	head := decode[map[string]any](t, w)
	if head["seq"] != float64(1) || head["hash"] != stats.Head.Hash {
		t.Errorf("journal head = %v, want seq 1 hash %s", head, stats.Head.Hash)
	}
}

func TestJournalEntries(t *testing.T) {
	router := testServer(t).buildRouter()
	registerDevice(t, router, sensor)
	w := do(t, router, http.MethodPost, "/api/v1/devices/ST1SENSOR/data", tokenFor(t, sensor),
		node.StoreData{DataType: "temperature", Value: "21.5"})
	expectStatus(t, w, http.StatusCreated)

	w = do(t, router, http.MethodGet, "/api/v1/journal/entries?from=2", "", nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[struct {
		Count   int `json:"count"`
		Entries []struct {
			Seq    uint64         `json:"seq"`
			Caller string         `json:"caller"`
			Op     string         `json:"op"`
			Call   map[string]any `json:"call"`
		} `json:"entries"`
	}](t, w)
	if resp.Count != 1 || len(resp.Entries) != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	e := resp.Entries[0]
	if e.Seq != 2 || e.Op != node.OpStoreData || e.Caller != string(sensor) {
		t.Errorf("entry = %+v, want seq 2 storeData by %s", e, sensor)
	}
	if e.Call["value"] != "21.5" || e.Call["device"] != string(sensor) {
		t.Errorf("decoded call = %v", e.Call)
	}

	for _, q := range []string{"from=x", "limit=-1"} {
		w = do(t, router, http.MethodGet, "/api/v1/journal/entries?"+q, "", nil)
		expectStatus(t, w, http.StatusBadRequest)
	}
}

func TestJournalEntries_UndecodableCall(t *testing.T) {
	srv := testServer(t)
	args, err := journal.EncodeArgs(map[string]any{"legacy": 1})
	if err != nil {
		t.Fatalf("EncodeArgs() error: %v", err)
	}
	if _, err := srv.journal.Append(context.Background(), journal.Record{
		Seq: 1, Caller: string(sensor), Op: "retiredOp", Args: args,
	}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/journal/entries", "", nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[struct {
		Entries []struct {
			Op         string         `json:"op"`
			Call       map[string]any `json:"call"`
			Diagnostic string         `json:"diagnostic"`
		} `json:"entries"`
	}](t, w)
	if len(resp.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(resp.Entries))
	}
	e := resp.Entries[0]
	if e.Op != "retiredOp" || e.Call != nil {
		t.Errorf("entry = %+v, want retiredOp without a decoded call", e)
	}
	if !strings.Contains(e.Diagnostic, `"legacy"`) {
		t.Errorf("diagnostic = %q, want the raw arguments", e.Diagnostic)
	}
}

func TestJournalEntries_Disabled(t *testing.T) {
	srv := testServer(t)
	srv.journal = nil

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/journal/entries", "", nil)
	expectStatus(t, w, http.StatusNotFound)
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	router := testServer(t).buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/health", "", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	router := testServer(t).buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	expectStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("Access-Control-Allow-Headers = %q, want Authorization", got)
	}
}

func TestNotFound(t *testing.T) {
	router := testServer(t).buildRouter()
	w := do(t, router, http.MethodGet, "/api/v1/nonexistent", "", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestMutations_RequireToken(t *testing.T) {
	router := testServer(t).buildRouter()
	body := node.RegisterDevice{Name: "Sensor", DeviceType: "thermometer"}

	w := do(t, router, http.MethodPost, "/api/v1/devices", "", body)
	expectStatus(t, w, http.StatusUnauthorized)
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header on 401")
	}

	w = do(t, router, http.MethodPost, "/api/v1/devices", "not-a-token", body)
	expectStatus(t, w, http.StatusUnauthorized)

	foreign, err := auth.GenerateToken(sensor, "another-secret-that-is-long-enough!!", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	w = do(t, router, http.MethodPost, "/api/v1/devices", foreign, body)
	expectStatus(t, w, http.StatusUnauthorized)

	// Reads stay public.
	w = do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR", "", nil)
	expectStatus(t, w, http.StatusNotFound)
}

// ─── Devices and Permissions ───────────────────────────────────────

func TestRegisterAndGetDevice(t *testing.T) {
	router := testServer(t).buildRouter()
	registerDevice(t, router, sensor)

	w := do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR", "", nil)
	expectStatus(t, w, http.StatusOK)
	dev := decode[ledger.Device](t, w)
	if dev.ID != sensor || dev.DeviceType != "thermometer" || !dev.Active {
		t.Errorf("device = %+v, want active thermometer %s", dev, sensor)
	}

	w = do(t, router, http.MethodPost, "/api/v1/devices", tokenFor(t, sensor),
		node.RegisterDevice{Name: "Again", DeviceType: "thermometer"})
	expectLedgerError(t, w, http.StatusConflict, ledger.ErrDeviceAlreadyRegistered)
}

func TestRegisterDevice_InvalidBody(t *testing.T) {
	router := testServer(t).buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, sensor))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, router, http.MethodPost, "/api/v1/devices", tokenFor(t, sensor),
		node.RegisterDevice{Name: "", DeviceType: "thermometer"})
	expectLedgerError(t, w, http.StatusBadRequest, ledger.ErrInvalidInput)
}

func TestGetDevice_NotFound(t *testing.T) {
	router := testServer(t).buildRouter()
	w := do(t, router, http.MethodGet, "/api/v1/devices/NOBODY", "", nil)
	expectLedgerError(t, w, http.StatusNotFound, ledger.ErrDeviceNotFound)
}

func TestSetDeviceActive(t *testing.T) {
	router := testServer(t).buildRouter()
	registerDevice(t, router, sensor)
	token := tokenFor(t, sensor)

	w := do(t, router, http.MethodPut, "/api/v1/devices/ST1SENSOR/active", token, map[string]any{})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, router, http.MethodPut, "/api/v1/devices/ST1SENSOR/active", token, map[string]bool{"active": false})
	expectStatus(t, w, http.StatusOK)
	if dev := decode[ledger.Device](t, w); dev.Active {
		t.Error("device still active after deactivation")
	}

	w = do(t, router, http.MethodPost, "/api/v1/devices/ST1SENSOR/data", token,
		node.StoreData{DataType: "temperature", Value: "20"})
	expectLedgerError(t, w, http.StatusConflict, ledger.ErrDeviceInactive)
}

func TestPermissions(t *testing.T) {
	router := testServer(t).buildRouter()
	registerDevice(t, router, sensor)
	opToken := tokenFor(t, operator)

	w := do(t, router, http.MethodPost, "/api/v1/devices/ST1SENSOR/data", opToken,
		node.StoreData{DataType: "temperature", Value: "20"})
	expectLedgerError(t, w, http.StatusForbidden, ledger.ErrNotAuthorized)

	w = do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR/permissions/ST2OPERATOR", "", nil)
	expectStatus(t, w, http.StatusOK)
	if g := decode[ledger.PermissionGrant](t, w); g.CanWrite || g.CanManage {
		t.Errorf("grant = %+v, want none", g)
	}

	// Only the device may grant.
	w = do(t, router, http.MethodPut, "/api/v1/devices/ST1SENSOR/permissions/ST2OPERATOR", opToken,
		map[string]bool{"can_write": true})
	expectLedgerError(t, w, http.StatusForbidden, ledger.ErrNotAuthorized)

	w = do(t, router, http.MethodPut, "/api/v1/devices/ST1SENSOR/permissions/ST2OPERATOR", tokenFor(t, sensor),
		map[string]bool{"can_write": true})
	expectStatus(t, w, http.StatusOK)

	w = do(t, router, http.MethodPost, "/api/v1/devices/ST1SENSOR/data", opToken,
		node.StoreData{DataType: "temperature", Value: "20"})
	expectStatus(t, w, http.StatusCreated)

	w = do(t, router, http.MethodGet, "/api/v1/devices/NOBODY/permissions/ST2OPERATOR", "", nil)
	expectLedgerError(t, w, http.StatusNotFound, ledger.ErrDeviceNotFound)
}

// ─── Telemetry ─────────────────────────────────────────────────────

func TestStoreAndReadTelemetry(t *testing.T) {
	router := testServer(t).buildRouter()
	registerDevice(t, router, sensor)
	token := tokenFor(t, sensor)

	var last ledger.StoreResult
	for _, v := range []string{"20.9", "22", "-3.5"} {
		w := do(t, router, http.MethodPost, "/api/v1/devices/ST1SENSOR/data", token,
			node.StoreData{DataType: "temperature", Value: v})
		expectStatus(t, w, http.StatusCreated)
		last = decode[ledger.StoreResult](t, w)
	}
	if last.Aggregation.Count != 3 || last.Aggregation.Sum != 39 || last.Aggregation.Average != 13 {
		t.Errorf("aggregation = %+v, want count 3 sum 39 average 13", last.Aggregation)
	}

	ts := last.Record.Timestamp
	w := do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR/data/"+strconv.FormatUint(ts, 10), "", nil)
	expectStatus(t, w, http.StatusOK)
	if rec := decode[ledger.TelemetryRecord](t, w); rec.Value != "-3.5" || !rec.Verified {
		t.Errorf("record = %+v, want verified -3.5", rec)
	}

	w = do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR/aggregations/temperature", "", nil)
	expectStatus(t, w, http.StatusOK)
	if agg := decode[ledger.Aggregation](t, w); agg != last.Aggregation {
		t.Errorf("aggregation = %+v, want %+v", agg, last.Aggregation)
	}

	w = do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR/data/999", "", nil)
	expectStatus(t, w, http.StatusNotFound)
	w = do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR/data/latest", "", nil)
	expectStatus(t, w, http.StatusBadRequest)
	w = do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR/aggregations/humidity", "", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestStoreData_InvalidValue(t *testing.T) {
	router := testServer(t).buildRouter()
	registerDevice(t, router, sensor)

	w := do(t, router, http.MethodPost, "/api/v1/devices/ST1SENSOR/data", tokenFor(t, sensor),
		node.StoreData{DataType: "temperature", Value: "warm"})
	expectLedgerError(t, w, http.StatusBadRequest, ledger.ErrInvalidNumericValue)
}

// ─── Triggers ──────────────────────────────────────────────────────

func TestTriggers(t *testing.T) {
	router := testServer(t).buildRouter()
	registerDevice(t, router, sensor)
	token := tokenFor(t, sensor)

	w := do(t, router, http.MethodPost, "/api/v1/devices/ST1SENSOR/triggers", token, map[string]any{
		"trigger_id": 7,
		"data_type":  "temperature",
		"condition":  "above",
		"threshold":  30,
		"action":     "open-vent",
	})
	expectStatus(t, w, http.StatusCreated)
	if tr := decode[ledger.Trigger](t, w); tr.Condition != ledger.ConditionAbove || !tr.Active {
		t.Errorf("trigger = %+v, want active ABOVE", tr)
	}

	w = do(t, router, http.MethodPost, "/api/v1/devices/ST1SENSOR/data", token,
		node.StoreData{DataType: "temperature", Value: "30.5"})
	expectStatus(t, w, http.StatusCreated)
	if res := decode[ledger.StoreResult](t, w); len(res.Firings) != 1 || res.Firings[0].TriggerID != 7 {
		t.Errorf("firings = %+v, want trigger 7", res.Firings)
	}

	w = do(t, router, http.MethodPut, "/api/v1/devices/ST1SENSOR/triggers/7/active", token, map[string]bool{"active": false})
	expectStatus(t, w, http.StatusOK)

	w = do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR/triggers/7", "", nil)
	expectStatus(t, w, http.StatusOK)
	if tr := decode[ledger.Trigger](t, w); tr.Active {
		t.Error("trigger still active")
	}

	w = do(t, router, http.MethodPost, "/api/v1/devices/ST1SENSOR/triggers", token, map[string]any{
		"trigger_id": 8, "data_type": "temperature", "condition": "sideways", "threshold": 1, "action": "x",
	})
	expectLedgerError(t, w, http.StatusBadRequest, ledger.ErrInvalidInput)

	w = do(t, router, http.MethodGet, "/api/v1/devices/ST1SENSOR/triggers/99", "", nil)
	expectLedgerError(t, w, http.StatusNotFound, ledger.ErrTriggerNotFound)
}

// TestDegradedNodeRefusesReads verifies that once the journal and the
// rebuild both fail, the half-applied call cannot be read back.
func TestDegradedNodeRefusesReads(t *testing.T) {
	srv, db := testServerWithDB(t)
	router := srv.buildRouter()
	token := tokenFor(t, operator)

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	w := do(t, router, http.MethodPost, "/api/v1/groups", token,
		node.CreateGroup{GroupID: "lost", Description: "never journalled"})
	expectStatus(t, w, http.StatusServiceUnavailable)

	w = do(t, router, http.MethodGet, "/api/v1/groups/lost", "", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)

	w = do(t, router, http.MethodGet, "/api/v1/stats", "", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)

	w = do(t, router, http.MethodGet, "/api/v1/health", "", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)
	if resp := decode[HealthResponse](t, w); resp.Status != "degraded" {
		t.Errorf("health status = %q, want degraded", resp.Status)
	}
}

// ─── Groups and Alerts ─────────────────────────────────────────────

func TestGroupsAndAlerts(t *testing.T) {
	router := testServer(t).buildRouter()
	registerDevice(t, router, sensor)
	token := tokenFor(t, operator)

	w := do(t, router, http.MethodPost, "/api/v1/groups", token,
		node.CreateGroup{GroupID: "north-field", Description: "North field sensors", AlertThreshold: 1})
	expectStatus(t, w, http.StatusCreated)

	w = do(t, router, http.MethodPut, "/api/v1/groups/north-field/devices/ST1SENSOR", token, nil)
	expectStatus(t, w, http.StatusOK)

	w = do(t, router, http.MethodPut, "/api/v1/groups/north-field/devices/NOBODY", token, nil)
	expectLedgerError(t, w, http.StatusNotFound, ledger.ErrDeviceNotFound)

	w = do(t, router, http.MethodGet, "/api/v1/groups/north-field", "", nil)
	expectStatus(t, w, http.StatusOK)
	if g := decode[ledger.DeviceGroup](t, w); len(g.Members) != 1 || g.Members[0] != sensor {
		t.Errorf("members = %v, want [%s]", g.Members, sensor)
	}

	w = do(t, router, http.MethodPost, "/api/v1/groups/north-field/alerts", token,
		node.CreateAlert{AlertID: 1, AlertType: "frost", Severity: 3, Message: "below zero"})
	expectStatus(t, w, http.StatusCreated)
	if res := decode[ledger.AlertResult](t, w); !res.Critical || res.OpenAlerts != 1 {
		t.Errorf("alert result = %+v, want critical with one open alert", res)
	}

	w = do(t, router, http.MethodPost, "/api/v1/groups/north-field/alerts/1/resolve", token, nil)
	expectStatus(t, w, http.StatusOK)

	w = do(t, router, http.MethodPost, "/api/v1/groups/north-field/alerts/1/resolve", token, nil)
	expectLedgerError(t, w, http.StatusConflict, ledger.ErrAlertAlreadyResolved)

	w = do(t, router, http.MethodGet, "/api/v1/groups/north-field/alerts/1", "", nil)
	expectStatus(t, w, http.StatusOK)
	if a := decode[ledger.GroupAlert](t, w); !a.Resolved {
		t.Error("alert not resolved")
	}

	w = do(t, router, http.MethodGet, "/api/v1/groups/south-field", "", nil)
	expectLedgerError(t, w, http.StatusNotFound, ledger.ErrGroupNotFound)
	w = do(t, router, http.MethodGet, "/api/v1/groups/north-field/alerts/2", "", nil)
	expectLedgerError(t, w, http.StatusNotFound, ledger.ErrAlertNotFound)
}

// ─── WebSocket Hub ─────────────────────────────────────────────────

func testClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
	hub.Register(client)
	return client
}

func TestHub_PublishRouting(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	ev := node.Event{
		Type:      node.EventReadingStored,
		Seq:       4,
		Device:    sensor,
		Timestamp: time.Now(),
	}

	byType := testClient(hub, string(node.EventReadingStored))
	byDevice := testClient(hub, "device:"+string(sensor))
	everything := testClient(hub, ChannelAll)
	other := testClient(hub, "group:north-field", string(node.EventAlertCreated))

	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	for name, c := range map[string]*WSClient{"type": byType, "device": byDevice, "all": everything} {
		select {
		case data := <-c.send:
			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if msg.EventType != string(node.EventReadingStored) || msg.Seq != 4 {
				t.Errorf("%s subscriber got %+v", name, msg)
			}
		default:
			t.Errorf("%s subscriber received nothing", name)
		}
	}

	select {
	case <-other.send:
		t.Error("unrelated subscriber received the event")
	default:
	}
}

func TestHub_ClientCountAndClose(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	if hub.Name() != "websocket" {
		t.Errorf("Name() = %q, want websocket", hub.Name())
	}

	client := testClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
	// A second unregister must not close the channel twice.
	hub.Unregister(client)

	ctx, cancel := context.WithCancel(context.Background())
	testClient(hub)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if hub.ClientCount() != 0 {
		t.Errorf("after Run exit count = %d, want 0", hub.ClientCount())
	}
}

// TestHub_PublishDuringUnregister races event delivery against clients
// disconnecting; run with -race.
func TestHub_PublishDuringUnregister(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	ev := node.Event{Type: node.EventReadingStored, Device: sensor, Timestamp: time.Now()}

	clients := make([]*WSClient, 8)
	for i := range clients {
		clients[i] = testClient(hub, ChannelAll)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				if err := hub.Publish(context.Background(), ev); err != nil {
					t.Errorf("Publish() error: %v", err)
					return
				}
			}
		}()
	}
	for _, c := range clients {
		hub.Unregister(c)
	}
	wg.Wait()

	for i, c := range clients {
		// Drain whatever was queued before the close; the channel must end closed.
		for range c.send {
		}
		c.trySend([]byte("late"))
		if !c.closed {
			t.Errorf("client %d not marked closed", i)
		}
	}
}

func TestWebSocket_ReceivesCommittedEvents(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer resp.Body.Close()
	defer conn.Close()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	sub := map[string]any{"type": WSTypeSubscribe, "id": "1", "payload": WSSubscribePayload{Channels: []string{"device:ST1SENSOR"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v, want response to 1", ack)
	}

	body, _ := json.Marshal(node.RegisterDevice{Name: "Sensor", DeviceType: "thermometer"})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/devices", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, sensor))
	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", httpResp.StatusCode)
	}

	var ev WSMessage
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if ev.Type != WSTypeEvent || ev.EventType != string(node.EventDeviceRegistered) || ev.Seq != 1 {
		t.Errorf("event = %+v, want device.registered at seq 1", ev)
	}
}

func TestWebSocket_UnknownMessage(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer resp.Body.Close()
	defer conn.Close()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]string{"type": "dance", "id": "9"}); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if msg.Type != WSTypeError || msg.ID != "9" {
		t.Errorf("reply = %+v, want error for 9", msg)
	}
}
