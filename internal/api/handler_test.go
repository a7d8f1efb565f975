package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/cooldown"
	"github.com/snarkbot/snark/internal/gateway"
	"github.com/snarkbot/snark/internal/provider"
)

// newTestHandler creates a Handler wired with lightweight in-memory deps
// (no Postgres/Redis).
func newTestHandler(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	logger := zap.NewNop()

	models := provider.NewRouter(logger)
	gw := gateway.NewGateway(logger)
	restGW := gateway.NewRESTAdapter(logger)
	gw.Register(restGW)
	ledger := cooldown.NewMemoryLedger()

	h := NewHandler(nil, models, ledger, restGW, gw, logger)
	return h, h.Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
	if body["bot"] != "snark" {
		t.Errorf("expected bot snark, got %q", body["bot"])
	}
}

func TestGatewayStatus(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/gateway/status")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var statuses []gateway.AdapterStatus
	decodeJSON(t, resp, &statuses)
	if len(statuses) != 1 {
		t.Fatalf("expected 1 adapter status, got %d", len(statuses))
	}
	if statuses[0].Platform != "rest" {
		t.Errorf("expected rest adapter, got %q", statuses[0].Platform)
	}
}

func TestListProviders_Empty(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/providers")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string][]string
	decodeJSON(t, resp, &body)
	if len(body["providers"]) != 0 {
		t.Errorf("expected no providers, got %v", body["providers"])
	}
}

func TestListUsers_NoStore(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/users")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a store, got %d", resp.StatusCode)
	}
}

func TestReleaseCooldown(t *testing.T) {
	h, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	ctx := context.Background()
	d, err := h.ledger.CheckAndReserve(ctx, "u1", "image", 10*time.Minute)
	if err != nil || !d.Admitted {
		t.Fatalf("seed reservation: admitted=%v err=%v", d.Admitted, err)
	}

	resp := postJSON(t, ts, "/api/cooldowns/release", releaseRequest{
		UserID:     "u1",
		Capability: "image",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	d, err = h.ledger.CheckAndReserve(ctx, "u1", "image", 10*time.Minute)
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if !d.Admitted {
		t.Error("expected admission after release")
	}
}

func TestReleaseCooldown_Validation(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/cooldowns/release", releaseRequest{UserID: "u1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
