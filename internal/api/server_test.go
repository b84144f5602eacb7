package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"rwaScope/internal/metrics"
	"rwaScope/internal/model"
	"rwaScope/internal/storage"
	"rwaScope/internal/storage/memory"
)

func newTestServer(t *testing.T) (*memory.Store, *httptest.Server) {
	t.Helper()
	store := memory.New(0)
	server := NewServer(store, metrics.NewAggregator(store, 0), []string{"polygon", "base"}, zap.NewNop())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return store, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func seedEvents(t *testing.T, store *memory.Store) {
	t.Helper()
	batch := storage.Batch{
		Network:     "polygon",
		BlockNumber: 100,
		BlockHash:   "0xaa",
		BlockTime:   1700000000,
		Events: []model.LogEvent{
			{
				Network:     "polygon",
				BlockNumber: 100,
				TxHash:      "0xt1",
				LogIndex:    0,
				Topics:      []string{"0xtopic"},
			},
			{
				Network:     "polygon",
				BlockNumber: 100,
				TxHash:      "0xt1",
				LogIndex:    1,
				Topics:      []string{"0xtopic"},
			},
		},
	}
	if err := store.ApplyBatch(context.Background(), batch); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	_, ts := newTestServer(t)

	if status := getJSON(t, ts.URL+"/healthz", nil); status != http.StatusOK {
		t.Fatalf("healthz status: %d", status)
	}
	if status := getJSON(t, ts.URL+"/readyz", nil); status != http.StatusOK {
		t.Fatalf("readyz status: %d", status)
	}
}

func TestEventsEndpoint(t *testing.T) {
	store, ts := newTestServer(t)
	seedEvents(t, store)

	var page struct {
		Items []model.LogEvent `json:"items"`
		Total int              `json:"total"`
	}
	if status := getJSON(t, ts.URL+"/v1/events?network=polygon", &page); status != http.StatusOK {
		t.Fatalf("events status: %d", status)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("page mismatch: total=%d items=%d", page.Total, len(page.Items))
	}
	if page.Items[0].LogIndex != 0 || page.Items[1].LogIndex != 1 {
		t.Fatalf("ordering mismatch: %+v", page.Items)
	}

	if status := getJSON(t, ts.URL+"/v1/events?network=base", &page); status != http.StatusOK {
		t.Fatalf("events status: %d", status)
	}
	if page.Total != 0 {
		t.Fatalf("unexpected rows for other network: %d", page.Total)
	}
}

func TestCheckpointsEndpoint(t *testing.T) {
	store, ts := newTestServer(t)
	seedEvents(t, store)

	var checkpoints []model.Checkpoint
	if status := getJSON(t, ts.URL+"/v1/checkpoints", &checkpoints); status != http.StatusOK {
		t.Fatalf("checkpoints status: %d", status)
	}
	if len(checkpoints) != 2 {
		t.Fatalf("expected one checkpoint per configured network, got %d", len(checkpoints))
	}
	for _, cp := range checkpoints {
		if cp.Network == "polygon" && cp.LastProcessedBlock != 100 {
			t.Fatalf("polygon checkpoint mismatch: %+v", cp)
		}
	}
}

func TestNetworkMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	var m model.NetworkMetrics
	if status := getJSON(t, ts.URL+"/v1/metrics/networks/polygon", &m); status != http.StatusOK {
		t.Fatalf("metrics status: %d", status)
	}
	if m.SuccessRate != 100 {
		t.Fatalf("empty network success rate mismatch: %v", m.SuccessRate)
	}

	if status := getJSON(t, ts.URL+"/v1/metrics/networks/unknown", nil); status != http.StatusNotFound {
		t.Fatalf("unknown network status: %d", status)
	}
}

func TestOperationIntake(t *testing.T) {
	_, ts := newTestServer(t)

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(ts.URL+"/v1/operations", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post(`{"network":"polygon","type":"deployment","tx_hash":"0xabc","from":"0x01"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("intake status: %d", resp.StatusCode)
	}
	var created model.TrackedOperation
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID != "polygon:0xabc" || created.Status != model.OpPending {
		t.Fatalf("created mismatch: %+v", created)
	}

	if resp := post(`{"network":"unknown","type":"deployment","tx_hash":"0x1"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown network status: %d", resp.StatusCode)
	}
	if resp := post(`{"network":"polygon","type":"lottery","tx_hash":"0x1"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown type status: %d", resp.StatusCode)
	}

	var ops []model.TrackedOperation
	if status := getJSON(t, ts.URL+"/v1/operations?network=polygon", &ops); status != http.StatusOK {
		t.Fatalf("list status: %d", status)
	}
	if len(ops) != 1 || ops[0].TxHash != "0xabc" {
		t.Fatalf("list mismatch: %+v", ops)
	}
}

func TestGlobalMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	var global model.GlobalMetrics
	if status := getJSON(t, ts.URL+"/v1/metrics/global", &global); status != http.StatusOK {
		t.Fatalf("global status: %d", status)
	}
	if len(global.ActiveNetworks) != 2 {
		t.Fatalf("active networks mismatch: %v", global.ActiveNetworks)
	}
}
