package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientDisabledWithEmptyURL(t *testing.T) {
	c := NewClient(PeerConfig{Name: "orchestrator"}, time.Second)
	if !c.Disabled() {
		t.Fatalf("expected a client with no URL to be Disabled")
	}

	res := c.Health(context.Background())
	if res.Status != "disabled" {
		t.Errorf("Health().Status = %q, want disabled", res.Status)
	}

	out := c.Execute(context.Background(), "some_skill", nil)
	if out.Success || out.Error != "disabled" {
		t.Errorf("Execute() = %+v, want disabled error", out)
	}
}

func TestClientHealthReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(PeerConfig{Name: "orchestrator", URL: srv.URL}, time.Second)
	res := c.Health(context.Background())
	if res.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", res.Status)
	}
}

func TestClientHealthUnhealthyOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(PeerConfig{Name: "miner", URL: srv.URL}, time.Second)
	res := c.Health(context.Background())
	if res.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", res.Status)
	}
}

func TestClientExecuteParsesPeerResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["skill_id"] != "analyze" {
			t.Errorf("skill_id = %v, want analyze", body["skill_id"])
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "output": map[string]any{"ok": true}})
	}))
	defer srv.Close()

	c := NewClient(PeerConfig{Name: "orchestrator", URL: srv.URL, Token: "tok"}, time.Second)
	res := c.Execute(context.Background(), "analyze", map[string]any{"x": 1})
	if !res.Success {
		t.Errorf("expected Success=true, got %+v", res)
	}
}

func TestClientExecuteNoRetryOn4xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(PeerConfig{Name: "orchestrator", URL: srv.URL}, time.Second)
	res := c.Execute(context.Background(), "analyze", nil)
	if res.Success {
		t.Errorf("expected failure for a 400 response")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a 4xx response (no retry), got %d", calls)
	}
}

func TestRegistryHealthAllFansOutConcurrently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry([]PeerConfig{
		{Name: "orchestrator", URL: srv.URL},
		{Name: "miner", URL: srv.URL},
		{Name: "log_attacker"}, // disabled
	}, time.Second)

	results := reg.HealthAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results["orchestrator"].Status != "healthy" || results["miner"].Status != "healthy" {
		t.Errorf("expected configured peers healthy, got %+v", results)
	}
	if results["log_attacker"].Status != "disabled" {
		t.Errorf("expected disabled peer reported as disabled, got %+v", results["log_attacker"])
	}
}

func TestRegistryNamesPreservesOrder(t *testing.T) {
	reg := NewRegistry([]PeerConfig{{Name: "orchestrator"}, {Name: "miner"}, {Name: "log_attacker"}}, time.Second)
	names := reg.Names()
	want := []string{"orchestrator", "miner", "log_attacker"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistryGetUnknownPeerIsNil(t *testing.T) {
	reg := NewRegistry(nil, time.Second)
	if reg.Get("nonexistent") != nil {
		t.Errorf("expected nil for an unknown peer")
	}
}
