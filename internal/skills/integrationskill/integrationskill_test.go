package integrationskill

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/integration"
)

func TestHealthCheckExternalSpecificAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := integration.NewRegistry([]integration.PeerConfig{{Name: "orchestrator", URL: srv.URL}}, time.Second)
	skill := NewHealthCheckExternal(reg)

	out := skill.Execute(context.Background(), map[string]any{"agent": "orchestrator"}, auth.Identity{})
	if success, _ := out["success"].(bool); !success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", out["status"])
	}
}

func TestHealthCheckExternalUnknownAgent(t *testing.T) {
	reg := integration.NewRegistry(nil, time.Second)
	skill := NewHealthCheckExternal(reg)
	out := skill.Execute(context.Background(), map[string]any{"agent": "nonexistent"}, auth.Identity{})
	if success, _ := out["success"].(bool); success {
		t.Fatalf("expected success=false for an unknown agent")
	}
}

func TestHealthCheckExternalAllPeers(t *testing.T) {
	reg := integration.NewRegistry([]integration.PeerConfig{{Name: "miner"}, {Name: "log_attacker"}}, time.Second)
	skill := NewHealthCheckExternal(reg)
	out := skill.Execute(context.Background(), map[string]any{}, auth.Identity{})
	peers, ok := out["peers"].(map[string]any)
	if !ok || len(peers) != 2 {
		t.Fatalf("expected 2 peers reported, got %+v", out["peers"])
	}
}
