package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/kb"
	"github.com/dev-nexus/devnexus/internal/kb/memstore"
	"github.com/dev-nexus/devnexus/internal/skill"
)

type echoSkill struct {
	id       string
	requires bool
	panics   bool
}

func (s *echoSkill) ID() string                   { return s.id }
func (s *echoSkill) Name() string                 { return s.id }
func (s *echoSkill) Description() string          { return "echoes its input" }
func (s *echoSkill) Tags() []string               { return nil }
func (s *echoSkill) RequiresAuthentication() bool { return s.requires }
func (s *echoSkill) Examples() []skill.Example    { return nil }
func (s *echoSkill) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)
}
func (s *echoSkill) Execute(_ context.Context, input map[string]any, _ auth.Identity) map[string]any {
	if s.panics {
		panic("boom")
	}
	return map[string]any{"success": true, "echoed": input["name"]}
}

func testServer(t *testing.T, opts Options, skills ...skill.Skill) *Server {
	t.Helper()
	reg := skill.NewRegistry("dev-nexus", "test service", "test", "http://localhost", nil)
	for _, sk := range skills {
		if err := reg.Register(sk); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	resolver := auth.New(auth.ModeServiceAccount, nil)
	backing := memstore.New()
	backing.Seed(kb.NewDocument())
	store := kb.New(backing, slog.New(slog.NewTextHandler(io.Discard, nil)))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(opts, reg, resolver, store, logger, prometheus.NewRegistry())
}

func TestHandleIndexListsRegisteredSkills(t *testing.T) {
	srv := testServer(t, Options{Name: "dev-nexus"}, &echoSkill{id: "echo"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["skills_registered"].(float64) != 1 {
		t.Errorf("skills_registered = %v", body["skills_registered"])
	}
}

func TestHandleHealthReportsAccessible(t *testing.T) {
	srv := testServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Fatalf("status = %v", body["status"])
	}
	if body["knowledge_base_accessible"] != true {
		t.Errorf("knowledge_base_accessible = %v", body["knowledge_base_accessible"])
	}
}

func TestHandleAgentCardReflectsRegistry(t *testing.T) {
	srv := testServer(t, Options{}, &echoSkill{id: "echo", requires: true})
	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var card skill.AgentCard
	json.NewDecoder(rec.Body).Decode(&card)
	if len(card.Skills) != 1 || card.Skills[0].ID != "echo" {
		t.Fatalf("card.Skills = %+v", card.Skills)
	}
}

func postJSON(t *testing.T, srv *Server, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestExecuteHappyPath(t *testing.T) {
	srv := testServer(t, Options{}, &echoSkill{id: "echo"})
	rec := postJSON(t, srv, "/a2a/execute", map[string]any{"skill_id": "echo", "input": map[string]any{"name": "world"}}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["echoed"] != "world" {
		t.Errorf("echoed = %v", body["echoed"])
	}
}

func TestExecuteUnknownSkillReturns404(t *testing.T) {
	srv := testServer(t, Options{})
	rec := postJSON(t, srv, "/a2a/execute", map[string]any{"skill_id": "nonexistent", "input": map[string]any{}}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExecuteRequiresAuthenticationReturns401(t *testing.T) {
	srv := testServer(t, Options{}, &echoSkill{id: "echo", requires: true})
	rec := postJSON(t, srv, "/a2a/execute", map[string]any{"skill_id": "echo", "input": map[string]any{"name": "x"}}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestExecuteForbiddenSubjectReturns403(t *testing.T) {
	reg := skill.NewRegistry("dev-nexus", "test", "test", "http://localhost", nil)
	reg.Register(&echoSkill{id: "echo", requires: true})
	resolver := auth.New(auth.ModeServiceAccount, []string{"allowed-svc"})
	backing := memstore.New()
	backing.Seed(kb.NewDocument())
	store := kb.New(backing, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := NewServer(Options{}, reg, resolver, store, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())

	rec := postJSON(t, srv, "/a2a/execute", map[string]any{"skill_id": "echo", "input": map[string]any{"name": "x"}}, map[string]string{"Authorization": "Bearer someone-else"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestExecuteValidationFailureReturns400(t *testing.T) {
	srv := testServer(t, Options{}, &echoSkill{id: "echo"})
	rec := postJSON(t, srv, "/a2a/execute", map[string]any{"skill_id": "echo", "input": map[string]any{}}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if _, ok := body["violations"]; !ok {
		t.Errorf("expected violations in response, got %+v", body)
	}
}

func TestExecutePanicRecoveredAsInternalError(t *testing.T) {
	srv := testServer(t, Options{}, &echoSkill{id: "boom", panics: true})
	rec := postJSON(t, srv, "/a2a/execute", map[string]any{"skill_id": "boom", "input": map[string]any{"name": "x"}}, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected safeExecute to convert a panic into a 500 {success:false} response, got status %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["success"] != false {
		t.Errorf("expected success=false after a panicking skill, got %+v", body)
	}
	if body["correlation_id"] == "" || body["correlation_id"] == nil {
		t.Errorf("expected a correlation_id, got %+v", body)
	}
}

type blockingSkill struct {
	id      string
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSkill) ID() string                   { return s.id }
func (s *blockingSkill) Name() string                 { return s.id }
func (s *blockingSkill) Description() string          { return "blocks until released" }
func (s *blockingSkill) Tags() []string               { return nil }
func (s *blockingSkill) RequiresAuthentication() bool { return false }
func (s *blockingSkill) Examples() []skill.Example    { return nil }
func (s *blockingSkill) InputSchema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *blockingSkill) Execute(_ context.Context, _ map[string]any, _ auth.Identity) map[string]any {
	close(s.entered)
	<-s.release
	return map[string]any{"success": true}
}

func TestExecuteBackpressureReturns503(t *testing.T) {
	blocker := &blockingSkill{id: "blocker", entered: make(chan struct{}), release: make(chan struct{})}
	srv := testServer(t, Options{MaxInFlight: 1}, blocker)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- postJSON(t, srv, "/a2a/execute", map[string]any{"skill_id": "blocker", "input": map[string]any{}}, nil)
	}()
	<-blocker.entered // the first request now holds the only in-flight slot

	rec := postJSON(t, srv, "/a2a/execute", map[string]any{"skill_id": "blocker", "input": map[string]any{}}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 once the single slot is saturated, got %d (body %s)", rec.Code, rec.Body.String())
	}

	close(blocker.release)
	first := <-done
	if first.Code != http.StatusOK {
		t.Errorf("expected the first request to eventually succeed, got %d", first.Code)
	}
}

func TestCancelStubAlwaysSucceeds(t *testing.T) {
	srv := testServer(t, Options{})
	rec := postJSON(t, srv, "/a2a/cancel", map[string]any{"task_id": "task-1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["success"] != true || body["task_id"] != "task-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv := testServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeadlineMiddlewareTimesOutSlowSkill(t *testing.T) {
	srv := testServer(t, Options{RequestDeadline: 10 * time.Millisecond})
	reg := srv.registry
	reg.Register(&slowSkill{id: "slow"})

	rec := postJSON(t, srv, "/a2a/execute", map[string]any{"skill_id": "slow", "input": map[string]any{}}, nil)
	if rec.Code != http.StatusGatewayTimeout && rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected a timeout-class status for a slow skill, got %d (body %s)", rec.Code, rec.Body.String())
	}
}

type slowSkill struct{ id string }

func (s *slowSkill) ID() string                   { return s.id }
func (s *slowSkill) Name() string                 { return s.id }
func (s *slowSkill) Description() string          { return "sleeps past the deadline" }
func (s *slowSkill) Tags() []string               { return nil }
func (s *slowSkill) RequiresAuthentication() bool { return false }
func (s *slowSkill) Examples() []skill.Example    { return nil }
func (s *slowSkill) InputSchema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *slowSkill) Execute(ctx context.Context, _ map[string]any, _ auth.Identity) map[string]any {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
	}
	return map[string]any{"success": true}
}
