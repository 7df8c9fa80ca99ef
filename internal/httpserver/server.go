// Package httpserver implements the HTTP Dispatcher (spec.md §4.8, C8):
// service discovery, skill execution, liveness, and the stubbed cancel
// endpoint, wired with the auth gate (C1) and schema validation (C6) in
// front of every skill invocation.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/errs"
	"github.com/dev-nexus/devnexus/internal/kb"
	"github.com/dev-nexus/devnexus/internal/metrics"
	"github.com/dev-nexus/devnexus/internal/skill"
)

// RequestDeadline is the default per-request deadline (spec.md §5).
const RequestDeadline = 300 * time.Second

// kbHealthTimeout bounds the /health endpoint's probe of the knowledge
// base so a slow remote never blocks liveness checks (spec.md §4.8).
const kbHealthTimeout = 5 * time.Second

// Options configures a new Server.
type Options struct {
	Name              string
	Version           string
	HostOverride      string // not read by Server; the AgentCard URL comes from the skill.Registry
	CORSOrigins       string // comma-separated list, or "*"
	MaxInFlight       int    // backpressure cap (spec.md §5)
	RequestDeadline   time.Duration
}

// Server is the HTTP Dispatcher. It holds no mutable state of its own —
// every route reads through to the Registry, AuthResolver, or Store it
// was built with.
type Server struct {
	Router *chi.Mux

	registry *skill.Registry
	resolver *auth.Resolver
	store    *kb.Store
	logger   *slog.Logger
	opts     Options
	startAt  time.Time

	validator *schemaValidator
}

// NewServer wires the full dispatcher: middleware stack, discovery/health
// routes, and the /a2a/execute and /a2a/cancel endpoints.
func NewServer(opts Options, registry *skill.Registry, resolver *auth.Resolver, store *kb.Store, logger *slog.Logger, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		registry:  registry,
		resolver:  resolver,
		store:     store,
		logger:    logger,
		opts:      opts,
		startAt:   time.Now(),
		validator: newSchemaValidator(),
	}

	s.Router.Use(requestID)
	s.Router.Use(requestLogger(logger))
	s.Router.Use(recordMetrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(inflightLimiter(opts.MaxInFlight))
	s.Router.Use(deadline(orDefault(opts.RequestDeadline, RequestDeadline)))
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(opts.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsReg != nil {
		s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	}

	s.Router.Get("/", s.handleIndex)
	s.Router.Get("/health", s.handleHealth)
	s.Router.Get("/.well-known/agent.json", s.handleAgentCard)
	s.Router.Post("/a2a/execute", s.handleExecute)
	s.Router.Post("/a2a/cancel", s.handleCancel)

	return s
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func corsOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// handleIndex serves the service summary spec.md §4.8 lists at GET /.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	card := s.registry.Describe()
	ids := make([]string, 0, len(card.Skills))
	for _, d := range card.Skills {
		ids = append(ids, d.ID)
	}

	respond(w, http.StatusOK, map[string]any{
		"service": s.opts.Name,
		"version": s.opts.Version,
		"endpoints": []string{
			"/",
			"/health",
			"/.well-known/agent.json",
			"/a2a/execute",
			"/a2a/cancel",
		},
		"skills_registered": len(ids),
		"skills":             ids,
	})
}

// handleHealth reports liveness plus a best-effort KB reachability probe,
// bounded by kbHealthTimeout so a slow remote never turns a healthy
// process unhealthy (spec.md §4.8: the response stays 200 even when the
// field is false).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), kbHealthTimeout)
	defer cancel()

	accessible := true
	if s.store != nil {
		if _, err := s.store.Load(ctx); err != nil {
			accessible = false
			s.logger.Warn("health check: knowledge base unreachable", "error", err)
		}
	}

	respond(w, http.StatusOK, map[string]any{
		"status":                     "healthy",
		"version":                    s.opts.Version,
		"skills_registered":          len(s.registry.Describe().Skills),
		"knowledge_base_accessible": accessible,
	})
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.registry.Describe())
}

// executeRequest is the POST /a2a/execute body.
type executeRequest struct {
	SkillID string         `json:"skill_id"`
	Input   map[string]any `json:"input"`
}

// handleExecute implements spec.md §4.8's five-step pipeline: lookup,
// auth, validate, execute, respond.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	sk := s.registry.Get(req.SkillID)
	if sk == nil {
		respondError(w, http.StatusNotFound, "unknown skill", map[string]any{"available_skills": s.skillIDs()})
		return
	}

	identity := s.resolver.Identify(r)
	decision := s.resolver.Authorize(identity, sk.RequiresAuthentication())
	if !decision.Allow {
		if decision.Forbidden {
			respondError(w, http.StatusForbidden, decision.Reason, map[string]any{"skill_id": sk.ID()})
		} else {
			respondError(w, http.StatusUnauthorized, decision.Reason, map[string]any{"skill_id": sk.ID()})
		}
		return
	}

	violations, err := s.validator.validate(sk.ID(), sk.InputSchema(), req.Input)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	if len(violations) > 0 {
		respondError(w, http.StatusBadRequest, "validation failed", map[string]any{"violations": violations})
		return
	}

	output, panicked := s.safeExecute(r.Context(), sk, req.Input, identity)

	success, _ := output["success"].(bool)
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	metrics.SkillExecutionsTotal.WithLabelValues(sk.ID(), outcome).Inc()

	status := http.StatusOK
	if panicked {
		status = http.StatusInternalServerError
	}
	respond(w, status, output)
}

// safeExecute recovers from a panicking skill and converts it to an
// Internal error response (HTTP 500 with a correlation id), so one
// misbehaving skill never takes down the dispatcher (spec.md §7: "skills
// never crash the process"). panicked reports whether that happened.
func (s *Server) safeExecute(ctx context.Context, sk skill.Skill, input map[string]any, identity auth.Identity) (out map[string]any, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.New().String()
			s.logger.Error("skill execution panicked", "skill_id", sk.ID(), "correlation_id", correlationID, "panic", r)
			out = map[string]any{"success": false, "error": "internal error", "correlation_id": correlationID}
			panicked = true
		}
	}()
	return sk.Execute(ctx, input, identity), false
}

func (s *Server) skillIDs() []string {
	card := s.registry.Describe()
	ids := make([]string, 0, len(card.Skills))
	for _, d := range card.Skills {
		ids = append(ids, d.ID)
	}
	return ids
}

// cancelRequest is the POST /a2a/cancel body.
type cancelRequest struct {
	TaskID string `json:"task_id"`
}

// handleCancel is a protocol-shape stub: the core has no long-running
// task lifecycle (spec.md §4.8, §9), so every well-formed cancel request
// succeeds trivially.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "cancelled",
		"task_id":  req.TaskID,
	})
}

func (s *Server) respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	correlationID := requestIDFromContext(r.Context())
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	s.logger.Error("internal error", "correlation_id", correlationID, "error", err)

	var kbErr *errs.Error
	if errs.As(err, &kbErr) {
		status := statusForKind(kbErr.Kind)
		respondError(w, status, kbErr.Error(), map[string]any{"retryable": kbErr.Retryable})
		return
	}
	respondError(w, http.StatusInternalServerError, "internal error", map[string]any{"correlation_id": correlationID})
}

func statusForKind(k errs.Kind) int {
	switch k {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.AuthRequired:
		return http.StatusUnauthorized
	case errs.AuthForbidden:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	case errs.RemoteUnavailable, errs.Conflict:
		return http.StatusOK // skills report these inline as {success:false,...}, not as transport errors
	default:
		return http.StatusInternalServerError
	}
}
