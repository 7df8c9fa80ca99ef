// Command devnexus runs the Dev-Nexus A2A knowledge-base service.
//
// It serves the protocol described in spec.md over HTTP: service
// discovery at /.well-known/agent.json, skill execution at
// /a2a/execute, and liveness at /health. Configuration is read from
// environment variables (see internal/config), optionally layered over
// a dev-nexus.toml file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/config"
	"github.com/dev-nexus/devnexus/internal/docsource"
	"github.com/dev-nexus/devnexus/internal/extractor"
	"github.com/dev-nexus/devnexus/internal/httpserver"
	"github.com/dev-nexus/devnexus/internal/integration"
	"github.com/dev-nexus/devnexus/internal/kb"
	"github.com/dev-nexus/devnexus/internal/kb/githubstore"
	"github.com/dev-nexus/devnexus/internal/metrics"
	"github.com/dev-nexus/devnexus/internal/skill"
	"github.com/dev-nexus/devnexus/internal/skills/docstandards"
	"github.com/dev-nexus/devnexus/internal/skills/integrationskill"
	"github.com/dev-nexus/devnexus/internal/skills/knowledgemgmt"
	"github.com/dev-nexus/devnexus/internal/skills/patternquery"
	"github.com/dev-nexus/devnexus/internal/skills/repoinfo"
	"github.com/dev-nexus/devnexus/internal/skills/runtimemonitoring"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "devnexus: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))

	version := cfg.Server.Version
	if Version != "dev" {
		version = Version
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting devnexus", "version", version, "knowledge_base_repo", cfg.KnowledgeBase.Repo, "auth_mode", cfg.Auth.Mode)

	backing, err := githubstore.New(githubstore.Config{
		Repo:  cfg.KnowledgeBase.Repo,
		Path:  cfg.KnowledgeBase.File,
		Token: cfg.KnowledgeBase.Token,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating knowledge base store: %w", err)
	}
	store := kb.New(backing, logger)

	resolver := auth.New(auth.Mode(cfg.Auth.Mode), cfg.Auth.AllowedServiceAccounts)

	peers := integration.NewRegistry(peerConfigs(cfg), integration.DefaultTimeout)

	extractorClient := buildExtractor(cfg)
	docSource := docsource.NewGitHubSource(cfg.KnowledgeBase.Token)

	registry := skill.NewRegistry(
		"dev-nexus",
		"Multi-tenant knowledge base of software-engineering patterns, exposed over A2A.",
		version,
		agentCardURL(cfg),
		map[string]any{"peers": peers.Names()},
	)

	if err := registerSkills(registry, store, peers, extractorClient, docSource); err != nil {
		return fmt.Errorf("registering skills: %w", err)
	}

	metricsReg := metrics.NewRegistry()

	server := httpserver.NewServer(httpserver.Options{
		Name:            "dev-nexus",
		Version:         version,
		HostOverride:    cfg.Server.HostOverride,
		CORSOrigins:     cfg.Server.CORSOrigins,
		MaxInFlight:     config.BackpressureLimit(),
		RequestDeadline: httpserver.RequestDeadline,
	}, registry, resolver, store, logger, metricsReg)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// registerSkills instantiates every skill listed in spec.md §4.7 and
// registers it; a duplicate id aborts startup before any traffic is
// accepted (spec.md §4.6, §7).
func registerSkills(registry *skill.Registry, store *kb.Store, peers *integration.Registry, ext extractor.Extractor, docSource docsource.Source) error {
	skills := []skill.Skill{
		patternquery.NewQueryPatterns(store),
		patternquery.NewCrossRepoPatterns(store),

		repoinfo.NewRepositoryList(store),
		repoinfo.NewDeploymentInfo(store),

		knowledgemgmt.NewAddLessonLearned(store),
		knowledgemgmt.NewUpdateDependencyInfo(store),
		knowledgemgmt.NewAnalyzeCommit(store, ext),

		integrationskill.NewHealthCheckExternal(peers),

		docstandards.NewCheckDocumentationStandards(docSource),
		docstandards.NewValidateDocumentationUpdate(docSource),

		runtimemonitoring.NewAddRuntimeIssue(store),
		runtimemonitoring.NewQueryKnownIssues(store),
		runtimemonitoring.NewGetPatternHealth(store),
	}

	for _, s := range skills {
		if err := registry.Register(s); err != nil {
			return err
		}
	}
	return nil
}

func peerConfigs(cfg *config.Config) []integration.PeerConfig {
	return []integration.PeerConfig{
		{Name: "orchestrator", URL: cfg.Peers.OrchestratorURL, Token: cfg.Peers.Tokens["orchestrator"]},
		{Name: "miner", URL: cfg.Peers.MinerURL, Token: cfg.Peers.Tokens["miner"]},
		{Name: "log_attacker", URL: cfg.Peers.LogAttackerURL, Token: cfg.Peers.Tokens["log_attacker"]},
	}
}

func buildExtractor(cfg *config.Config) extractor.Extractor {
	if cfg.Extractor.URL == "" {
		// No extractor endpoint configured: analyze_commit degrades to a
		// deterministic empty result rather than failing every call.
		return &extractor.FakeExtractor{}
	}
	return extractor.NewHTTPExtractor(cfg.Extractor.URL, cfg.Extractor.APIKey, time.Duration(cfg.Extractor.Timeout)*time.Second)
}

func agentCardURL(cfg *config.Config) string {
	if cfg.Server.HostOverride != "" {
		return cfg.Server.HostOverride
	}
	return "http://localhost:" + cfg.Server.Port
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
