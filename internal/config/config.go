// Package config assembles the process-wide, immutable configuration for
// Dev-Nexus. Precedence: environment variables > config file > defaults,
// mirroring the layering the pack's MCP-server ancestor uses for its own
// TOML + env configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds every setting read at startup. It is constructed once by
// Load and never mutated afterward; sub-components receive only the
// fields they need instead of the whole struct.
type Config struct {
	KnowledgeBase KnowledgeBaseConfig `toml:"knowledge_base"`
	Auth          AuthConfig          `toml:"auth"`
	Extractor     ExtractorConfig     `toml:"extractor"`
	Peers         PeersConfig         `toml:"peers"`
	Server        ServerConfig        `toml:"server"`
	Log           LogConfig           `toml:"log"`
}

// KnowledgeBaseConfig names the remote repository backing the KB document.
type KnowledgeBaseConfig struct {
	Repo  string `toml:"repo"`  // "owner/name"
	File  string `toml:"file"`  // path within Repo
	Token string `toml:"token"` // credential for the remote repository client
}

// AuthConfig selects and parametrizes the trust mode (spec.md §4.1).
type AuthConfig struct {
	Mode                   string   `toml:"mode"` // public | workload_identity | service_account
	AllowedServiceAccounts []string `toml:"allowed_service_accounts"`
}

// ExtractorConfig configures the opaque LLM pattern extractor.
type ExtractorConfig struct {
	APIKey  string `toml:"api_key"`
	URL     string `toml:"url"`
	Timeout int    `toml:"timeout_seconds"`
}

// PeersConfig holds per-peer outbound A2A settings.
type PeersConfig struct {
	OrchestratorURL string            `toml:"orchestrator_url"`
	MinerURL        string            `toml:"miner_url"`
	LogAttackerURL  string            `toml:"log_attacker_url"`
	Tokens          map[string]string `toml:"tokens"` // peer name -> bearer token
}

// ServerConfig holds HTTP listener and AgentCard settings.
type ServerConfig struct {
	Port         string `toml:"port"`
	HostOverride string `toml:"host_override"` // URL published in the AgentCard
	CORSOrigins  string `toml:"cors_origins"`
	Version      string `toml:"version"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// Load builds a Config from defaults, an optional TOML file, and
// environment variables (which always win).
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (when non-empty)
//  2. DEVNEXUS_CONFIG environment variable
//  3. ./dev-nexus.toml (current directory)
//  4. ~/.config/dev-nexus/dev-nexus.toml (XDG-style)
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		KnowledgeBase: KnowledgeBaseConfig{
			File: "knowledge_base.json",
		},
		Auth: AuthConfig{
			Mode: "public",
		},
		Extractor: ExtractorConfig{
			Timeout: 60,
		},
		Peers: PeersConfig{
			Tokens: map[string]string{},
		},
		Server: ServerConfig{
			Port:        "8080",
			CORSOrigins: "*",
			Version:     "0.1.0",
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil // no config file found; rely on defaults + env
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("DEVNEXUS_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("dev-nexus.toml"); err == nil {
		return "dev-nexus.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/dev-nexus/dev-nexus.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applyEnv overlays the environment variables named in spec.md §6 on top of
// existing config values. An env var only takes effect when non-empty.
func (c *Config) applyEnv() {
	envOverride("KNOWLEDGE_BASE_REPO", &c.KnowledgeBase.Repo)
	envOverride("KNOWLEDGE_BASE_FILE", &c.KnowledgeBase.File)
	envOverride("REMOTE_TOKEN", &c.KnowledgeBase.Token)

	envOverride("EXTRACTOR_API_KEY", &c.Extractor.APIKey)

	envOverride("AUTH_MODE", &c.Auth.Mode)
	if v := os.Getenv("ALLOWED_SERVICE_ACCOUNTS"); v != "" {
		c.Auth.AllowedServiceAccounts = splitCSV(v)
	}

	envOverride("ORCHESTRATOR_URL", &c.Peers.OrchestratorURL)
	envOverride("MINER_URL", &c.Peers.MinerURL)
	envOverride("LOG_ATTACKER_URL", &c.Peers.LogAttackerURL)
	if v := os.Getenv("PEER_TOKENS"); v != "" {
		c.Peers.Tokens = parsePeerTokens(v)
	}

	envOverride("HOST_OVERRIDE", &c.Server.HostOverride)
	envOverride("PORT", &c.Server.Port)
	envOverride("CORS_ORIGINS", &c.Server.CORSOrigins)

	envOverride("DEVNEXUS_LOG_LEVEL", &c.Log.Level)
}

// Validate checks required-field invariants. Missing peer URLs or an
// absent extractor key are not validation errors — those degrade
// gracefully per spec.md §4.4/§4.5 — but the auth mode must be
// well-formed and the KB repository must be identified.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case "public", "workload_identity", "service_account":
	default:
		return fmt.Errorf("invalid AUTH_MODE: %q (must be public, workload_identity, or service_account)", c.Auth.Mode)
	}
	if c.KnowledgeBase.Repo == "" {
		return fmt.Errorf("KNOWLEDGE_BASE_REPO is required")
	}
	return nil
}

func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePeerTokens parses "peer1=token1,peer2=token2" into a map.
func parsePeerTokens(v string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}

// BackpressureLimit returns the configured max in-flight request count
// (spec.md §5). It lives outside ServerConfig because it governs the host
// runtime's admission control, not anything serialized to TOML by a human.
func BackpressureLimit() int {
	if v := os.Getenv("MAX_CONCURRENT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 80
}
