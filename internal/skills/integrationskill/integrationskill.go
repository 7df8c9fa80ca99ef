// Package integrationskill implements the Integration skill family
// (spec.md §4.7 Family D): health_check_external.
package integrationskill

import (
	"context"
	"encoding/json"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/integration"
	"github.com/dev-nexus/devnexus/internal/skill"
)

var healthCheckSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"agent": {"type": "string"}
	}
}`)

// HealthCheckExternal is the health_check_external skill.
type HealthCheckExternal struct {
	peers *integration.Registry
}

// NewHealthCheckExternal builds the health_check_external skill over peers.
func NewHealthCheckExternal(peers *integration.Registry) *HealthCheckExternal {
	return &HealthCheckExternal{peers: peers}
}

func (s *HealthCheckExternal) ID() string                   { return "health_check_external" }
func (s *HealthCheckExternal) Name() string                 { return "Health Check External" }
func (s *HealthCheckExternal) Tags() []string               { return []string{"integration", "health"} }
func (s *HealthCheckExternal) RequiresAuthentication() bool { return false }
func (s *HealthCheckExternal) InputSchema() json.RawMessage { return healthCheckSchema }
func (s *HealthCheckExternal) Description() string {
	return "Reports health and latency for one or all configured peer agents."
}
func (s *HealthCheckExternal) Examples() []skill.Example {
	return []skill.Example{{
		Input:       map[string]any{},
		Description: "Check health of every configured peer.",
	}}
}

func (s *HealthCheckExternal) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	agent, _ := input["agent"].(string)

	if agent != "" {
		client := s.peers.Get(agent)
		if client == nil {
			return map[string]any{"success": false, "error": "unknown agent"}
		}
		res := client.Health(ctx)
		return map[string]any{
			"success": true,
			"agent":   agent,
			"status":  res.Status,
			"url":     res.URL,
			"response_time_ms": res.LatencyMs,
		}
	}

	all := s.peers.HealthAll(ctx)
	peers := make(map[string]any, len(all))
	for name, res := range all {
		peers[name] = map[string]any{
			"status":            res.Status,
			"url":               res.URL,
			"response_time_ms":  res.LatencyMs,
		}
	}
	return map[string]any{"success": true, "peers": peers}
}
