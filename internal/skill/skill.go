// Package skill defines the plug-in contract every capability exposed
// through POST /a2a/execute implements, and the registry that holds
// them and produces the service's AgentCard (spec.md §4.6).
package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dev-nexus/devnexus/internal/auth"
)

// Example is one illustrative {input, description} pair shown in a
// skill's AgentCard entry.
type Example struct {
	Input       map[string]any `json:"input"`
	Description string         `json:"description"`
}

// Skill is the abstract capability contract (spec.md §4.6). Execute
// receives already schema-validated input and the caller's resolved
// identity, and returns a JSON-serializable output that always contains
// a "success" field.
type Skill interface {
	ID() string
	Name() string
	Description() string
	Tags() []string
	InputSchema() json.RawMessage
	RequiresAuthentication() bool
	Examples() []Example
	Execute(ctx context.Context, input map[string]any, identity auth.Identity) map[string]any
}

// Descriptor is the AgentCard's per-skill entry.
type Descriptor struct {
	ID                     string          `json:"id"`
	Name                   string          `json:"name"`
	Description            string          `json:"description"`
	Tags                   []string        `json:"tags"`
	RequiresAuthentication bool            `json:"requires_authentication"`
	InputSchema            json.RawMessage `json:"input_schema"`
	Examples               []Example       `json:"examples"`
}

// Capabilities is the fixed capability set this service advertises
// (spec.md §4.6): no streaming, no multi-modal input, and optional
// authentication since some skills are public and some are gated.
type Capabilities struct {
	Streaming     bool   `json:"streaming"`
	Multimodal    bool   `json:"multimodal"`
	Authentication string `json:"authentication"`
}

// AgentCard is the service-discovery document served at
// /.well-known/agent.json.
type AgentCard struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Version      string         `json:"version"`
	URL          string         `json:"url"`
	Capabilities Capabilities   `json:"capabilities"`
	Skills       []Descriptor   `json:"skills"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Registry holds every registered Skill, keyed by ID, and can render
// the AgentCard on demand.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Skill
	order []string

	name        string
	description string
	version     string
	url         string
	metadata    map[string]any
}

// NewRegistry builds an empty registry carrying the static AgentCard
// fields that don't depend on which skills are registered.
func NewRegistry(name, description, version, url string, metadata map[string]any) *Registry {
	return &Registry{
		byID:        make(map[string]Skill),
		name:        name,
		description: description,
		version:     version,
		url:         url,
		metadata:    metadata,
	}
}

// Register adds a skill. A duplicate ID is a startup-fatal configuration
// error (spec.md §4.6), returned rather than panicked so main can log it
// with context before exiting.
func (r *Registry) Register(s Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.ID()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("skill %q already registered", id)
	}
	r.byID[id] = s
	r.order = append(r.order, id)
	return nil
}

// Get returns a skill by ID, or nil if absent.
func (r *Registry) Get(id string) Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Describe renders the AgentCard. It is recomputed on every call rather
// than cached (spec.md §4.6), since the registry's skill set is fixed
// after startup and the work is cheap relative to a network round trip.
func (r *Registry) Describe() AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		s := r.byID[id]
		descriptors = append(descriptors, Descriptor{
			ID:                     s.ID(),
			Name:                   s.Name(),
			Description:            s.Description(),
			Tags:                   s.Tags(),
			RequiresAuthentication: s.RequiresAuthentication(),
			InputSchema:            s.InputSchema(),
			Examples:               s.Examples(),
		})
	}

	return AgentCard{
		Name:        r.name,
		Description: r.description,
		Version:     r.version,
		URL:         r.url,
		Capabilities: Capabilities{
			Streaming:      false,
			Multimodal:     false,
			Authentication: "optional",
		},
		Skills:   descriptors,
		Metadata: r.metadata,
	}
}
