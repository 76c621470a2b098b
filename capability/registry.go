package capability

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/aide/logging"
	"github.com/hupe1980/aide/model"
)

// Registry holds the catalog of available named capabilities. Descriptors are
// immutable after registration and qualified names are unique. Safe for
// concurrent use; writes happen at startup, reads on every turn.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Capability
	logger logging.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// NewRegistry constructs an empty capability registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		byName: make(map[string]Capability),
		logger: opts.Logger,
	}
}

// Register adds a capability to the catalog. Duplicate qualified names are
// rejected so a misconfigured provider cannot silently shadow another.
func (r *Registry) Register(desc Descriptor, fn Func) error {
	if desc.Name == "" {
		return fmt.Errorf("capability descriptor has empty name")
	}
	if fn == nil {
		return fmt.Errorf("capability %q has nil implementation", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, desc.Name)
	}
	r.byName[desc.Name] = Capability{Descriptor: desc, Func: fn}
	r.logger.Debug("capability.registered", "name", desc.Name, "confirm", desc.RequiresConfirmation)
	return nil
}

// RegisterProvider registers every capability a provider exposes.
func (r *Registry) RegisterProvider(p Provider) error {
	caps := p.Capabilities()
	for _, c := range caps {
		if err := r.Register(c.Descriptor, c.Func); err != nil {
			return fmt.Errorf("provider %s: %w", p.Name(), err)
		}
	}
	r.logger.Info("capability.provider.loaded", "provider", p.Name(), "actions", len(caps))
	return nil
}

// Resolve returns the implementation for a qualified name, or false when the
// name is unknown.
func (r *Registry) Resolve(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// RequiresConfirmation reports whether a capability must be confirmed before
// execution. Unknown names report false; the gateway rejects them earlier.
func (r *Registry) RequiresConfirmation(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name].Descriptor.RequiresConfirmation
}

// Descriptors returns all registered descriptors sorted by qualified name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted qualified names of every registered capability,
// used for prompt injection.
func (r *Registry) Names() []string {
	descs := r.Descriptors()
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}

// ToolDefinitions renders the catalog as neutral model tool definitions.
// Provider-specific dialect shaping (Anthropic input_schema vs OpenAI
// function parameters) happens inside each model adapter.
func (r *Registry) ToolDefinitions() []model.ToolDefinition {
	descs := r.Descriptors()
	defs := make([]model.ToolDefinition, len(descs))
	for i, d := range descs {
		defs[i] = model.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema(),
		}
	}
	return defs
}

// GroupedByProvider returns descriptors keyed by their provider prefix, for
// host surfaces that list available capabilities.
func (r *Registry) GroupedByProvider() map[string][]Descriptor {
	grouped := make(map[string][]Descriptor)
	for _, d := range r.Descriptors() {
		provider := d.Name
		if idx := strings.Index(d.Name, "__"); idx > 0 {
			provider = d.Name[:idx]
		}
		grouped[provider] = append(grouped[provider], d)
	}
	return grouped
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
