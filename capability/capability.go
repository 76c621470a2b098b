package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Predefined errors for common failure scenarios.
var (
	// ErrDuplicateCapability indicates a qualified name was registered twice.
	ErrDuplicateCapability = errors.New("duplicate capability name")

	// ErrUnknownCapability indicates a lookup for an unregistered name.
	ErrUnknownCapability = errors.New("unknown capability")
)

// ParamType enumerates the declared parameter types a capability may accept.
type ParamType string

// Supported parameter types, mapped to JSON Schema vocabulary by Schema().
const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param describes one declared parameter of a capability.
type Param struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
}

// Descriptor is the immutable metadata record describing a capability.
// Registered once at startup; never mutated afterwards.
type Descriptor struct {
	// Name is the qualified capability name, "<provider>__<action>",
	// unique across the registry.
	Name string `json:"name"`

	// Description is shown to the model to guide capability selection.
	Description string `json:"description"`

	// Params maps parameter names to their declared type and requiredness.
	Params map[string]Param `json:"params,omitempty"`

	// RequiresConfirmation marks irreversible actions the gateway must gate
	// behind an explicit human decision.
	RequiresConfirmation bool `json:"requires_confirmation"`
}

// Schema renders the descriptor's parameters as a minimal JSON Schema object,
// the neutral shape consumed by the model adapters. Parameter names are
// emitted in sorted order for deterministic output.
func (d Descriptor) Schema() map[string]any {
	properties := make(map[string]any, len(d.Params))
	var required []string

	names := make([]string, 0, len(d.Params))
	for name := range d.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := d.Params[name]
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// QualifiedName builds the registry-unique name for a provider action.
func QualifiedName(provider, action string) string {
	return provider + "__" + action
}

// Func is a capability implementation: a blocking function taking named
// arguments matching the declared schema and returning text. It is invoked
// only through the Gateway.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Capability pairs a descriptor with its implementation.
type Capability struct {
	Descriptor Descriptor
	Func       Func
}

// Provider contributes one or more capabilities to the registry. Providers
// are pure factories: construction wires configuration, Capabilities returns
// the full list for explicit registration.
type Provider interface {
	// Name returns the provider prefix used in qualified capability names.
	Name() string

	// Capabilities returns the capabilities this provider exposes.
	Capabilities() []Capability
}

// Result is the structured, immutable outcome of one gateway invocation.
// The gateway never raises past its boundary; every failure mode is folded
// into a Result with Success=false.
type Result struct {
	Success    bool          `json:"success"`
	Result     string        `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	Capability string        `json:"capability_name"`
	Duration   time.Duration `json:"duration"`
	Cancelled  bool          `json:"cancelled,omitempty"`
}

// AuditEntry is an immutable log record of one capability invocation outcome.
type AuditEntry struct {
	Capability string         `json:"capability_name"`
	Arguments  map[string]any `json:"arguments"`
	UserID     string         `json:"user_id"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ConfirmFunc obtains a yes/no decision from a human before an irreversible
// action executes. It receives a human-readable rendering of the pending
// capability call and may block awaiting input; callers bound the wait via
// ctx. A false return or an error both resolve to "deny".
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// renderCallPrompt produces the human-readable confirmation text for a call.
func renderCallPrompt(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rendered := ""
	for i, k := range keys {
		if i > 0 {
			rendered += ", "
		}
		v := fmt.Sprintf("%v", args[k])
		if len(v) > 60 {
			v = v[:60] + "..."
		}
		rendered += fmt.Sprintf("%s=%s", k, v)
	}
	return fmt.Sprintf("The assistant wants to run: %s(%s)\nConfirm? (yes/no)", name, rendered)
}
