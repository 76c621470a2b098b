// Package memorynote exposes the persistent memory store as capabilities, so
// users can ask the assistant to remember, recall and forget things
// explicitly instead of relying on automatic capture.
package memorynote

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/aide/capability"
	"github.com/hupe1980/aide/logging"
	"github.com/hupe1980/aide/memory"
)

const (
	providerName = "memory"

	recallLimit = 10
)

// Options configures the memorynote provider.
type Options struct {
	Logger logging.Logger
}

// Provider implements capability.Provider over a memory.Store. Records are
// scoped to the user id carried on the call context.
type Provider struct {
	store  memory.Store
	logger logging.Logger
}

// New creates a memorynote provider backed by the given store.
func New(store memory.Store, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Provider{store: store, logger: opts.Logger}
}

// Name implements capability.Provider.
func (p *Provider) Name() string { return providerName }

// Capabilities implements capability.Provider.
func (p *Provider) Capabilities() []capability.Capability {
	return []capability.Capability{
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "remember"),
				Description: "Store a fact, preference or note in long-term memory.",
				Params: map[string]capability.Param{
					"content": {Type: capability.TypeString, Description: "The fact to remember", Required: true},
					"tags":    {Type: capability.TypeArray, Description: "Optional category tags"},
				},
			},
			Func: p.remember,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "recall"),
				Description: "Search long-term memory for stored facts matching a query.",
				Params: map[string]capability.Param{
					"query": {Type: capability.TypeString, Description: "What to look for", Required: true},
				},
			},
			Func: p.recall,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "forget"),
				Description: "Delete one stored memory by its id. Irreversible.",
				Params: map[string]capability.Param{
					"id": {Type: capability.TypeInteger, Description: "Memory id from memory__recall", Required: true},
				},
				RequiresConfirmation: true,
			},
			Func: p.forget,
		},
	}
}

func (p *Provider) remember(ctx context.Context, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("content must not be empty")
	}

	var tags []string
	if raw, ok := args["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
	}

	id, err := p.store.Store(ctx, content, capability.UserIDFromContext(ctx), tags)
	if err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}

	p.logger.Debug("memorynote.stored", "id", id)
	return fmt.Sprintf("Remembered (id %d): %s", id, content), nil
}

func (p *Provider) recall(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}

	records, err := p.store.Search(ctx, query, capability.UserIDFromContext(ctx), recallLimit, nil)
	if err != nil {
		return "", fmt.Errorf("search memory: %w", err)
	}
	if len(records) == 0 {
		return "No memories matched the query.", nil
	}

	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "[%d] %s", r.ID, r.Content)
		if len(r.Tags) > 0 {
			fmt.Fprintf(&b, " (tags: %s)", strings.Join(r.Tags, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (p *Provider) forget(ctx context.Context, args map[string]any) (string, error) {
	raw, ok := args["id"].(float64)
	if !ok || raw <= 0 {
		return "", fmt.Errorf("id must be a positive memory id")
	}
	id := int64(raw)

	if err := p.store.Delete(ctx, id); err != nil {
		return "", fmt.Errorf("delete memory %d: %w", id, err)
	}

	p.logger.Debug("memorynote.forgot", "id", id)
	return fmt.Sprintf("Forgot memory %d", id), nil
}
