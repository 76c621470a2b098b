// Package aide provides a high-level façade over the reasoning agent and its
// services (capability registry, gateway, memory store & logging) enabling
// rapid construction of a personal assistant. Most applications interact with
// this package by:
//  1. Creating an Aide via New() from a config.Config
//  2. Calling ProcessTurn() for each user utterance
//  3. Closing the instance when done
//
// The façade delegates reasoning to agent.Agent while keeping setup and usage
// ergonomics concise. Defaults are safe for local use; alternative model
// backends, confirmation handlers and stores can be supplied via Options.
package aide

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/aide/agent"
	"github.com/hupe1980/aide/capability"
	"github.com/hupe1980/aide/config"
	"github.com/hupe1980/aide/logging"
	"github.com/hupe1980/aide/memory"
	"github.com/hupe1980/aide/model"
	"github.com/hupe1980/aide/model/anthropic"
	"github.com/hupe1980/aide/model/openai"
	"github.com/hupe1980/aide/skill/email"
	"github.com/hupe1980/aide/skill/files"
	"github.com/hupe1980/aide/skill/memorynote"
	"github.com/hupe1980/aide/skill/web"
)

// Options configures the Aide instance.
type Options struct {
	// Model overrides the completion backend constructed from the config.
	Model model.Model

	// MemoryStore overrides the default SQLite store.
	MemoryStore memory.Store

	// Confirm is invoked before any confirmation-gated capability runs.
	// Without it, gated capabilities are denied.
	Confirm capability.ConfirmFunc

	// ExtraProviders are registered in addition to the built-in skills.
	ExtraProviders []capability.Provider

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Aide is the high-level façade aggregating the agent and its services.
type Aide struct {
	cfg      config.Config
	agent    *agent.Agent
	registry *capability.Registry
	gateway  *capability.Gateway
	store    memory.Store
	ownStore bool
	logger   logging.Logger
}

// New creates an Aide instance from configuration with optional overrides.
func New(cfg config.Config, optFns ...func(o *Options)) (*Aide, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	llm := opts.Model
	if llm == nil {
		var err error
		llm, err = newModel(cfg)
		if err != nil {
			return nil, err
		}
	}

	store := opts.MemoryStore
	ownStore := false
	if store == nil {
		var err error
		store, err = memory.NewSQLiteStore(cfg.MemoryDBPath, func(o *memory.SQLiteStoreOptions) {
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		ownStore = true
	}

	registry := capability.NewRegistry(func(o *capability.RegistryOptions) {
		o.Logger = opts.Logger
	})
	if err := registerProviders(registry, cfg, store, opts); err != nil {
		if ownStore {
			_ = store.Close()
		}
		return nil, err
	}

	gateway := capability.NewGateway(registry, func(o *capability.GatewayOptions) {
		o.Confirm = opts.Confirm
		o.RequireConfirmation = cfg.ConfirmBeforeAction
		o.Logger = opts.Logger
	})

	a := agent.New(cfg, llm, registry, gateway, store, func(o *agent.Options) {
		o.Logger = opts.Logger
	})

	return &Aide{
		cfg:      cfg,
		agent:    a,
		registry: registry,
		gateway:  gateway,
		store:    store,
		ownStore: ownStore,
		logger:   opts.Logger,
	}, nil
}

// ProcessTurn runs one full reasoning turn for a user utterance.
func (a *Aide) ProcessTurn(ctx context.Context, userInput, userID string) (*agent.Response, error) {
	return a.agent.ProcessTurn(ctx, userInput, userID)
}

// Registry exposes the capability registry, e.g. for listing skills.
func (a *Aide) Registry() *capability.Registry { return a.registry }

// Gateway exposes the capability gateway, e.g. for reading the audit log.
func (a *Aide) Gateway() *capability.Gateway { return a.gateway }

// Memory exposes the memory store.
func (a *Aide) Memory() memory.Store { return a.store }

// ClearTranscript resets a user's conversation transcript.
func (a *Aide) ClearTranscript(userID string) { a.agent.ClearTranscript(userID) }

// Transcript returns a copy of a user's conversation transcript.
func (a *Aide) Transcript(userID string) []agent.Entry { return a.agent.Transcript(userID) }

// Close releases resources owned by the instance. Externally supplied stores
// are left open.
func (a *Aide) Close() error {
	if a.ownStore {
		return a.store.Close()
	}
	return nil
}

// newModel constructs the completion backend selected by the config. The
// deepseek and ollama providers speak the OpenAI chat API, so they reuse that
// adapter with a custom base URL.
func newModel(cfg config.Config) (model.Model, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case "deepseek":
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.DeepSeekAPIKey
			o.BaseURL = "https://api.deepseek.com"
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case "ollama":
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = "ollama"
			o.BaseURL = cfg.OllamaBaseURL + "/v1"
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// registerProviders wires the enabled built-in skills plus any extras.
func registerProviders(registry *capability.Registry, cfg config.Config, store memory.Store, opts Options) error {
	if cfg.ProviderEnabled("files") {
		p, err := files.New(cfg.WorkspaceDir, func(o *files.Options) {
			o.Logger = opts.Logger
		})
		if err != nil {
			return fmt.Errorf("files provider: %w", err)
		}
		if err := registry.RegisterProvider(p); err != nil {
			return err
		}
	}

	if cfg.ProviderEnabled("web") {
		p := web.New(func(o *web.Options) {
			o.Logger = opts.Logger
		})
		if err := registry.RegisterProvider(p); err != nil {
			return err
		}
	}

	if cfg.ProviderEnabled("email") && cfg.EmailAddress != "" {
		p, err := email.New(cfg, func(o *email.Options) {
			o.Logger = opts.Logger
		})
		if err != nil {
			return fmt.Errorf("email provider: %w", err)
		}
		if err := registry.RegisterProvider(p); err != nil {
			return err
		}
	}

	if cfg.ProviderEnabled("memory") {
		p := memorynote.New(store, func(o *memorynote.Options) {
			o.Logger = opts.Logger
		})
		if err := registry.RegisterProvider(p); err != nil {
			return err
		}
	}

	for _, p := range opts.ExtraProviders {
		if err := registry.RegisterProvider(p); err != nil {
			return err
		}
	}

	return nil
}
