package capability

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/aide/logging"
)

// Gateway executes capabilities safely with optional user confirmation for
// destructive or irreversible actions. It maintains an append-only audit log
// of all executions.
//
// Invoke never returns an error: unknown names, validation failures, panics
// and implementation errors are all converted into a Result with
// Success=false so the reasoning loop can fold them back into the transcript
// as observations.
type Gateway struct {
	registry *Registry
	confirm  ConfirmFunc
	// requireConfirmation globally gates the confirmation policy; when false
	// even confirm-flagged capabilities execute directly.
	requireConfirmation bool
	logger              logging.Logger

	mu    sync.Mutex
	audit []AuditEntry
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// Confirm supplies the human yes/no decision for confirm-flagged
	// capabilities. Leaving it nil is fail-safe: such capabilities are
	// always denied.
	Confirm ConfirmFunc

	// RequireConfirmation toggles the confirmation policy. Default true.
	RequireConfirmation bool

	Logger logging.Logger
}

// NewGateway constructs a Gateway over a registry. The confirmation function
// is supplied at construction; there is no mutable post-construction hook.
func NewGateway(registry *Registry, optFns ...func(o *GatewayOptions)) *Gateway {
	opts := GatewayOptions{
		RequireConfirmation: true,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{
		registry:            registry,
		confirm:             opts.Confirm,
		requireConfirmation: opts.RequireConfirmation,
		logger:              opts.Logger,
	}
}

// Invoke executes a capability by qualified name with the given arguments.
// The user id is attached to the call context so user-scoped capabilities
// can partition their data.
func (g *Gateway) Invoke(ctx context.Context, name string, args map[string]any, userID string) Result {
	ctx = WithUserID(ctx, userID)

	c, ok := g.registry.Resolve(name)
	if !ok {
		g.logger.Warn("gateway.unknown_capability", "name", name, "user_id", userID)
		return Result{
			Success:    false,
			Error:      fmt.Sprintf("%v: '%s'", ErrUnknownCapability, name),
			Capability: name,
		}
	}

	if g.requireConfirmation && c.Descriptor.RequiresConfirmation {
		confirmed := g.requestConfirmation(ctx, name, args)
		if !confirmed {
			g.logger.Info("gateway.cancelled", "name", name, "user_id", userID)
			return Result{
				Success:    false,
				Error:      "Action cancelled by user",
				Capability: name,
				Cancelled:  true,
			}
		}
	}

	start := time.Now()

	if err := validateArgs(args, c.Descriptor); err != nil {
		dur := time.Since(start)
		g.appendAudit(AuditEntry{
			Capability: name,
			Arguments:  args,
			UserID:     userID,
			Success:    false,
			Error:      err.Error(),
			Duration:   dur,
			Timestamp:  start,
		})
		return Result{Success: false, Error: err.Error(), Capability: name, Duration: dur}
	}

	result, err := g.callSafely(ctx, c.Func, args)
	dur := time.Since(start)

	if err != nil {
		g.logger.Error("gateway.capability.failed", "name", name, "error", err.Error(), "duration_ms", dur.Milliseconds())
		g.appendAudit(AuditEntry{
			Capability: name,
			Arguments:  args,
			UserID:     userID,
			Success:    false,
			Error:      err.Error(),
			Duration:   dur,
			Timestamp:  start,
		})
		return Result{Success: false, Error: err.Error(), Capability: name, Duration: dur}
	}

	g.logger.Info("gateway.capability.executed", "name", name, "duration_ms", dur.Milliseconds())
	g.appendAudit(AuditEntry{
		Capability: name,
		Arguments:  args,
		UserID:     userID,
		Success:    true,
		Duration:   dur,
		Timestamp:  start,
	})
	return Result{Success: true, Result: result, Capability: name, Duration: dur}
}

// requestConfirmation obtains a human decision for a confirm-flagged call.
// With no confirmation function wired the gateway denies: executing an
// irreversible action unconfirmed is never acceptable.
func (g *Gateway) requestConfirmation(ctx context.Context, name string, args map[string]any) bool {
	if g.confirm == nil {
		g.logger.Warn("gateway.no_confirm_func", "name", name)
		return false
	}
	ok, err := g.confirm(ctx, renderCallPrompt(name, args))
	if err != nil {
		// Timeouts and transport failures resolve to deny.
		g.logger.Warn("gateway.confirm.error", "name", name, "error", err.Error())
		return false
	}
	return ok
}

// callSafely invokes the implementation, converting panics into errors.
func (g *Gateway) callSafely(ctx context.Context, fn Func, args map[string]any) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("gateway.capability.panic", "recover", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()
	return fn(ctx, args)
}

func (g *Gateway) appendAudit(entry AuditEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.audit = append(g.audit, entry)
}

// AuditLog returns the most recent limit entries, ordered oldest-to-newest
// within the returned window. limit <= 0 returns the full log.
func (g *Gateway) AuditLog(limit int) []AuditEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.audit)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AuditEntry, limit)
	copy(out, g.audit[n-limit:])
	return out
}
