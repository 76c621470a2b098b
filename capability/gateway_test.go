package capability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	require.NoError(t, r.Register(echoDescriptor("test__echo"), echoFunc))

	require.NoError(t, r.Register(Descriptor{
		Name:                 "test__destroy",
		Description:          "Irreversibly destroy something.",
		RequiresConfirmation: true,
	}, func(_ context.Context, _ map[string]any) (string, error) {
		return "destroyed", nil
	}))

	require.NoError(t, r.Register(Descriptor{
		Name:        "test__fail",
		Description: "Always fails.",
	}, func(_ context.Context, _ map[string]any) (string, error) {
		return "", errors.New("boom")
	}))

	require.NoError(t, r.Register(Descriptor{
		Name:        "test__panic",
		Description: "Always panics.",
	}, func(_ context.Context, _ map[string]any) (string, error) {
		panic("unreachable state")
	}))

	return r
}

func TestGateway_InvokeSuccess(t *testing.T) {
	g := NewGateway(newTestRegistry(t))

	res := g.Invoke(context.Background(), "test__echo", map[string]any{"text": "hi"}, "u1")
	assert.True(t, res.Success)
	assert.Equal(t, "hi", res.Result)
	assert.Empty(t, res.Error)
	assert.False(t, res.Cancelled)

	log := g.AuditLog(0)
	require.Len(t, log, 1)
	assert.True(t, log[0].Success)
	assert.Equal(t, "u1", log[0].UserID)
}

func TestGateway_UnknownCapability(t *testing.T) {
	g := NewGateway(newTestRegistry(t))

	res := g.Invoke(context.Background(), "test__nope", nil, "u1")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown capability: 'test__nope'")

	// Nothing executed, nothing audited.
	assert.Empty(t, g.AuditLog(0))
}

func TestGateway_ConfirmationDeniedWithoutConfirmFunc(t *testing.T) {
	g := NewGateway(newTestRegistry(t))

	res := g.Invoke(context.Background(), "test__destroy", nil, "u1")
	assert.False(t, res.Success)
	assert.True(t, res.Cancelled)
	assert.Equal(t, "Action cancelled by user", res.Error)
	assert.Empty(t, g.AuditLog(0))
}

func TestGateway_ConfirmationDenied(t *testing.T) {
	g := NewGateway(newTestRegistry(t), func(o *GatewayOptions) {
		o.Confirm = func(_ context.Context, _ string) (bool, error) { return false, nil }
	})

	res := g.Invoke(context.Background(), "test__destroy", nil, "u1")
	assert.False(t, res.Success)
	assert.True(t, res.Cancelled)
	assert.Empty(t, g.AuditLog(0))
}

func TestGateway_ConfirmationGranted(t *testing.T) {
	var prompt string
	g := NewGateway(newTestRegistry(t), func(o *GatewayOptions) {
		o.Confirm = func(_ context.Context, p string) (bool, error) {
			prompt = p
			return true, nil
		}
	})

	res := g.Invoke(context.Background(), "test__destroy", nil, "u1")
	assert.True(t, res.Success)
	assert.Equal(t, "destroyed", res.Result)
	assert.Contains(t, prompt, "test__destroy")
	require.Len(t, g.AuditLog(0), 1)
}

func TestGateway_ConfirmationErrorDenies(t *testing.T) {
	g := NewGateway(newTestRegistry(t), func(o *GatewayOptions) {
		o.Confirm = func(_ context.Context, _ string) (bool, error) {
			return true, errors.New("terminal gone")
		}
	})

	res := g.Invoke(context.Background(), "test__destroy", nil, "u1")
	assert.False(t, res.Success)
	assert.True(t, res.Cancelled)
}

func TestGateway_ConfirmationDisabled(t *testing.T) {
	g := NewGateway(newTestRegistry(t), func(o *GatewayOptions) {
		o.RequireConfirmation = false
	})

	res := g.Invoke(context.Background(), "test__destroy", nil, "u1")
	assert.True(t, res.Success)
}

func TestGateway_ValidationFailureIsAudited(t *testing.T) {
	g := NewGateway(newTestRegistry(t))

	res := g.Invoke(context.Background(), "test__echo", map[string]any{}, "u1")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "text")

	log := g.AuditLog(0)
	require.Len(t, log, 1)
	assert.False(t, log[0].Success)
}

func TestGateway_ExecutionFailure(t *testing.T) {
	g := NewGateway(newTestRegistry(t))

	res := g.Invoke(context.Background(), "test__fail", nil, "u1")
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
	assert.False(t, res.Cancelled)

	log := g.AuditLog(0)
	require.Len(t, log, 1)
	assert.False(t, log[0].Success)
	assert.Equal(t, "boom", log[0].Error)
}

func TestGateway_PanicRecovered(t *testing.T) {
	g := NewGateway(newTestRegistry(t))

	res := g.Invoke(context.Background(), "test__panic", nil, "u1")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "capability panicked")

	// The gateway survives and keeps serving.
	res = g.Invoke(context.Background(), "test__echo", map[string]any{"text": "still alive"}, "u1")
	assert.True(t, res.Success)
}

func TestGateway_AuditLogWindow(t *testing.T) {
	g := NewGateway(newTestRegistry(t))

	for i := 0; i < 5; i++ {
		g.Invoke(context.Background(), "test__echo", map[string]any{"text": fmt.Sprintf("call-%d", i)}, "u1")
	}

	log := g.AuditLog(2)
	require.Len(t, log, 2)
	// Most recent entries, oldest first within the window.
	assert.Equal(t, "call-3", log[0].Arguments["text"])
	assert.Equal(t, "call-4", log[1].Arguments["text"])

	assert.Len(t, g.AuditLog(0), 5)
	assert.Len(t, g.AuditLog(100), 5)
}

func TestGateway_UserIDOnContext(t *testing.T) {
	r := NewRegistry()
	var seen string
	require.NoError(t, r.Register(Descriptor{Name: "test__whoami", Description: "Report the acting user."},
		func(ctx context.Context, _ map[string]any) (string, error) {
			seen = UserIDFromContext(ctx)
			return seen, nil
		}))

	g := NewGateway(r)
	res := g.Invoke(context.Background(), "test__whoami", nil, "alice")
	assert.True(t, res.Success)
	assert.Equal(t, "alice", seen)
}
