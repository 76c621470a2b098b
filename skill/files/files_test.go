package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aide/capability"
)

// Interface compliance
var _ capability.Provider = (*Provider)(nil)

func newTestProvider(t *testing.T) (*Provider, string) {
	t.Helper()

	dir := t.TempDir()
	p, err := New(dir)
	require.NoError(t, err)
	return p, dir
}

func capabilityByName(t *testing.T, p *Provider, name string) capability.Func {
	t.Helper()

	for _, c := range p.Capabilities() {
		if c.Descriptor.Name == name {
			return c.Func
		}
	}
	t.Fatalf("capability %s not found", name)
	return nil
}

func TestProvider_Descriptors(t *testing.T) {
	p, _ := newTestProvider(t)

	caps := p.Capabilities()
	require.Len(t, caps, 6)

	for _, c := range caps {
		if c.Descriptor.Name == "files__delete" {
			assert.True(t, c.Descriptor.RequiresConfirmation)
		} else {
			assert.False(t, c.Descriptor.RequiresConfirmation)
		}
	}
}

func TestProvider_WriteReadAppend(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	write := capabilityByName(t, p, "files__write")
	out, err := write(ctx, map[string]any{"path": "notes/todo.txt", "content": "buy milk\n"})
	require.NoError(t, err)
	assert.Contains(t, out, "notes/todo.txt")

	appendFn := capabilityByName(t, p, "files__append")
	_, err = appendFn(ctx, map[string]any{"path": "notes/todo.txt", "content": "water plants\n"})
	require.NoError(t, err)

	read := capabilityByName(t, p, "files__read")
	content, err := read(ctx, map[string]any{"path": "notes/todo.txt"})
	require.NoError(t, err)
	assert.Equal(t, "buy milk\nwater plants\n", content)
}

func TestProvider_ReadMissingFile(t *testing.T) {
	p, _ := newTestProvider(t)

	read := capabilityByName(t, p, "files__read")
	_, err := read(context.Background(), map[string]any{"path": "nope.txt"})
	assert.Error(t, err)
}

func TestProvider_ListAndSearch(t *testing.T) {
	p, dir := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "report-final.md"), []byte("y"), 0o644))

	list := capabilityByName(t, p, "files__list")
	out, err := list(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "sub/")
	assert.Contains(t, out, "report.md")

	search := capabilityByName(t, p, "files__search")
	out, err = search(ctx, map[string]any{"query": "REPORT"})
	require.NoError(t, err)
	assert.Contains(t, out, "report.md")
	assert.Contains(t, out, filepath.Join("sub", "report-final.md"))
}

func TestProvider_SearchContent(t *testing.T) {
	p, dir := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("the quarterly budget review"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("nothing relevant"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("budget bytes"), 0o644))

	search := capabilityByName(t, p, "files__search")

	// Filename-only match without the flag.
	out, err := search(ctx, map[string]any{"query": "budget"})
	require.NoError(t, err)
	assert.Equal(t, "No matching files found.", out)

	out, err = search(ctx, map[string]any{"query": "BUDGET", "search_content": true})
	require.NoError(t, err)
	assert.Contains(t, out, "notes.md (content match)")
	assert.NotContains(t, out, "other.txt")
	assert.NotContains(t, out, "image.png")
}

func TestProvider_Delete(t *testing.T) {
	p, dir := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("x"), 0o644))

	del := capabilityByName(t, p, "files__delete")
	_, err := del(ctx, map[string]any{"path": "old.txt"})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "old.txt"))
	assert.True(t, os.IsNotExist(statErr))

	// Directories are refused.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keep"), 0o755))
	_, err = del(ctx, map[string]any{"path": "keep"})
	assert.Error(t, err)
}

func TestProvider_SandboxEscapeRejected(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	read := capabilityByName(t, p, "files__read")
	for _, path := range []string{"../outside.txt", "../../etc/passwd", "a/../../b"} {
		_, err := read(ctx, map[string]any{"path": path})
		require.Error(t, err, "path %s should be rejected", path)
		assert.Contains(t, err.Error(), "outside the workspace")
	}

	// Absolute paths resolve inside the sandbox rather than escaping.
	write := capabilityByName(t, p, "files__write")
	_, err := write(ctx, map[string]any{"path": "/abs.txt", "content": "ok"})
	require.NoError(t, err)
}

func TestProvider_ReadTruncatesLargeFiles(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir, func(o *Options) {
		o.MaxReadBytes = 10
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte("0123456789ABCDEF"), 0o644))

	read := capabilityByName(t, p, "files__read")
	out, err := read(context.Background(), map[string]any{"path": "big.txt"})
	require.NoError(t, err)
	assert.Equal(t, "0123456789\n[truncated]", out)
}
