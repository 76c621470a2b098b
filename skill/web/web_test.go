package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aide/capability"
)

// Interface compliance
var _ capability.Provider = (*Provider)(nil)

func TestExtractText(t *testing.T) {
	page := `<html><head><title>T</title><style>body{}</style></head>
<body><h1>Heading</h1><script>var x = 1;</script><p>First paragraph.</p>
<noscript>enable js</noscript><p>Second paragraph.</p></body></html>`

	text, err := ExtractText(strings.NewReader(page))
	require.NoError(t, err)

	assert.Contains(t, text, "Heading")
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "body{}")
	assert.NotContains(t, text, "enable js")
}

func TestProvider_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>Served content.</p></body></html>"))
	}))
	defer srv.Close()

	p := New()
	fetch := fetchFunc(t, p)

	out, err := fetch(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "Served content.", out)
}

func TestProvider_FetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("just text"))
	}))
	defer srv.Close()

	p := New()
	out, err := fetchFunc(t, p)(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "just text", out)
}

func TestProvider_FetchRejectsBadURLs(t *testing.T) {
	p := New()
	fetch := fetchFunc(t, p)

	for _, raw := range []string{"", "not a url", "ftp://example.com/x", "/relative"} {
		_, err := fetch(context.Background(), map[string]any{"url": raw})
		assert.Error(t, err, "url %q should be rejected", raw)
	}
}

func TestProvider_FetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := New()
	_, err := fetchFunc(t, p)(context.Background(), map[string]any{"url": srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestProvider_FetchTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("z", 100)))
	}))
	defer srv.Close()

	p := New(func(o *Options) {
		o.MaxTextChars = 10
	})

	out, err := fetchFunc(t, p)(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("z", 10)+"\n[truncated]", out)
}

func TestProvider_Peek(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Example Page</title>
<meta name="description" content="A page about examples.">
<meta property="og:description" content="Social description."></head>
<body><p>Body text.</p></body></html>`))
	}))
	defer srv.Close()

	p := New()
	out, err := capFunc(t, p, "web__peek")(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "URL: "+srv.URL+"\nTitle: Example Page\nDescription: A page about examples.", out)
}

func TestProvider_PeekFallsBackToOGDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>OG Only</title>
<meta property="og:description" content="Only social."></head><body></body></html>`))
	}))
	defer srv.Close()

	p := New()
	out, err := capFunc(t, p, "web__peek")(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Contains(t, out, "Title: OG Only")
	assert.Contains(t, out, "Description: Only social.")
}

func TestProvider_PeekMissingMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Bare page.</p></body></html>`))
	}))
	defer srv.Close()

	p := New()
	out, err := capFunc(t, p, "web__peek")(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Contains(t, out, "Title: No title")
	assert.Contains(t, out, "Description: No description")
}

func TestProvider_PeekRejectsBadURL(t *testing.T) {
	p := New()
	_, err := capFunc(t, p, "web__peek")(context.Background(), map[string]any{"url": "ftp://example.com/x"})
	assert.Error(t, err)
}

func TestProvider_SearchRejectsEmptyQuery(t *testing.T) {
	p := New()
	for _, c := range p.Capabilities() {
		if c.Descriptor.Name == "web__search" {
			_, err := c.Func(context.Background(), map[string]any{"query": "  "})
			assert.Error(t, err)
			return
		}
	}
	t.Fatal("web__search not found")
}

func fetchFunc(t *testing.T, p *Provider) capability.Func {
	t.Helper()
	return capFunc(t, p, "web__fetch")
}

func capFunc(t *testing.T, p *Provider, name string) capability.Func {
	t.Helper()

	for _, c := range p.Capabilities() {
		if c.Descriptor.Name == name {
			return c.Func
		}
	}
	t.Fatalf("%s not found", name)
	return nil
}
