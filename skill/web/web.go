// Package web exposes web search and page fetching as capabilities. Search
// uses the DuckDuckGo instant answer API, which needs no API key; fetch pulls
// a page and reduces it to readable text.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hupe1980/aide/capability"
	"github.com/hupe1980/aide/logging"
)

const (
	providerName = "web"

	searchEndpoint = "https://api.duckduckgo.com/"
	userAgent      = "aide/1.0"
)

// Options configures the web provider.
type Options struct {
	// HTTPClient is used for all outbound requests.
	HTTPClient *http.Client

	// MaxFetchBytes caps how much of a fetched page body is read.
	MaxFetchBytes int64

	// MaxTextChars caps the extracted text returned to the model.
	MaxTextChars int

	Logger logging.Logger
}

// Provider implements capability.Provider for web access.
type Provider struct {
	client *http.Client
	opts   Options
	logger logging.Logger
}

// New creates a web provider.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		MaxFetchBytes: 2 * 1024 * 1024,
		MaxTextChars:  8000,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Provider{client: opts.HTTPClient, opts: opts, logger: opts.Logger}
}

// Name implements capability.Provider.
func (p *Provider) Name() string { return providerName }

// Capabilities implements capability.Provider.
func (p *Provider) Capabilities() []capability.Capability {
	return []capability.Capability{
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "search"),
				Description: "Search the web and return a short answer with related topics.",
				Params: map[string]capability.Param{
					"query": {Type: capability.TypeString, Description: "Search query", Required: true},
				},
			},
			Func: p.search,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "fetch"),
				Description: "Fetch a web page and return its readable text content.",
				Params: map[string]capability.Param{
					"url": {Type: capability.TypeString, Description: "Absolute http or https URL", Required: true},
				},
			},
			Func: p.fetch,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "peek"),
				Description: "Peek at a URL and return its title and description without fetching the full page.",
				Params: map[string]capability.Param{
					"url": {Type: capability.TypeString, Description: "Absolute http or https URL", Required: true},
				},
			},
			Func: p.peek,
		},
	}
}

// instantAnswer is the subset of the DuckDuckGo response we surface.
type instantAnswer struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	Definition    string `json:"Definition"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (p *Provider) search(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}

	endpoint := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1", searchEndpoint, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.opts.MaxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}

	var answer instantAnswer
	if err := json.Unmarshal(body, &answer); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	var b strings.Builder
	if answer.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n", answer.Answer)
	}
	if answer.AbstractText != "" {
		fmt.Fprintf(&b, "Summary: %s\n", answer.AbstractText)
		if answer.AbstractURL != "" {
			fmt.Fprintf(&b, "Source: %s\n", answer.AbstractURL)
		}
	}
	if answer.Definition != "" {
		fmt.Fprintf(&b, "Definition: %s\n", answer.Definition)
	}

	count := 0
	for _, t := range answer.RelatedTopics {
		if t.Text == "" || count >= 5 {
			continue
		}
		if count == 0 {
			b.WriteString("Related:\n")
		}
		fmt.Fprintf(&b, "- %s (%s)\n", t.Text, t.FirstURL)
		count++
	}

	if b.Len() == 0 {
		return "No instant answer found for this query.", nil
	}

	p.logger.Debug("web.search", "query", query)
	return strings.TrimRight(b.String(), "\n"), nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q, expected absolute http(s) URL", raw)
	}
	return u, nil
}

func (p *Provider) fetch(ctx context.Context, args map[string]any) (string, error) {
	raw, _ := args["url"].(string)

	u, err := parseHTTPURL(raw)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: unexpected status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, p.opts.MaxFetchBytes)

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "html") {
		text, err := ExtractText(body)
		if err != nil {
			return "", fmt.Errorf("extract page text: %w", err)
		}
		return truncate(text, p.opts.MaxTextChars), nil
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read page body: %w", err)
	}
	return truncate(string(data), p.opts.MaxTextChars), nil
}

// peekReadBytes bounds how much of a page is read when only the title and
// description are wanted, since both live near the top of the document.
const peekReadBytes = 64 * 1024

func (p *Provider) peek(ctx context.Context, args map[string]any) (string, error) {
	raw, _ := args["url"].(string)

	u, err := parseHTTPURL(raw)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build peek request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("peek at %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("peek at %s: unexpected status %d", u, resp.StatusCode)
	}

	title, desc, err := extractTitleAndDescription(io.LimitReader(resp.Body, peekReadBytes))
	if err != nil {
		return "", fmt.Errorf("peek at %s: %w", u, err)
	}
	if title == "" {
		title = "No title"
	}
	if desc == "" {
		desc = "No description"
	}

	p.logger.Debug("web.peek", "url", u.String())
	return fmt.Sprintf("URL: %s\nTitle: %s\nDescription: %s", u, title, desc), nil
}

// extractTitleAndDescription parses HTML and returns the document title and
// its description, preferring the standard meta description over og:description.
func extractTitleAndDescription(r io.Reader) (title, desc string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var ogDesc string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, property, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "name":
						name = a.Val
					case "property":
						property = a.Val
					case "content":
						content = a.Val
					}
				}
				if name == "description" && desc == "" {
					desc = strings.TrimSpace(content)
				}
				if property == "og:description" && ogDesc == "" {
					ogDesc = strings.TrimSpace(content)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if desc == "" {
		desc = ogDesc
	}
	return title, desc, nil
}

// ExtractText parses HTML and returns its visible text, skipping script,
// style and other non-content elements.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "iframe", "svg":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimRight(b.String(), "\n"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}
