// Package files exposes sandboxed workspace file operations as capabilities.
// Every path is resolved inside the configured workspace directory; attempts
// to escape it fail before any filesystem access happens.
package files

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/aide/capability"
	"github.com/hupe1980/aide/logging"
)

const providerName = "files"

// Options configures the files provider.
type Options struct {
	// MaxReadBytes caps how much of a file the read capability returns.
	MaxReadBytes int64

	Logger logging.Logger
}

// Provider implements capability.Provider over a workspace directory.
type Provider struct {
	root   string
	opts   Options
	logger logging.Logger
}

// New creates a files provider rooted at workspaceDir, creating the directory
// if needed.
func New(workspaceDir string, optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{
		MaxReadBytes: 256 * 1024,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	return &Provider{root: abs, opts: opts, logger: opts.Logger}, nil
}

// Name implements capability.Provider.
func (p *Provider) Name() string { return providerName }

// Capabilities implements capability.Provider.
func (p *Provider) Capabilities() []capability.Capability {
	return []capability.Capability{
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "list"),
				Description: "List files and directories inside the workspace. Omit path for the workspace root.",
				Params: map[string]capability.Param{
					"path": {Type: capability.TypeString, Description: "Directory path relative to the workspace root"},
				},
			},
			Func: p.list,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "read"),
				Description: "Read a text file from the workspace.",
				Params: map[string]capability.Param{
					"path": {Type: capability.TypeString, Description: "File path relative to the workspace root", Required: true},
				},
			},
			Func: p.read,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "write"),
				Description: "Write content to a workspace file, replacing any existing content.",
				Params: map[string]capability.Param{
					"path":    {Type: capability.TypeString, Description: "File path relative to the workspace root", Required: true},
					"content": {Type: capability.TypeString, Description: "Content to write", Required: true},
				},
			},
			Func: p.write,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "append"),
				Description: "Append content to a workspace file, creating it if missing.",
				Params: map[string]capability.Param{
					"path":    {Type: capability.TypeString, Description: "File path relative to the workspace root", Required: true},
					"content": {Type: capability.TypeString, Description: "Content to append", Required: true},
				},
			},
			Func: p.append,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "delete"),
				Description: "Delete a file from the workspace. Irreversible.",
				Params: map[string]capability.Param{
					"path": {Type: capability.TypeString, Description: "File path relative to the workspace root", Required: true},
				},
				RequiresConfirmation: true,
			},
			Func: p.delete,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "search"),
				Description: "Find workspace files whose name, or optionally content, contains the given text.",
				Params: map[string]capability.Param{
					"query":          {Type: capability.TypeString, Description: "Case-insensitive text to look for", Required: true},
					"search_content": {Type: capability.TypeBoolean, Description: "Also search inside text file contents"},
				},
			},
			Func: p.search,
		},
	}
}

// resolve maps a user-supplied relative path onto the workspace, refusing
// anything that escapes the root.
func (p *Provider) resolve(rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	abs := filepath.Join(p.root, filepath.Clean(rel))
	check, err := filepath.Rel(p.root, abs)
	if err != nil || check == ".." || strings.HasPrefix(check, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", rel)
	}
	return abs, nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func (p *Provider) list(_ context.Context, args map[string]any) (string, error) {
	path, err := p.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("list directory: %w", err)
	}
	if len(entries) == 0 {
		return "Directory is empty.", nil
	}

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&b, "%s/\n", e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			fmt.Fprintf(&b, "%s\n", e.Name())
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes)\n", e.Name(), info.Size())
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (p *Provider) read(_ context.Context, args map[string]any) (string, error) {
	path, err := p.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%q is a directory", stringArg(args, "path"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > p.opts.MaxReadBytes {
		data = data[:p.opts.MaxReadBytes]
		return string(data) + "\n[truncated]", nil
	}
	return string(data), nil
}

func (p *Provider) write(_ context.Context, args map[string]any) (string, error) {
	path, err := p.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}

	content := stringArg(args, "content")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	p.logger.Debug("files.write", "path", stringArg(args, "path"), "bytes", len(content))
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), stringArg(args, "path")), nil
}

func (p *Provider) append(_ context.Context, args map[string]any) (string, error) {
	path, err := p.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	content := stringArg(args, "content")
	if _, err := f.WriteString(content); err != nil {
		return "", fmt.Errorf("append to file: %w", err)
	}
	return fmt.Sprintf("Appended %d bytes to %s", len(content), stringArg(args, "path")), nil
}

func (p *Provider) delete(_ context.Context, args map[string]any) (string, error) {
	path, err := p.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("delete file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%q is a directory, refusing to delete", stringArg(args, "path"))
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("delete file: %w", err)
	}

	p.logger.Info("files.delete", "path", stringArg(args, "path"))
	return fmt.Sprintf("Deleted %s", stringArg(args, "path")), nil
}

// textExtensions lists the file types content search is willing to scan.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".py": true, ".go": true,
	".json": true, ".csv": true, ".yaml": true, ".yml": true,
}

func (p *Provider) search(_ context.Context, args map[string]any) (string, error) {
	query := strings.ToLower(stringArg(args, "query"))
	if query == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	searchContent, _ := args["search_content"].(bool)

	var matches []string
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(p.root, path)
		if relErr != nil {
			return nil
		}
		if strings.Contains(strings.ToLower(d.Name()), query) {
			matches = append(matches, rel)
			return nil
		}
		if searchContent && textExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			if p.fileContains(path, query) {
				matches = append(matches, rel+" (content match)")
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search workspace: %w", err)
	}
	if len(matches) == 0 {
		return "No matching files found.", nil
	}

	sort.Strings(matches)
	return strings.Join(matches, "\n"), nil
}

// fileContains reports whether the file at path contains query, reading at
// most MaxReadBytes. Unreadable files are skipped.
func (p *Provider) fileContains(path string, query string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, p.opts.MaxReadBytes))
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), query)
}
