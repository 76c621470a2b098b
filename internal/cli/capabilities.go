package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hupe1980/aide/capability"
	"github.com/hupe1980/aide/skill/email"
	"github.com/hupe1980/aide/skill/files"
	"github.com/hupe1980/aide/skill/memorynote"
	"github.com/hupe1980/aide/skill/web"
)

func init() {
	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List the capabilities the assistant can use",
		Run:   runCapabilities,
	}

	RootCmd.AddCommand(cmd)
}

// runCapabilities builds the registry the same way a chat session would,
// without touching a model backend.
func runCapabilities(_ *cobra.Command, _ []string) {
	cfg := loadConfig()
	registry := capability.NewRegistry()

	if cfg.ProviderEnabled("files") {
		if p, err := files.New(cfg.WorkspaceDir); err == nil {
			_ = registry.RegisterProvider(p)
		}
	}
	if cfg.ProviderEnabled("web") {
		_ = registry.RegisterProvider(web.New())
	}
	if cfg.ProviderEnabled("email") && cfg.EmailAddress != "" {
		if p, err := email.New(cfg); err == nil {
			_ = registry.RegisterProvider(p)
		}
	}
	if cfg.ProviderEnabled("memory") {
		s, err := openStore()
		if err == nil {
			defer s.Close()
			_ = registry.RegisterProvider(memorynote.New(s))
		}
	}

	printCapabilities(registry)
}

func printCapabilities(registry *capability.Registry) {
	grouped := registry.GroupedByProvider()
	if len(grouped) == 0 {
		fmt.Println("No capabilities registered.")
		return
	}

	providers := make([]string, 0, len(grouped))
	for name := range grouped {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	for _, provider := range providers {
		fmt.Printf("%s:\n", provider)
		for _, desc := range grouped[provider] {
			marker := ""
			if desc.RequiresConfirmation {
				marker = " (requires confirmation)"
			}
			fmt.Printf("  %-22s %s%s\n", desc.Name, desc.Description, marker)
		}
		fmt.Println()
	}
}
