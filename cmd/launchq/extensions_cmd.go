package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/igusev/launchq/internal/config"
	"github.com/igusev/launchq/internal/registry"
)

var extensionsCmd = &cobra.Command{
	Use:     "extensions",
	Aliases: []string{"ext"},
	Short:   "List extensions, their triggers and roles",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		entries, err := listExtensions(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		printExtensions(cmd.OutOrStdout(), entries)
		return nil
	},
}

var extensionsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable an extension",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return switchExtension(cmd.Context(), cmd.OutOrStdout(), args[0], false)
	},
}

var extensionsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a disabled extension",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return switchExtension(cmd.Context(), cmd.OutOrStdout(), args[0], true)
	},
}

func init() {
	extensionsCmd.AddCommand(extensionsDisableCmd, extensionsEnableCmd)
	rootCmd.AddCommand(extensionsCmd)
}

// listExtensions registers every extension the configuration describes
// without building indexes
func listExtensions(ctx context.Context, cfg *config.Config) ([]registry.Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return nil, err
	}
	defer a.close()
	return a.registry.Entries(), nil
}

func switchExtension(ctx context.Context, out io.Writer, id string, enabled bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	entries, err := listExtensions(ctx, cfg)
	if err != nil {
		return err
	}

	known := false
	for _, e := range entries {
		if e.Extension.ID() == id {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown extension: %s", id)
	}

	if enabled {
		if err := cfg.Enable(id); err != nil {
			return err
		}
		if cfg.IsDisabled(id) {
			// A wildcard still matches; only exact ids are removed
			printWarning(out, fmt.Sprintf("%s is still disabled by a pattern in extensions.disabled", id))
			return nil
		}
		printSuccess(out, "Enabled "+id)
		return nil
	}

	if err := cfg.Disable(id); err != nil {
		return err
	}
	printSuccess(out, "Disabled "+id)
	return nil
}

// printExtensions renders one row per extension
func printExtensions(w io.Writer, entries []registry.Entry) {
	idWidth, triggerWidth := len("ID"), len("TRIGGER")
	for _, e := range entries {
		idWidth = max(idWidth, lipgloss.Width(e.Extension.ID()))
		triggerWidth = max(triggerWidth, lipgloss.Width(quoteTrigger(e.Trigger)))
	}

	idCol := lipgloss.NewStyle().Width(idWidth + 2)
	triggerCol := triggerStyle.Width(triggerWidth + 2)
	header := mutedStyle.Bold(true)

	fmt.Fprintln(w, "  "+idCol.Inherit(header).Render("ID")+
		triggerCol.Inherit(header).Render("TRIGGER")+header.Render("ROLES"))
	for _, e := range entries {
		mark := successStyle.Render("●")
		if !e.Enabled {
			mark = mutedStyle.Render("○")
		}
		fmt.Fprintf(w, "%s %s%s%s\n", mark,
			idCol.Render(e.Extension.ID()),
			triggerCol.Render(quoteTrigger(e.Trigger)),
			e.Roles)
		if desc := e.Extension.Description(); desc != "" {
			fmt.Fprintln(w, "  "+mutedStyle.Render(desc))
		}
	}
}

// quoteTrigger makes trailing spaces visible
func quoteTrigger(trigger string) string {
	if trigger == "" {
		return "-"
	}
	return fmt.Sprintf("%q", trigger)
}
