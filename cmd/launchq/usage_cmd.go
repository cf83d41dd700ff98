package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/igusev/launchq/internal/config"
)

var assumeYes bool // Skip the confirmation prompt of usage clear

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect or reset the activation history used for ranking",
}

var usageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show activation history statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		return usageStats(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

var usageClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every recorded activation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		out := cmd.OutOrStdout()
		if !assumeYes && !confirm(cmd.InOrStdin(), out, "Clear the whole usage history?") {
			printMuted(out, "Aborted")
			return nil
		}
		return usageClear(cmd.Context(), cfg, out)
	},
}

func init() {
	usageClearCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
	usageCmd.AddCommand(usageStatsCmd, usageClearCmd)
	rootCmd.AddCommand(usageCmd)
}

// openUsageOnly loads the usage history without registering extensions
func openUsageOnly(ctx context.Context, cfg *config.Config) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a := &app{cfg: cfg}
	if _, err := a.openUsage(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func usageStats(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := openUsageOnly(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	total, unique := a.scoring.Stats()
	ucfg := a.scoring.Config()

	printTitle(out, "Usage history")
	fmt.Fprintf(out, "  Activations:  %d\n", total)
	fmt.Fprintf(out, "  Unique items: %d\n", unique)
	fmt.Fprintf(out, "  Decay:        %.2f\n", ucfg.Decay)
	if ucfg.MaxAge > 0 {
		fmt.Fprintf(out, "  Kept for:     %d days\n", int(ucfg.MaxAge.Hours()/24))
	}
	fmt.Fprintf(out, "  Store:        %s ", cfg.Usage.Store)
	printPath(out, cfg.DataDir)
	return nil
}

func usageClear(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := openUsageOnly(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close() // Flushes the gob log

	total, _ := a.scoring.Stats()
	if err := a.scoring.Clear(ctx); err != nil {
		return err
	}
	printSuccess(out, fmt.Sprintf("Cleared %d activations", total))
	return nil
}

// confirm asks a yes/no question; anything but y/yes declines
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
