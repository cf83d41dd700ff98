package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/igusev/launchq/internal/config"
	"github.com/igusev/launchq/internal/logger"
	"github.com/igusev/launchq/internal/query"
	"github.com/igusev/launchq/internal/tui"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"     // Version from git tag or "dev"
	commit    = "unknown" // Git commit hash (used in version output)
	buildTime = "unknown" // Build timestamp (used in version output)
)

// queryTimeout bounds a one-shot query
const queryTimeout = 10 * time.Second

// logFileName receives log output while the TUI owns the terminal
const logFileName = "launchq.log"

var (
	verbose    bool // Flag to enable verbose logging
	showScores bool // Flag to show extension and blended score per result
	activate   bool // Flag to run the default action of the first result
	jsonOutput bool // Flag to print results as JSON
	limit      int  // Maximum number of results printed by a one-shot query
)

var rootCmd = &cobra.Command{
	Use:   "launchq [flags] [query...]",
	Short: "launchq - keyboard launcher for apps, bookmarks, notes, hosts and files",
	Long: `launchq answers every keystroke by asking its extensions for matching items,
ranking them by match quality and by how often and how recently you picked them.

Queries starting with a trigger go to one extension only:
  b <name>       bookmarks
  notes <text>   markdown notes
  ssh <host>     hosts from ~/.ssh/config
  f <path>       files below the configured roots
  ? <terms>      web search

Examples:
  launchq                  # Interactive launcher
  launchq fire             # Print results for "fire"
  launchq -a firefox       # Run the first result's default action
  launchq --json ssh db    # Results as JSON

Configuration:
  ~/.config/launchq/config.yaml, or LAUNCHQ_* environment variables.
  Run 'launchq config init' for an annotated example.`,
	RunE: runRoot,
	// Accept any number of arguments as query
	Args: cobra.ArbitraryArgs,
	// Don't suggest commands when args don't match subcommands
	SuggestionsMinimumDistance: 2,
}

// runRoot runs a one-shot query with arguments, the TUI without
func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	input := strings.Join(args, " ")
	if input == "" && !activate && !jsonOutput {
		return runInteractive(cmd.Context(), cfg)
	}
	if activate && strings.TrimSpace(input) == "" {
		return fmt.Errorf("-a/--activate requires a query")
	}
	return runOneShot(cmd.Context(), cfg, input, cmd.OutOrStdout(), appOptions{})
}

// runOneShot prints (or activates) the results of a single query
func runOneShot(ctx context.Context, cfg *config.Config, input string, out io.Writer, opts appOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	changed := make(chan struct{}, 1)
	opts.queryOptions = append(opts.queryOptions, query.WithObserver(func(query.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}))
	a, err := newApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.buildIndexes(ctx); err != nil {
		logger.Warn("Some indexes are incomplete: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	results, err := collect(ctx, a.engine.StartQuery(input), limit, changed)
	if err != nil {
		return err
	}

	if activate {
		if len(results) == 0 {
			return fmt.Errorf("no results for query: %s", input)
		}
		first := results[0]
		logger.Debug("Activating %s/%s", first.ExtensionID, first.Item.ID)
		if err := a.engine.Activate(ctx, first, ""); err != nil {
			return err
		}
		fmt.Fprintln(out, first.Item.DisplayString())
		return nil
	}

	if jsonOutput {
		return writeJSON(out, results)
	}
	writeResults(out, results, showScores)
	return nil
}

// collect waits for x to finish, pulling generator batches until maxResults arrived.
// changed must be signalled by the engine's observer.
func collect(ctx context.Context, x *query.Execution, maxResults int, changed <-chan struct{}) ([]query.Result, error) {
	defer x.Cancel()

	for !x.State().Terminal() {
		// Global results are only final once merged; generators stop early
		if x.CanFetchMore() && !x.IsActive() {
			if maxResults > 0 && x.Len() >= maxResults {
				break
			}
			x.FetchMore()
		}

		select {
		case <-x.Done():
		case <-changed:
		case <-ctx.Done():
			return nil, fmt.Errorf("query timed out: %w", ctx.Err())
		}
	}

	results := x.Results()
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// writeResults prints one result per line
func writeResults(w io.Writer, results []query.Result, scores bool) {
	for _, r := range results {
		line := r.Item.DisplayString()
		if scores {
			line = fmt.Sprintf("%s [%s %.3f]", line, r.ExtensionID, r.Score)
		}
		fmt.Fprintln(w, line)
	}
}

// jsonResult is the JSON shape of one result
type jsonResult struct {
	Extension  string   `json:"extension"`
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Subtext    string   `json:"subtext,omitempty"`
	Completion string   `json:"completion"`
	Score      float64  `json:"score"`
	Actions    []string `json:"actions"`
}

// writeJSON prints the results as an indented JSON array
func writeJSON(w io.Writer, results []query.Result) error {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		actions := make([]string, len(r.Item.Actions))
		for j, a := range r.Item.Actions {
			actions[j] = a.ID
		}
		out[i] = jsonResult{
			Extension:  r.ExtensionID,
			ID:         r.Item.ID,
			Text:       r.Item.Text,
			Subtext:    r.Item.Subtext,
			Completion: r.Item.CompletionString(),
			Score:      r.Score,
			Actions:    actions,
		}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// runInteractive launches the TUI
func runInteractive(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// The TUI owns the terminal; send logs to a file meanwhile
	logPath := filepath.Join(cfg.DataDir, logFileName)
	if err := os.MkdirAll(cfg.DataDir, 0750); err == nil {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			logger.SetOutput(f)
			defer func() {
				logger.SetOutput(os.Stderr)
				_ = f.Close()
			}()
		}
	}

	bridge := tui.NewBridge()
	a, err := newApp(ctx, cfg, appOptions{queryOptions: bridge.EngineOptions()})
	if err != nil {
		return err
	}
	defer a.close()
	defer bridge.Close() // Before the engine waits for its handlers

	// Indexes fill in the background; queries see them once swapped in
	for _, ix := range a.indexers {
		if e, ok := a.registry.Get(ix.ID()); ok && e.Enabled {
			ix.Rebuild()
		}
	}
	a.watchBookmarks()

	m := tui.New(a.engine, bridge, tui.Options{ShowScores: showScores, Version: version})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	if model, ok := finalModel.(tui.Model); ok {
		if r := model.Activated(); r != nil {
			fmt.Println(r.Item.DisplayString())
		}
	}
	return nil
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&showScores, "scores", false, "show extension and score per result")
	rootCmd.Flags().BoolVarP(&activate, "activate", "a", false, "run the default action of the first result")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results (0 for all)")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(verbose)
		logger.Debug("Verbose mode enabled")
	}
}

func main() {
	// Flags may appear anywhere in the command line
	rootCmd.Flags().SetInterspersed(true)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
