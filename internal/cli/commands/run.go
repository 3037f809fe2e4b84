package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Yile-Xu/penn-world-tables/internal/pipeline"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Select     string
	Downstream bool
	Watch      bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the panel from sources and rules",
		Long: `Execute the full dataset-construction pipeline: load raw observations,
normalize units and currency, derive variables in dependency order, and
write the assembled panel with its diagnostics file.

By default, all derivation rules run. Use --select to run specific rule
outputs, and --downstream to also run rules that depend on them.`,
		Example: `  # Build the full panel
  pwtgen run

  # Derive only specific variables
  pwtgen run --select gdp_real_usd,gdp_pc

  # Derive a variable and everything computed from it
  pwtgen run --select gdp_real_usd --downstream

  # Rebuild whenever sources or rules change
  pwtgen run --watch`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Select, "select", "s", "", "Comma-separated list of rule outputs to run")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "Include downstream dependents when using --select")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Watch sources and rules, rebuilding on change")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.Watch {
		return watchAndRun(cmd, cmdCtx, opts)
	}
	return runOnce(cmd, cmdCtx, opts)
}

func runOnce(cmd *cobra.Command, cmdCtx *CommandContext, opts *RunOptions) error {
	out := cmd.OutOrStdout()
	startTime := time.Now()

	var result *pipeline.Result
	var err error
	if opts.Select != "" {
		selected := splitSelect(opts.Select)
		downstreamStr := ""
		if opts.Downstream {
			downstreamStr = " (+ downstream)"
		}
		fmt.Fprintf(out, "Running %d selected rules%s...\n", len(selected), downstreamStr)
		result, err = cmdCtx.Engine.RunSelected(cmd.Context(), selected, opts.Downstream)
	} else {
		fmt.Fprintln(out, "Building panel...")
		result, err = cmdCtx.Engine.Run(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	run := result.Run
	fmt.Fprintf(out, "Run %s: %s\n", run.ID, run.Status)
	fmt.Fprintf(out, "  %d raw observations, %d derived cells, %d panel cells\n",
		run.Stats.RawObservations, run.Stats.DerivedCells, run.Stats.PanelCells)

	if warnings := result.Diagnostics.Warnings(); len(warnings) > 0 {
		fmt.Fprintf(out, "  %d warnings, %d cell errors (see %s)\n",
			len(warnings), len(result.Diagnostics.Errors()),
			pipeline.DiagnosticsPath(cmdCtx.Cfg.OutputFile))
	} else if errs := result.Diagnostics.Errors(); len(errs) > 0 {
		fmt.Fprintf(out, "  %d cell errors (see %s)\n",
			len(errs), pipeline.DiagnosticsPath(cmdCtx.Cfg.OutputFile))
	}

	fmt.Fprintf(out, "Panel written to %s\n", cmdCtx.Cfg.OutputFile)
	fmt.Fprintf(out, "Completed in %s\n", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// watchDebounce batches rapid-fire filesystem events (editors often write
// several) into one rebuild.
const watchDebounce = 250 * time.Millisecond

func watchAndRun(cmd *cobra.Command, cmdCtx *CommandContext, opts *RunOptions) error {
	out := cmd.OutOrStdout()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(cmdCtx.Cfg.SourcesDir); err != nil {
		return fmt.Errorf("failed to watch sources dir: %w", err)
	}
	if err := watcher.Add(filepath.Dir(cmdCtx.Cfg.RulesFile)); err != nil {
		return fmt.Errorf("failed to watch rules file: %w", err)
	}

	rebuild := func() {
		if err := runOnce(cmd, cmdCtx, opts); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}

	rebuild()
	fmt.Fprintln(out, "Watching for changes (Ctrl+C to stop)...")

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event, cmdCtx.Cfg.RulesFile) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			fmt.Fprintln(out, "Change detected, rebuilding...")
			rebuild()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watch error: %v\n", err)
		}
	}
}

// relevantEvent reports whether a filesystem event should trigger a rebuild:
// writes to source files or the rules file, ignoring chmod noise.
func relevantEvent(event fsnotify.Event, rulesFile string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext == ".csv" || ext == ".tsv" || ext == ".xlsx" {
		return true
	}
	return filepath.Clean(event.Name) == filepath.Clean(rulesFile)
}

func splitSelect(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
