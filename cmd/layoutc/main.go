package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"layoutcore/internal/observ"
	"layoutcore/internal/version"
	"layoutcore/internal/vm"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "layoutc",
		Short:         "Type layout, dispatch table and calling convention inspector",
		Long:          `layoutc loads a TOML type catalog and reports layouts, ARM argument passing and dispatch tables`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version.Version

	root.AddCommand(newClassifyCmd())
	root.AddCommand(newVtableCmd())
	root.AddCommand(newLayoutCmd())
	root.AddCommand(newVersionCmd())

	flags := root.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("timings", false, "show timing information")
	flags.String("log-level", "off", "vm debug log level (off|debug|info|warn)")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|command|pass|item|debug)")
	flags.String("trace-mode", "stream", "trace storage mode (stream|ring|both)")
	flags.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	flags.Int("trace-ring-size", 4096, "ring buffer capacity for --trace-mode ring")
	flags.String("cpu-profile", "", "write a CPU profile to file")
	flags.String("mem-profile", "", "write a heap profile to file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to file")

	var cleanup func()
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := setupColor(cmd); err != nil {
			return err
		}
		if err := setupLogger(cmd); err != nil {
			return err
		}
		profiler, err := setupProfiling(cmd)
		if err != nil {
			return err
		}
		fn, err := setupTracing(cmd)
		if err != nil {
			_ = profiler.Stop()
			return err
		}
		cleanup = func() {
			fn()
			if err := profiler.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to stop profiling: %v\n", err)
			}
		}
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if cleanup != nil {
			cleanup()
		}
		_ = vm.Logger().Sync()
	}
	return root
}

// main registers the subcommands and persistent flags, then runs the root
// command. Any error exits with status 1.
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func setupColor(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch strings.ToLower(mode) {
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color %q (expected auto|on|off)", mode)
	}
	return nil
}

func setupLogger(cmd *cobra.Command) error {
	levelStr, err := cmd.Root().PersistentFlags().GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}
	if levelStr == "off" {
		vm.SetLogger(nil)
		return nil
	}
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	vm.SetLogger(logger)
	return nil
}

// setupProfiling starts the profilers named by the persistent flags. The
// returned profiler is nil when none are requested.
func setupProfiling(cmd *cobra.Command) (*observ.Profiler, error) {
	flags := cmd.Root().PersistentFlags()
	var cfg observ.ProfileConfig
	var err error
	if cfg.CPU, err = flags.GetString("cpu-profile"); err != nil {
		return nil, fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if cfg.Heap, err = flags.GetString("mem-profile"); err != nil {
		return nil, fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if cfg.Runtime, err = flags.GetString("runtime-trace"); err != nil {
		return nil, fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	if !cfg.Enabled() {
		return nil, nil
	}
	return observ.StartProfiler(cfg)
}

// timerFor returns a timer when --timings is set, nil otherwise.
func timerFor(cmd *cobra.Command) *observ.Timer {
	on, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil || !on {
		return nil
	}
	return observ.NewTimer()
}

func track(t *observ.Timer, name string) func(note string) {
	if t == nil {
		return func(string) {}
	}
	return t.Track(name)
}

func printTimings(cmd *cobra.Command, t *observ.Timer) {
	if t == nil {
		return
	}
	fmt.Fprint(cmd.ErrOrStderr(), t.Summary())
}

// isTerminal reports whether f is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
