package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/codalotl/skilleval/internal/config"
	"github.com/codalotl/skilleval/internal/output"
	"github.com/codalotl/skilleval/internal/score"
)

// These function variables allow tests to stub external dependencies.
var (
	newLogger  = buildLogger
	newPrinter = func(w io.Writer) *output.Printer { return output.NewPrinter(w) }
	loadConfig = loadProjectConfig
)

// app is the state shared by every command, filled in by the root's PersistentPreRunE.
type app struct {
	verbose    bool
	configPath string
	stdout     io.Writer

	logger  *zap.Logger
	cfg     config.Config
	printer *output.Printer
}

// Execute runs the CLI.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout)
	executed, err := root.ExecuteContextC(ctx)
	if err != nil {
		maybePrintUsage(executed, root, err)
	}
	return err
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	a := &app{stdout: stdout}
	root := silenceUsageAndErrors(&cobra.Command{
		Use:   "skilleval",
		Short: "Score LLM outputs produced with and without skill files, and compare conditions.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(a.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			a.printer = newPrinter(a.stdout)
			cfg, err := loadConfig(a.configPath, logger)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	})
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "project file or directory (default: the working directory)")

	root.AddCommand(newEvaluateCmd(a))
	root.AddCommand(newDomainsCmd(a))
	root.AddCommand(newStatsCmd(a))
	root.AddCommand(newCICmd(a))
	return root
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// loadProjectConfig reads the project file at path (a file or a directory searched for config.FileNames) and validates it
// against the registered domains.
func loadProjectConfig(path string, logger *zap.Logger) (config.Config, error) {
	if path == "" {
		path = "."
	}
	var cfg config.Config
	var used string
	var err error
	if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
		cfg, err = config.LoadFile(path)
		used = path
	} else {
		cfg, used, err = config.Load(path)
	}
	if err != nil {
		return cfg, err
	}
	if used != "" {
		logger.Debug("loaded config", zap.String("path", used))
	}
	if err := cfg.Validate(score.Names()); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func silenceUsageAndErrors(cmd *cobra.Command) *cobra.Command {
	silenceErrors(cmd)
	cmd.SilenceUsage = true
	return cmd
}

func silenceErrors(cmd *cobra.Command) *cobra.Command {
	cmd.SilenceErrors = true
	return cmd
}

func maybePrintUsage(cmd, root *cobra.Command, err error) {
	if err == nil {
		return
	}
	target := cmd
	if target == nil {
		target = root
	}
	if target == nil {
		return
	}
	if shouldShowUsage(err) {
		_ = target.Usage()
	}
}

func shouldShowUsage(err error) bool {
	msg := strings.ToLower(err.Error())
	if strings.HasPrefix(msg, "unknown command") {
		return true
	}
	if strings.HasPrefix(msg, "unknown flag") || strings.HasPrefix(msg, "unknown shorthand flag") {
		return true
	}
	if strings.Contains(msg, "accepts") && strings.Contains(msg, "arg") {
		return true
	}
	if strings.Contains(msg, "requires at least") && strings.Contains(msg, "arg") {
		return true
	}
	if strings.Contains(msg, "requires at most") && strings.Contains(msg, "arg") {
		return true
	}
	if strings.Contains(msg, "required flag") {
		return true
	}
	if strings.Contains(msg, "flag needs an argument") {
		return true
	}
	if strings.HasPrefix(msg, "invalid argument") {
		return true
	}
	return false
}

func splitCommaList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
