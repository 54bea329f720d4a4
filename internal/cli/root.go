package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/homestore/internal/config"
	"github.com/roach88/homestore/internal/lifecycle"
	"github.com/roach88/homestore/internal/metrics"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	EnvFile    string
	DataDir    string // overrides data_dir from the config

	// MetricsFile, when set, receives the command's metrics in the
	// Prometheus text format (for a node_exporter textfile collector).
	MetricsFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the homestore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "homestore",
		Short: "homestore - local store maintenance",
		Long: `Inspect and maintain the application's embedded local store.

Commands open the store the way the application does: the file is created
or migrated to the current schema version, and an unreadable store falls
back to memory. A fallback or a store written by a newer version exits 1.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading HOMESTORE_* variables")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "container directory (overrides the config)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write metrics to this file on exit")

	cmd.AddCommand(NewOpenCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewDestroyCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// session is what every command needs: the effective config, a logger,
// a formatter and a manager built from them.
type session struct {
	cfg         config.Config
	log         *slog.Logger
	out         *OutputFormatter
	manager     *lifecycle.Manager
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	metricsFile string
}

// loadConfig reads the dotenv file, then the config file and environment,
// then applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	if err := config.LoadEnvFile(o.EnvFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	return cfg, nil
}

// newLogger builds the slog handler for a command: JSON when either the
// output format or the config asks for it, Debug level with --verbose.
func (o *RootOptions) newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := cfg.LogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if o.Format == "json" || cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func newSession(o *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	// Logs go to stderr so they never corrupt JSON output.
	log := o.newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	mopts := lifecycle.OptionsFromConfig(cfg)
	mopts.Logger = log
	mopts.Metrics = met
	m, err := lifecycle.New(mopts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid store options", err)
	}

	return &session{
		cfg: cfg,
		log: log,
		out: &OutputFormatter{
			Format:    o.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   o.Verbose,
		},
		manager:     m,
		registry:    reg,
		metrics:     met,
		metricsFile: o.MetricsFile,
	}, nil
}

// close closes the store, then writes the metrics file. Pending
// background writes finish first, so their outcomes are counted.
func (s *session) close() {
	if err := s.manager.Close(); err != nil {
		s.log.Error("error closing store", "error", err)
	}
	if s.metricsFile != "" {
		if err := prometheus.WriteToTextfile(s.metricsFile, s.registry); err != nil {
			s.log.Error("unable to write metrics", "path", s.metricsFile, "error", err)
		}
	}
}
