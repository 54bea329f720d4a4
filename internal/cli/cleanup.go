package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/homestore/internal/housekeeping"
)

// CleanupOptions holds flags for the cleanup command.
type CleanupOptions struct {
	*RootOptions
	MaxAge  time.Duration
	Servers []string
}

// CleanupResult reports deleted records per kind.
type CleanupResult struct {
	Deleted map[string]int `json:"deleted"`
	Total   int            `json:"total"`
}

func (r CleanupResult) String() string {
	if r.Total == 0 {
		return "✓ Nothing to clean up"
	}
	return fmt.Sprintf("✓ Deleted %d record(s): %s", r.Total, housekeeping.Report(r.Deleted))
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired history and records of removed servers",
		Long: `Delete location history, location errors and client events older than
--max-age, and actions, notification categories, zones and scenes that
belong to servers no longer in the store.

Example:
  homestore cleanup --max-age 72h
  homestore cleanup --server home --server office`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.MaxAge, "max-age", housekeeping.DefaultMaxAge, "age after which history records are deleted")
	cmd.Flags().StringSliceVar(&opts.Servers, "server", nil, "known server id (repeatable); defaults to the store's server records")

	return cmd
}

func runCleanup(opts *CleanupOptions, cmd *cobra.Command) error {
	if opts.MaxAge <= 0 {
		return NewExitError(ExitCommandError, "--max-age must be positive")
	}

	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := commandContext(cmd)
	h, err := s.openDurable(ctx)
	if err != nil {
		return err
	}

	defs := housekeeping.Defaults()
	for i := range defs {
		if defs[i].Rule == housekeeping.RuleAge {
			defs[i].MaxAge = opts.MaxAge
		}
	}

	copts := []housekeeping.Option{
		housekeeping.WithLogger(s.log),
		housekeeping.WithMetrics(s.metrics),
	}
	if cmd.Flags().Changed("server") {
		copts = append(copts, housekeeping.WithServers(opts.Servers...))
	}

	report, err := housekeeping.NewCleaner(h.Store, copts...).Run(ctx, defs...)
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeCleanupFailed, "cleanup failed", err)
	}
	return s.out.Success(CleanupResult{Deleted: report, Total: report.Total()})
}
