package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// confirmFlag is required by commands that delete data.
const confirmFlag = "yes"

// ResetResult reports a reset or destroyed store.
type ResetResult struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version,omitempty"`
	Destroyed     bool   `json:"destroyed"`
}

func (r ResetResult) String() string {
	if r.Destroyed {
		return fmt.Sprintf("✓ Store directory %s deleted", r.Path)
	}
	return fmt.Sprintf("✓ All records deleted from %s (schema version %d kept)", r.Path, r.SchemaVersion)
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:           "reset",
		Short:         "Delete every record, keeping the store file and version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(rootOpts, cmd, yes)
		},
	}
	cmd.Flags().BoolVar(&yes, confirmFlag, false, "confirm deleting every record")

	return cmd
}

func runReset(opts *RootOptions, cmd *cobra.Command, yes bool) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if !yes {
		return s.out.Fail(ExitCommandError, ErrCodeUsage, "reset deletes every record; pass --yes to confirm", nil)
	}

	ctx := commandContext(cmd)
	h, err := s.openDurable(ctx)
	if err != nil {
		return err
	}
	if err := s.manager.Reset(ctx); err != nil {
		return s.out.Fail(ExitFailure, ErrCodeResetFailed, "reset failed", err)
	}
	v, err := h.SchemaVersion(ctx)
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeResetFailed, "reset failed", err)
	}
	return s.out.Success(ResetResult{Path: h.Path(), SchemaVersion: v})
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the store directory, backup included",
		Long: `Delete the store directory and everything in it. This is the recovery
path for a store that cannot be opened; the next open creates a new store.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDestroy(rootOpts, cmd, yes)
		},
	}
	cmd.Flags().BoolVar(&yes, confirmFlag, false, "confirm deleting the store directory")

	return cmd
}

func runDestroy(opts *RootOptions, cmd *cobra.Command, yes bool) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if !yes {
		return s.out.Fail(ExitCommandError, ErrCodeUsage, "destroy deletes the store and its backup; pass --yes to confirm", nil)
	}

	dir := s.manager.StoreDirectory()
	if err := s.manager.DestroyStore(); err != nil {
		return s.out.Fail(ExitFailure, ErrCodeDestroyFailed, "destroy failed", err)
	}
	return s.out.Success(ResetResult{Path: dir, Destroyed: true})
}
