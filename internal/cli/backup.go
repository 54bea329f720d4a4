package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// BackupResult reports a written backup.
type BackupResult struct {
	Path string `json:"path"`
}

func (r BackupResult) String() string {
	return fmt.Sprintf("✓ Backup written to %s", r.Path)
}

// ExportResult reports a compressed backup export. BackupBytes is the
// uncompressed size of the backup that was exported.
type ExportResult struct {
	Path        string `json:"path"`
	BackupBytes int64  `json:"backup_bytes"`
}

func (r ExportResult) String() string {
	return fmt.Sprintf("✓ Exported backup (%d bytes) to %s", r.BackupBytes, r.Path)
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a backup copy of the live store",
		Long: `Write a consistent copy of the live store next to it, replacing any
previous backup. The backup is a regular store file: restore it by
replacing the store file with it while the application is stopped.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(rootOpts, cmd)
		},
	}
}

func runBackup(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := commandContext(cmd)
	if _, err := s.openDurable(ctx); err != nil {
		return err
	}

	path, ok := s.manager.Backup(ctx)
	if !ok {
		return s.out.Fail(ExitFailure, ErrCodeBackupFailed, "backup failed", nil)
	}
	return s.out.Success(BackupResult{Path: path})
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Take a backup and write it zstd-compressed for support",
		Long: `Take a fresh backup and write it, zstd-compressed, to the given file.

Example:
  homestore export -o support/store.db.zst`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "destination file (required)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := commandContext(cmd)
	if _, err := s.openDurable(ctx); err != nil {
		return err
	}

	f, err := os.OpenFile(opts.Output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		code := ExitFailure
		if errors.Is(err, os.ErrExist) {
			code = ExitCommandError
		}
		return s.out.Fail(code, ErrCodeExportFailed, "cannot create export file", err)
	}

	n, err := s.manager.ExportBackup(ctx, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(opts.Output)
		return s.out.Fail(ExitFailure, ErrCodeExportFailed, "export failed", err)
	}
	return s.out.Success(ExportResult{Path: opts.Output, BackupBytes: n})
}
