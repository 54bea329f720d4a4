package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/homestore/internal/lifecycle"
	"github.com/roach88/homestore/internal/schema"
	"github.com/roach88/homestore/internal/store"
)

// StatusResult describes the live store after opening it.
type StatusResult struct {
	State             string         `json:"state"`
	StorePath         string         `json:"store_path"`
	BackupPath        string         `json:"backup_path"`
	InMemory          bool           `json:"in_memory"`
	Degraded          bool           `json:"degraded"`
	Cause             string         `json:"cause,omitempty"`
	SchemaVersion     int            `json:"schema_version"`
	TargetVersion     int            `json:"target_version"`
	FileBytes         int64          `json:"file_bytes,omitempty"`
	UsedBytes         int64          `json:"used_bytes,omitempty"`
	CompactionPending bool           `json:"compaction_pending"`
	Records           map[string]int `json:"records,omitempty"`
}

// String renders the status for text output.
func (r StatusResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "state:          %s\n", r.State)
	if r.InMemory {
		b.WriteString("store:          (in memory)\n")
	} else {
		fmt.Fprintf(&b, "store:          %s\n", r.StorePath)
	}
	fmt.Fprintf(&b, "backup:         %s\n", r.BackupPath)
	fmt.Fprintf(&b, "schema version: %d (current %d)\n", r.SchemaVersion, r.TargetVersion)
	if r.Cause != "" {
		fmt.Fprintf(&b, "cause:          %s\n", r.Cause)
	}
	if r.FileBytes > 0 {
		fmt.Fprintf(&b, "size:           %d bytes (%d used)\n", r.FileBytes, r.UsedBytes)
	}
	if r.CompactionPending {
		b.WriteString("compaction:     pending\n")
	}
	kinds := make([]string, 0, len(r.Records))
	for k := range r.Records {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, "  %-24s %d\n", k, r.Records[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open the live store, creating or migrating it",
		Long: `Open the live store exactly as the application does at startup.

A missing store is created at the current schema version. An older store is
migrated. If the store cannot be opened or migrated the command reports the
in-memory fallback and exits 1; the file on disk is left untouched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd, false)
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show store location, version, size and record counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd, true)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command, detailed bool) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := commandContext(cmd)
	h, err := s.open(ctx)
	if err != nil {
		return err
	}

	result, err := s.status(ctx, h, detailed)
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeInspectFailed, "failed to read store status", err)
	}
	if err := s.out.Success(result); err != nil {
		return err
	}

	// The status is printed either way; a fallback still fails the command.
	if h.Degraded() {
		return WrapExitError(ExitFailure, "store degraded to memory", h.Cause())
	}
	return nil
}

// open opens the live store. A fatal open is reported and returned as an
// ExitError; a fallback handle is returned with a nil error.
func (s *session) open(ctx context.Context) (*lifecycle.Handle, error) {
	h, err := s.manager.OpenLiveStore(ctx)
	if err != nil {
		var openErr *lifecycle.OpenError
		if errors.As(err, &openErr) {
			return nil, s.out.Fail(ExitFailure, openErrorCode(openErr), openErr.Message(), err)
		}
		return nil, s.out.Fail(ExitFailure, ErrCodeOpenFailed, "failed to open store", err)
	}
	return h, nil
}

// openDurable opens the live store and refuses the in-memory fallback.
func (s *session) openDurable(ctx context.Context) (*lifecycle.Handle, error) {
	h, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	if h.Degraded() {
		code := ErrCodeOpenFailed
		message := "store unavailable"
		var openErr *lifecycle.OpenError
		if errors.As(h.Cause(), &openErr) {
			code = openErrorCode(openErr)
			message = openErr.Message()
		}
		return nil, s.out.Fail(ExitFailure, code, message, h.Cause())
	}
	return h, nil
}

func openErrorCode(e *lifecycle.OpenError) string {
	switch e.Kind {
	case lifecycle.StepFailed:
		return ErrCodeStepFailed
	case lifecycle.VersionRegression:
		return ErrCodeVersionTooNew
	default:
		return ErrCodeOpenFailed
	}
}

func (s *session) status(ctx context.Context, h *lifecycle.Handle, detailed bool) (StatusResult, error) {
	result := StatusResult{
		State:         s.manager.State().String(),
		StorePath:     s.manager.StorePath(),
		BackupPath:    s.manager.BackupPath(),
		InMemory:      h.IsInMemory(),
		Degraded:      h.Degraded(),
		TargetVersion: schema.TargetVersion,
	}
	if h.Cause() != nil {
		result.Cause = h.Cause().Error()
	}

	v, err := h.SchemaVersion(ctx)
	if err != nil {
		return result, err
	}
	result.SchemaVersion = v

	if !detailed {
		return result, nil
	}

	if !h.IsInMemory() {
		usage, err := h.SpaceUsage(ctx)
		if err != nil {
			return result, err
		}
		result.FileBytes = usage.FileBytes
		result.UsedBytes = usage.UsedBytes

		pending, err := h.CompactionPending(ctx)
		if err != nil {
			return result, err
		}
		result.CompactionPending = pending
	}

	result.Records = make(map[string]int)
	err = h.View(ctx, func(tx *store.Tx) error {
		kinds, err := tx.Kinds()
		if err != nil {
			return err
		}
		for _, kind := range kinds {
			n, err := tx.Count(kind)
			if err != nil {
				return err
			}
			result.Records[kind] = n
		}
		return nil
	})
	return result, err
}

// commandContext returns the command's context, or Background when the
// command is executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
