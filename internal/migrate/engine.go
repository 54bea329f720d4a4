package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/homestore/internal/store"
)

// Tx is a write transaction as the engine needs it: a View plus the
// persisted schema version.
type Tx interface {
	View
	SchemaVersion() (int, error)
	SetSchemaVersion(version int) error
}

// Store runs fn in a single atomic write transaction.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// ForStore adapts a record store to the engine.
func ForStore(s *store.Store) Store {
	return storeAdapter{s: s}
}

type storeAdapter struct {
	s *store.Store
}

func (a storeAdapter) Update(ctx context.Context, fn func(tx Tx) error) error {
	return a.s.Update(ctx, func(tx *store.Tx) error { return fn(tx) })
}

// Result describes a completed migration.
type Result struct {
	// From is the version read from the store before migrating.
	From int

	// To is the version the store holds now.
	To int

	// Applied names the steps that ran, in order.
	Applied []string
}

// Migrated reports whether the stored version changed.
func (r Result) Migrated() bool {
	return r.From != r.To
}

// Engine applies a Registry to stores, bringing them to Target.
type Engine struct {
	steps  []Step
	target int
	log    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an engine for target. Every step gate must be at most target:
// a step gated above the target would run again on every open.
func New(reg *Registry, target int, opts ...Option) (*Engine, error) {
	if target < 0 {
		return nil, fmt.Errorf("migrate: negative target version %d", target)
	}
	if reg == nil {
		reg = &Registry{}
	}
	if g := reg.MaxGate(); g > target {
		return nil, fmt.Errorf("%w: gate %d above target version %d", ErrInvalidStep, g, target)
	}
	e := &Engine{
		steps:  reg.Steps(),
		target: target,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Target returns the schema version this engine migrates to.
func (e *Engine) Target() int {
	return e.target
}

// Migrate reads the stored version and runs every step gated above it, then
// records the target version, all in one transaction.
//
// A stored version above the target fails with *VersionRegressionError
// before any step runs. A failing step rolls back every change and the stored
// version, and is reported as *StepFailedError.
func (e *Engine) Migrate(ctx context.Context, st Store) (Result, error) {
	var res Result
	err := st.Update(ctx, func(tx Tx) error {
		res = Result{}
		from, err := tx.SchemaVersion()
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		res.From, res.To = from, from

		if from > e.target {
			return &VersionRegressionError{Stored: from, Target: e.target}
		}
		if from == e.target {
			return nil
		}

		e.log.Info("migrating store", "from", from, "to", e.target)
		for i, step := range e.steps {
			if from >= step.Gate {
				continue
			}
			e.log.Debug("applying migration step", "index", i, "name", step.Name, "gate", step.Gate)
			if err := step.Transform(tx, from); err != nil {
				return &StepFailedError{Index: i, Name: step.Name, Gate: step.Gate, Cause: err}
			}
			res.Applied = append(res.Applied, step.Name)
		}

		if err := tx.SetSchemaVersion(e.target); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
		res.To = e.target
		return nil
	})
	if err != nil {
		return Result{From: res.From, To: res.From}, err
	}
	return res, nil
}

// Initialize stamps a freshly created store with the target version.
// A new store holds no old-shaped data, so no step runs.
func (e *Engine) Initialize(ctx context.Context, st Store) error {
	return st.Update(ctx, func(tx Tx) error {
		return tx.SetSchemaVersion(e.target)
	})
}
