package migrate

import (
	"fmt"
	"sort"

	"github.com/roach88/homestore/internal/record"
)

// View is the record access a migration step is given. Records are
// addressed by kind and id and read or written one field at a time; a step
// never needs the full shape of a record.
type View interface {
	// Enumerate lists the ids of every record of kind, in a stable order.
	Enumerate(kind string) ([]string, error)

	// GetField reads one field; an unset field reads as record.Null.
	GetField(kind, id, name string) (record.Value, error)

	// SetField writes one field; record.Null clears it.
	SetField(kind, id, name string, v record.Value) error

	// Delete removes a record. Deleting a missing record is a no-op.
	Delete(kind, id string) error

	// Rekey changes a record's primary identifier.
	Rekey(kind, oldID, newID string) error
}

// Transform mutates records through v. oldVersion is the version the store
// had before this migration started, not the gate of a previous step.
type Transform func(v View, oldVersion int) error

// Step is one version-gated transform. It runs when the stored version is
// below Gate.
//
// A step must be safe to run again on data it already migrated: a crash
// before commit means the whole chain runs again from the same version.
// A step must not assume any other step ran in the same migration.
type Step struct {
	Name      string
	Gate      int
	Transform Transform
}

// Registry is an ordered list of migration steps.
// The zero value is an empty registry ready to use.
type Registry struct {
	steps []Step
}

// NewRegistry returns a registry holding steps, validated as by Register.
func NewRegistry(steps ...Step) (*Registry, error) {
	r := &Registry{}
	for _, s := range steps {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry for statically known histories.
// It panics on an invalid step.
func MustRegistry(steps ...Step) *Registry {
	r, err := NewRegistry(steps...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register appends a step. Steps sharing a gate run in registration order.
func (r *Registry) Register(step Step) error {
	if step.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidStep)
	}
	if step.Gate <= 0 {
		return fmt.Errorf("%w: %s: gate must be positive, got %d", ErrInvalidStep, step.Name, step.Gate)
	}
	if step.Transform == nil {
		return fmt.Errorf("%w: %s: nil transform", ErrInvalidStep, step.Name)
	}
	r.steps = append(r.steps, step)
	return nil
}

// Steps returns a copy of the registered steps sorted by gate ascending.
// Ties keep registration order.
func (r *Registry) Steps() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Gate < out[j].Gate
	})
	return out
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	return len(r.steps)
}

// MaxGate returns the highest gate, or 0 for an empty registry.
func (r *Registry) MaxGate() int {
	highest := 0
	for _, s := range r.steps {
		if s.Gate > highest {
			highest = s.Gate
		}
	}
	return highest
}
