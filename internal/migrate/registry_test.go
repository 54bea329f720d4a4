package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(View, int) error { return nil }

func names(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}

func TestRegistry_StepsSortedByGate(t *testing.T) {
	r := &Registry{}
	require.NoError(t, r.Register(Step{Name: "c", Gate: 12, Transform: noop}))
	require.NoError(t, r.Register(Step{Name: "a", Gate: 9, Transform: noop}))
	require.NoError(t, r.Register(Step{Name: "b", Gate: 10, Transform: noop}))

	assert.Equal(t, []string{"a", "b", "c"}, names(r.Steps()))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 12, r.MaxGate())
}

func TestRegistry_TiesKeepRegistrationOrder(t *testing.T) {
	r := MustRegistry(
		Step{Name: "first", Gate: 12, Transform: noop},
		Step{Name: "early", Gate: 5, Transform: noop},
		Step{Name: "second", Gate: 12, Transform: noop},
		Step{Name: "third", Gate: 12, Transform: noop},
	)

	for i := 0; i < 10; i++ {
		assert.Equal(t, []string{"early", "first", "second", "third"}, names(r.Steps()))
	}
}

func TestRegistry_StepsReturnsCopy(t *testing.T) {
	r := MustRegistry(Step{Name: "a", Gate: 1, Transform: noop})
	steps := r.Steps()
	steps[0].Name = "mutated"
	assert.Equal(t, "a", r.Steps()[0].Name)
}

func TestRegistry_RejectsInvalidSteps(t *testing.T) {
	tests := []struct {
		name string
		step Step
	}{
		{"missing name", Step{Gate: 1, Transform: noop}},
		{"zero gate", Step{Name: "x", Gate: 0, Transform: noop}},
		{"negative gate", Step{Name: "x", Gate: -3, Transform: noop}},
		{"nil transform", Step{Name: "x", Gate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.step)
			assert.ErrorIs(t, err, ErrInvalidStep)
		})
	}

	assert.Panics(t, func() { MustRegistry(Step{}) })
}

func TestRegistry_ZeroValueIsEmpty(t *testing.T) {
	var r Registry
	assert.Empty(t, r.Steps())
	assert.Equal(t, 0, r.MaxGate())
}
