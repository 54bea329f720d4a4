package compaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fraction returns f of n bytes, truncated.
func fraction(n int64, f float64) int64 {
	return int64(f * float64(n))
}

func TestShouldCompact_Boundaries(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name string
		size int64
		used int64
		want bool
	}{
		{"just over threshold, mostly free", 10*MiB + 1, fraction(10*MiB+1, 0.49), true},
		{"exactly threshold, empty", 10 * MiB, 0, false},
		{"exactly threshold, full", 10 * MiB, 10 * MiB, false},
		{"large but over floor", 20 * MiB, fraction(20*MiB, 0.51), false},
		{"large and exactly at floor", 20 * MiB, 10 * MiB, false},
		{"large and just under floor", 20 * MiB, 10*MiB - 1, true},
		{"small and empty", 1 * MiB, 0, false},
		{"zero size", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldCompact(tt.size, tt.used))
		})
	}
}

func TestShouldCompact_CustomPolicy(t *testing.T) {
	p := Policy{ThresholdBytes: 1024, UtilizationFloor: 0.25}
	assert.True(t, p.ShouldCompact(4096, 1000))
	assert.False(t, p.ShouldCompact(4096, 1024))
	assert.False(t, p.ShouldCompact(1024, 0))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{ThresholdBytes: 0, UtilizationFloor: 0.5}.Validate())
	assert.Error(t, Policy{ThresholdBytes: MiB, UtilizationFloor: 0}.Validate())
	assert.Error(t, Policy{ThresholdBytes: MiB, UtilizationFloor: 1}.Validate())
}
