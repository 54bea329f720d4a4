// Package compaction decides when a store file should be rewritten densely.
package compaction

import "fmt"

// MiB is 1024*1024 bytes.
const MiB = 1 << 20

// Defaults applied when a Policy field is zero.
const (
	DefaultThresholdBytes   int64   = 10 * MiB
	DefaultUtilizationFloor float64 = 0.5
)

// Policy is the compaction heuristic: compact a file that is both larger
// than ThresholdBytes and less than UtilizationFloor full of live data.
// The constants are tuning, not correctness.
type Policy struct {
	ThresholdBytes   int64   `yaml:"threshold_bytes" json:"threshold_bytes"`
	UtilizationFloor float64 `yaml:"utilization_floor" json:"utilization_floor"`
}

// DefaultPolicy returns the 10 MiB / 50% policy.
func DefaultPolicy() Policy {
	return Policy{
		ThresholdBytes:   DefaultThresholdBytes,
		UtilizationFloor: DefaultUtilizationFloor,
	}
}

// Validate checks the policy's ranges.
func (p Policy) Validate() error {
	if p.ThresholdBytes <= 0 {
		return fmt.Errorf("compaction threshold must be positive, got %d", p.ThresholdBytes)
	}
	if p.UtilizationFloor <= 0 || p.UtilizationFloor >= 1 {
		return fmt.Errorf("compaction utilization floor must be in (0, 1), got %g", p.UtilizationFloor)
	}
	return nil
}

// ShouldCompact reports whether a file of fileSizeBytes holding usedBytes
// of live data should be compacted. The size test is strictly greater than
// the threshold; the utilization test is strictly below the floor.
func (p Policy) ShouldCompact(fileSizeBytes, usedBytes int64) bool {
	if fileSizeBytes <= p.ThresholdBytes || fileSizeBytes <= 0 {
		return false
	}
	return float64(usedBytes)/float64(fileSizeBytes) < p.UtilizationFloor
}
