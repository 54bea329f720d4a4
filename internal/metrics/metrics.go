// Package metrics exposes Prometheus collectors for the store lifecycle.
//
// Every method is safe to call on a nil *Metrics, so components can take
// an optional collector without branching at each call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "homestore"

// Open outcomes.
const (
	OpenReady     = "ready"
	OpenDegraded  = "degraded"
	OpenFailed    = "failed"
	OpenEphemeral = "ephemeral"
)

type Metrics struct {
	// Lifecycle
	OpenTotal     *prometheus.CounterVec
	SchemaVersion prometheus.Gauge

	// Migration
	MigrationStepsTotal prometheus.Counter
	MigrationDuration   prometheus.Histogram

	// Space
	FileBytes            prometheus.Gauge
	UsedBytes            prometheus.Gauge
	CompactionsScheduled prometheus.Counter

	// Operations
	BackupTotal         *prometheus.CounterVec
	WriteTotal          *prometheus.CounterVec
	CleanupDeletedTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		OpenTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "open_total",
				Help:      "Store opens by outcome",
			},
			[]string{"outcome"}, // ready/degraded/failed/ephemeral
		),
		SchemaVersion: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "schema_version",
				Help:      "Schema version of the open live store",
			},
		),
		MigrationStepsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migration_steps_applied_total",
				Help:      "Migration steps applied and committed",
			},
		),
		MigrationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "migration_duration_seconds",
				Help:      "Duration of migration transactions, including failed ones",
				Buckets:   prometheus.DefBuckets,
			},
		),
		FileBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "file_bytes",
				Help:      "Size of the live store file at open",
			},
		),
		UsedBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "used_bytes",
				Help:      "Bytes of live data in the store file at open",
			},
		),
		CompactionsScheduled: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compactions_scheduled_total",
				Help:      "Times the store was flagged for compaction on next open",
			},
		),
		BackupTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backup_total",
				Help:      "Backup attempts by status",
			},
			[]string{"status"}, // success/error
		),
		WriteTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "background_write_total",
				Help:      "Background writes by status",
			},
			[]string{"status"}, // success/error
		),
		CleanupDeletedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_deleted_total",
				Help:      "Records removed by housekeeping, by kind",
			},
			[]string{"kind"},
		),
	}
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// ObserveOpen counts one open with the given outcome.
func (m *Metrics) ObserveOpen(outcome string) {
	if m == nil {
		return
	}
	m.OpenTotal.WithLabelValues(outcome).Inc()
}

// ObserveSchemaVersion records the live store's version.
func (m *Metrics) ObserveSchemaVersion(v int) {
	if m == nil {
		return
	}
	m.SchemaVersion.Set(float64(v))
}

// ObserveMigration records one migration transaction.
func (m *Metrics) ObserveMigration(applied int, took time.Duration) {
	if m == nil {
		return
	}
	m.MigrationStepsTotal.Add(float64(applied))
	m.MigrationDuration.Observe(took.Seconds())
}

// ObserveSpace records the file size and live bytes seen at open.
func (m *Metrics) ObserveSpace(fileBytes, usedBytes int64) {
	if m == nil {
		return
	}
	m.FileBytes.Set(float64(fileBytes))
	m.UsedBytes.Set(float64(usedBytes))
}

// ObserveCompactionScheduled counts one compaction flag.
func (m *Metrics) ObserveCompactionScheduled() {
	if m == nil {
		return
	}
	m.CompactionsScheduled.Inc()
}

// ObserveBackup counts one backup attempt.
func (m *Metrics) ObserveBackup(ok bool) {
	if m == nil {
		return
	}
	m.BackupTotal.WithLabelValues(status(ok)).Inc()
}

// ObserveWrite counts one background write. It satisfies store.WriteRecorder.
func (m *Metrics) ObserveWrite(err error) {
	if m == nil {
		return
	}
	m.WriteTotal.WithLabelValues(status(err == nil)).Inc()
}

// ObserveCleanup counts records deleted from kind.
func (m *Metrics) ObserveCleanup(kind string, deleted int) {
	if m == nil || deleted <= 0 {
		return
	}
	m.CleanupDeletedTotal.WithLabelValues(kind).Add(float64(deleted))
}
