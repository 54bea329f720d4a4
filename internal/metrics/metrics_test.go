package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.ObserveOpen(OpenReady)
	m.ObserveOpen(OpenDegraded)
	m.ObserveOpen(OpenDegraded)
	m.ObserveWrite(nil)
	m.ObserveWrite(errors.New("boom"))
	m.ObserveBackup(true)
	m.ObserveCleanup("client_event", 3)
	m.ObserveCleanup("client_event", 0)
	m.ObserveCompactionScheduled()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenTotal.WithLabelValues(OpenReady)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpenTotal.WithLabelValues(OpenDegraded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackupTotal.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CleanupDeletedTotal.WithLabelValues("client_event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompactionsScheduled))

	_, err := reg.Gather()
	require.NoError(t, err)
}

func TestMetrics_Gauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSchemaVersion(16)
	m.ObserveSpace(4096, 1024)
	m.ObserveMigration(3, 20*time.Millisecond)

	assert.Equal(t, 16.0, testutil.ToFloat64(m.SchemaVersion))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.FileBytes))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.UsedBytes))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MigrationStepsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MigrationDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOpen(OpenReady)
		m.ObserveWrite(nil)
		m.ObserveBackup(false)
		m.ObserveSpace(1, 1)
		m.ObserveMigration(1, time.Second)
		m.ObserveCleanup("x", 1)
		m.ObserveSchemaVersion(1)
		m.ObserveCompactionScheduled()
	})
}
