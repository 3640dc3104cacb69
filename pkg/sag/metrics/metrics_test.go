package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAgentRun_IncrementsCounterByRole(t *testing.T) {
	m := New()
	m.RecordAgentRun("worker", 0.5)
	m.RecordAgentRun("worker", 0.25)
	m.RecordAgentRun("lead", 1.0)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.agentsRun.WithLabelValues("worker")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.agentsRun.WithLabelValues("lead")))
}

func TestRecordFactAsserted_Increments(t *testing.T) {
	m := New()
	m.RecordFactAsserted()
	m.RecordFactAsserted()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.factsAsserted))
}

func TestRecordCheckpoint_SaveAndRestoreTrackedSeparately(t *testing.T) {
	m := New()
	m.RecordCheckpointSave()
	m.RecordCheckpointRestore()
	m.RecordCheckpointRestore()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.checkpointSaves))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.checkpointRestores))
}

func TestNilMetrics_EveryMethodIsANoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAgentRun("role", 1.0)
		m.RecordFactAsserted()
		m.RecordCheckpointSave()
		m.RecordCheckpointRestore()
	})
	assert.Nil(t, m.Registry())
}

func TestRegistry_ExposesRegisteredCollectors(t *testing.T) {
	m := New()
	require.NotNil(t, m.Registry())
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
