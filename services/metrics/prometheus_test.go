package metricsvc

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, "test")

	m.RecordTransition("payment", "PROOF_SUBMITTED", "COMPLETED")
	m.RecordTransition("payment", "PROOF_SUBMITTED", "COMPLETED")
	m.RecordRejectedTransition("payment", "REJECTED", "approve")
	m.RecordProgressRecompute(3 * time.Millisecond)
	m.RecordSessionStatus("live")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("payment", "PROOF_SUBMITTED", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectedTransitionsTotal.WithLabelValues("payment", "REJECTED", "approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionStatusTotal.WithLabelValues("live")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}
