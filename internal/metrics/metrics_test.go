package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCommit("success", 20*time.Millisecond)
	m.ObserveCommit("success", 30*time.Millisecond)
	m.ObserveCommit("insufficient_stock", 5*time.Millisecond)
	m.ObserveCompensation("restore", true)
	m.ObserveCompensation("void", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commits.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compensations.WithLabelValues("void", "failed")))

	count, err := testutil.GatherAndCount(reg, "saleregister_commit_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilCommitIsNoop(t *testing.T) {
	var m *Commit
	m.ObserveCommit("success", time.Second)
	m.ObserveCompensation("restore", false)
}
