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

func TestMetrics_AffectedAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Affected("Entry", "soft_delete", 3)
	m.Affected("Entry", "soft_delete", 2)
	m.Affected("File", "soft_delete", 0)

	assert.Equal(t, float64(5), testutil.ToFloat64(m.affected.WithLabelValues("Entry", "soft_delete")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.affected))

	m.Observe("restore", time.Now(), nil)
	m.Observe("restore", time.Now(), errors.New("rolled back"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("restore")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.runs))

	n, err := testutil.GatherAndCount(reg, "logicaldelete_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_DurationHelp(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Observe("soft_delete", time.Now(), nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "logicaldelete_operation_duration_seconds" {
			assert.Equal(t, "Duration of the apply step of collector runs.", mf.GetHelp())
			return
		}
	}
	t.Fatal("duration histogram not gathered")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Affected("Entry", "restore", 1)
	m.Observe("restore", time.Now(), errors.New("x"))
}
