package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// registering twice into the same registry is an error
	assert.Error(t, Register(reg))
}

func TestCountersExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	before := testutil.ToFloat64(TaskTransitions.WithLabelValues("COMPLETED"))
	TaskTransitions.WithLabelValues("COMPLETED").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TaskTransitions.WithLabelValues("COMPLETED")))

	ActiveDownloads.Set(2)
	expected := `
# HELP rangefetch_active_downloads Tasks currently holding a worker slot.
# TYPE rangefetch_active_downloads gauge
rangefetch_active_downloads 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "rangefetch_active_downloads"))
	ActiveDownloads.Set(0)
}
