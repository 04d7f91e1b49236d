package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDurationGrows(t *testing.T) {
	timer := NewTimer()

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first)
}

func TestTimerObserveDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_commit_seconds",
		Help:    "test",
		Buckets: prometheus.DefBuckets,
	})

	NewTimer().ObserveDuration(h)
	NewTimer().ObserveDuration(h)

	assert.Equal(t, 1, testutil.CollectAndCount(h))
}

func TestTimerObserveDurationVec(t *testing.T) {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_request_seconds",
		Help:    "test",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	timer := NewTimer()
	timer.ObserveDurationVec(h, "GET")
	timer.ObserveDurationVec(h, "POST")

	assert.Equal(t, 2, testutil.CollectAndCount(h))
}

func TestIndependentTimers(t *testing.T) {
	first := NewTimer()
	time.Sleep(20 * time.Millisecond)
	second := NewTimer()

	assert.Greater(t, first.Duration(), second.Duration())
}
