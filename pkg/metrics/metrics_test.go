package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFetch(t *testing.T) {
	c := New()
	c.ObserveFetch("openai", 120*time.Millisecond, nil)
	c.ObserveFetch("openai", time.Second, errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.fetchAttempts.WithLabelValues("openai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchFailures.WithLabelValues("openai")))
}

func TestGauges(t *testing.T) {
	c := New()
	c.SetDayTokens("anthropic", 30)
	c.SetWindow(180, 90, 100)
	c.MergedDays("anthropic", 3)

	assert.Equal(t, 30.0, testutil.ToFloat64(c.dayTokens.WithLabelValues("anthropic")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.windowTokens.WithLabelValues("max")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.providerDays.WithLabelValues("anthropic")))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveFetch("openai", time.Second, nil)
	c.SetDayTokens("openai", 1)
	c.SetWindow(1, 1, 1)
	c.MarkRun(time.Now())
	assert.NoError(t, c.WriteTextfile("/nonexistent/metrics.prom"))
	assert.Nil(t, c.Registry())
}

func TestWriteTextfile(t *testing.T) {
	c := New()
	c.SetDayTokens("openai", 42)
	c.MarkRun(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "tokenash.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tokenash_day_tokens{provider="openai"} 42`)
	assert.Contains(t, string(data), "# TYPE tokenash_last_run_timestamp_seconds gauge")
}
