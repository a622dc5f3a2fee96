package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/pingtally/internal/tally/repos/addrcache"
)

type fixedClients int

func (f fixedClients) Len() int { return int(f) }

func TestNew_CountersStartAtZero(t *testing.T) {
	m := New(nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsCounted))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsUncounted))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReportsEmitted))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReportFailures))
}

func TestNew_InstancesAreIsolated(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.RequestsCounted.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.RequestsCounted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RequestsCounted))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New(fixedClients(3))
	m.RequestsCounted.Add(2)
	m.ReportFailures.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "pingtally_requests_counted_total 2")
	assert.Contains(t, text, "pingtally_report_failures_total 1")
	assert.Contains(t, text, "pingtally_clients 3")
	assert.Contains(t, text, "go_goroutines")
}

func TestGather_ClientsGaugeOmittedWithoutCounter(t *testing.T) {
	m := New(nil)
	families, err := m.registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		assert.NotEqual(t, "pingtally_clients", f.GetName())
	}
}

type fixedCache addrcache.Stats

func (f fixedCache) Stats() addrcache.Stats { return addrcache.Stats(f) }

func TestRegisterAddrCache_ExposesStats(t *testing.T) {
	m := New(nil)
	m.RegisterAddrCache(fixedCache{Capacity: 8, Size: 2, Hits: 5, Misses: 3})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	text := rec.Body.String()

	assert.Contains(t, text, "pingtally_addr_cache_hits_total 5")
	assert.Contains(t, text, "pingtally_addr_cache_misses_total 3")
	assert.Contains(t, text, "pingtally_addr_cache_entries 2")
}

func TestRegisterAddrCache_ReadsLiveCache(t *testing.T) {
	c, err := addrcache.New(4)
	require.NoError(t, err)
	m := New(nil)
	m.RegisterAddrCache(c)

	for i := 0; i < 3; i++ {
		_, err := c.Resolve("127.0.0.1:5000")
		require.NoError(t, err)
	}

	families, err := m.registry.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["pingtally_addr_cache_hits_total"])
	assert.Equal(t, 1.0, values["pingtally_addr_cache_misses_total"])
	assert.Equal(t, 1.0, values["pingtally_addr_cache_entries"])
}
