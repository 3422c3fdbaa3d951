package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/warden"
)

type fakeSource struct {
	snapshot warden.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() warden.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }

func TestCollectorDisabledEmitsOnlyAuditDropped(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: warden.MetricsSnapshot{
			Counters:   map[warden.MetricID]uint64{},
			Histograms: map[warden.MetricID][]uint64{},
		},
	})

	assert.Equal(t, 1, testutil.CollectAndCount(c), "only the audit dropped series")
}

func TestCollectorCountersAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: warden.MetricsSnapshot{
			Counters: map[warden.MetricID]uint64{
				warden.MetricLoginIssued:  7,
				warden.MetricRateLimitHit: 3,
			},
			Histograms: map[warden.MetricID][]uint64{
				warden.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP warden_login_issued_total Token pairs issued for authenticated subjects.
# TYPE warden_login_issued_total counter
warden_login_issued_total 7
# HELP warden_rate_limit_hit_total Rate checks that denied the request.
# TYPE warden_rate_limit_hit_total counter
warden_rate_limit_hit_total 3
# HELP warden_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE warden_audit_dropped_total counter
warden_audit_dropped_total 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"warden_login_issued_total", "warden_rate_limit_hit_total", "warden_audit_dropped_total")
	require.NoError(t, err)

	exp, err := NewExporterFromSource(fakeSource{snapshot: warden.MetricsSnapshot{
		Counters:   map[warden.MetricID]uint64{},
		Histograms: map[warden.MetricID][]uint64{warden.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8}},
	}})
	require.NoError(t, err)
	families, err := exp.Registry().Gather()
	require.NoError(t, err)

	var h *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "warden_validate_latency_seconds" {
			h = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, h, "validate latency histogram missing")
	assert.Equal(t, uint64(36), h.GetSampleCount())
	buckets := h.GetBucket()
	require.Len(t, buckets, 7)
	assert.Equal(t, 0.005, buckets[0].GetUpperBound())
	assert.Equal(t, uint64(1), buckets[0].GetCumulativeCount())
	assert.Equal(t, 0.5, buckets[6].GetUpperBound())
	assert.Equal(t, uint64(28), buckets[6].GetCumulativeCount())
}

func TestExporterHandlerServesEngine(t *testing.T) {
	exp, err := NewExporterFromSource(fakeSource{snapshot: warden.MetricsSnapshot{
		Counters: map[warden.MetricID]uint64{warden.MetricLogout: 1},
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "warden_logout_total 1")
}
