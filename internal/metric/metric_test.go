package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.RunFinished("SuperNetwork", "ok")
	m.RunFinished("SuperNetwork", "ok")
	m.Dropped("counts", 3)
	m.Dropped("counts", 0)
	m.RateRefreshed("EUR", "updated")
	m.ObserveStage("FETCH", 20*time.Millisecond)
	m.RequestProcessed(http.MethodPost, http.StatusOK)

	body := scrape(t, m)
	require.Contains(t, body, `adreport_pipeline_runs_total{network="SuperNetwork",outcome="ok"} 2`)
	require.Contains(t, body, `adreport_rows_dropped_total{check="counts"} 3`)
	require.Contains(t, body, `adreport_rate_refresh_total{currency="EUR",result="updated"} 1`)
	require.Contains(t, body, `adreport_api_requests_processed_total{method="POST",status="200"} 1`)
	require.Contains(t, body, `adreport_pipeline_duration_seconds_count{stage="FETCH"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RunFinished("x", "ok")
	m.Dropped("counts", 1)
	m.ObserveStage("FETCH", time.Second)
	m.RateRefreshed("EUR", "failed")
	m.RequestProcessed(http.MethodGet, http.StatusOK)
	require.NotNil(t, m.GetGatherer())
	require.NotNil(t, m.Handler())
}
