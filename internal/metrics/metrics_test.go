package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreExposed(t *testing.T) {
	m := New()
	m.RecordsLoaded.WithLabelValues("prices").Add(24)
	m.Runs.WithLabelValues("ok").Inc()

	assert.Equal(t, 24.0, testutil.ToFloat64(m.RecordsLoaded.WithLabelValues("prices")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `epf_records_loaded_total{category="prices"} 24`))
	assert.True(t, strings.Contains(body, `epf_preprocess_runs_total{status="ok"} 1`))
}

func TestSeparateInstancesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
