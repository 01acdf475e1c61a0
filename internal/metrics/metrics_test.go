package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveValidation("validated")
	m.ObserveValidation("validated")
	m.ObserveDraw("no_candidate")
	m.ObserveReset("draws")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Validations.WithLabelValues("validated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Draws.WithLabelValues("no_candidate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resets.WithLabelValues("draws")))
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveDraw("drawn")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sorteio_draws_total{outcome="drawn"} 1`)
}
