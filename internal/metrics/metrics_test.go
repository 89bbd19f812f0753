package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppMetricsExposed(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)
	m.FrameTotal.WithLabelValues("frame").Inc()
	m.ScanComplete.Inc()
	m.WeightGrams.Set(12.5)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `reader_frame_total{result="frame"} 1`))
	assert.True(t, strings.Contains(body, "scan_complete_total 1"))
	assert.True(t, strings.Contains(body, "scale_weight_grams 12.5"))
}
