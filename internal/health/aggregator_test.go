package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(name string, status Status) Checker {
	return CheckerFunc(name, func(context.Context) CheckResult {
		return CheckResult{Status: status, Message: name}
	})
}

func TestAggregator(t *testing.T) {
	tests := []struct {
		name      string
		upload    Status
		reader    Status
		want      Status
		wantReady bool
	}{
		{"全部健康", StatusHealthy, StatusHealthy, StatusHealthy, true},
		{"上传熔断只降级", StatusDegraded, StatusHealthy, StatusDegraded, true},
		{"读卡器断开不就绪", StatusHealthy, StatusUnhealthy, StatusUnhealthy, false},
		{"降级与不健康取最差", StatusDegraded, StatusUnhealthy, StatusUnhealthy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(
				fixed("loadcell", StatusHealthy),
				fixed("reader", tt.reader),
				fixed("upload", tt.upload),
			)
			ctx := context.Background()
			assert.Equal(t, tt.want, agg.OverallStatus(ctx))
			assert.Equal(t, tt.wantReady, agg.Ready(ctx))
			assert.True(t, agg.Alive())
		})
	}
}

func TestAggregator_AddChecker(t *testing.T) {
	agg := NewAggregator(fixed("loadcell", StatusHealthy))
	agg.AddChecker(nil)
	agg.AddChecker(fixed("redis", StatusDegraded))

	results := agg.CheckAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusDegraded, results["redis"].Status)
	assert.Equal(t, "loadcell", results["loadcell"].Message)
}

func TestAggregator_CheckTimeout(t *testing.T) {
	slow := CheckerFunc("slow", func(ctx context.Context) CheckResult {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return CheckResult{Status: StatusHealthy}
	})
	agg := NewAggregator(slow, fixed("sensor", StatusHealthy)).WithTimeout(20 * time.Millisecond)

	report := agg.Report(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks["slow"].Message, "timed out")
	assert.Equal(t, StatusHealthy, report.Checks["sensor"].Status)
}

func TestOverall(t *testing.T) {
	assert.Equal(t, StatusHealthy, Overall(nil))
	assert.Equal(t, StatusDegraded, Overall(map[string]CheckResult{
		"a": {Status: StatusHealthy},
		"b": {Status: StatusDegraded},
	}))
	assert.Equal(t, StatusUnhealthy, Overall(map[string]CheckResult{
		"a": {Status: StatusUnhealthy},
		"b": {Status: StatusDegraded},
	}))
}

func TestRegisterHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	status := StatusDegraded
	agg := NewAggregator(CheckerFunc("upload", func(context.Context) CheckResult {
		return CheckResult{Status: status, Message: "circuit open"}
	}))
	r := gin.New()
	RegisterHTTPRoutes(r, agg)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("降级仍就绪", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get("/health/ready").Code)

		w := get("/health")
		require.Equal(t, http.StatusOK, w.Code)
		var report HealthReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, StatusDegraded, report.Status)
		assert.Equal(t, "circuit open", report.Checks["upload"].Message)

		var ready struct {
			Ready   bool     `json:"ready"`
			Failing []string `json:"failing"`
		}
		require.NoError(t, json.Unmarshal(get("/health/ready").Body.Bytes(), &ready))
		assert.True(t, ready.Ready)
		assert.Equal(t, []string{"upload"}, ready.Failing)
	})

	t.Run("不健康返回503", func(t *testing.T) {
		status = StatusUnhealthy
		assert.Equal(t, http.StatusServiceUnavailable, get("/health/ready").Code)
		assert.Equal(t, http.StatusServiceUnavailable, get("/health").Code)
		assert.Equal(t, http.StatusOK, get("/health/live").Code)
	})
}
