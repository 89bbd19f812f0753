package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	SerialBytes       prometheus.Counter
	SerialDropped     prometheus.Counter
	SerialOpenTotal   *prometheus.CounterVec // labels: result=ok|error
	FrameTotal        *prometheus.CounterVec // labels: result=frame|overflow|malformed
	DecodeTotal       *prometheus.CounterVec // labels: result=ok|invalid_hex|checksum_mismatch
	SessionTransition *prometheus.CounterVec // labels: from, to
	ScanComplete      prometheus.Counter
	TareTotal         *prometheus.CounterVec // labels: result=ok|error
	SensorReadTotal   *prometheus.CounterVec // labels: result=ok|timeout|pin_fault|error
	WeightGrams       prometheus.Gauge       // 最新重量（驱动极性）
	UploadTotal       *prometheus.CounterVec // labels: result=success|failed|dropped|dlq|circuit_open|canceled
	UploadDuration    prometheus.Histogram
	UploadQueueSize   *prometheus.GaugeVec // labels: queue=memory|main|dlq
	UploadCircuit     prometheus.Gauge     // 0 closed, 1 open, 2 half_open
	DedupHitTotal     prometheus.Counter
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		SerialBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reader_serial_bytes_total",
			Help: "Total bytes received from the RFID reader.",
		}),
		SerialDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reader_serial_dropped_bytes_total",
			Help: "Bytes dropped because the control loop fell behind.",
		}),
		SerialOpenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reader_serial_open_total",
			Help: "Serial port open attempts.",
		}, []string{"result"}),
		FrameTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reader_frame_total",
			Help: "Frame assembler outcomes.",
		}, []string{"result"}),
		DecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reader_decode_total",
			Help: "Decoded tags by checksum result.",
		}, []string{"result"}),
		SessionTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scan_session_transition_total",
			Help: "Scan session state transitions.",
		}, []string{"from", "to"}),
		ScanComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scan_complete_total",
			Help: "Scan-complete events emitted.",
		}),
		TareTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scale_tare_total",
			Help: "Tare operations.",
		}, []string{"result"}),
		SensorReadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scale_sensor_read_total",
			Help: "Load cell raw reads.",
		}, []string{"result"}),
		WeightGrams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scale_weight_grams",
			Help: "Latest calibrated weight in grams.",
		}),
		UploadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_total",
			Help: "Scan event uploads.",
		}, []string{"result"}),
		UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "upload_duration_seconds",
			Help:    "Duration of scan event uploads in seconds.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		UploadQueueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "upload_queue_size",
			Help: "Current size of the upload queues.",
		}, []string{"queue"}),
		UploadCircuit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upload_circuit_state",
			Help: "Webhook circuit breaker state (0 closed, 1 open, 2 half_open).",
		}),
		DedupHitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upload_dedup_hit_total",
			Help: "Duplicate scan events detected before upload.",
		}),
	}
	reg.MustRegister(
		m.SerialBytes, m.SerialDropped, m.SerialOpenTotal, m.FrameTotal, m.DecodeTotal, m.SessionTransition, m.ScanComplete,
		m.TareTotal, m.SensorReadTotal, m.WeightGrams,
		m.UploadTotal, m.UploadDuration, m.UploadQueueSize, m.UploadCircuit, m.DedupHitTotal,
	)
	return m
}
