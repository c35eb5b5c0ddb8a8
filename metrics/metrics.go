// Package metrics 暴露批量预测任务的 Prometheus 指标。
//
// 批量任务运行时间短，不适合被 Prometheus 拉取；任务结束时把指标写到
// node_exporter textfile collector 目录即可（WriteTextfile）。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "insurekit"

// RunStats 是一次批量预测的统计结果
type RunStats struct {
	RowsRead      int
	RowsFiltered  int
	RowsPredicted int
	Duration      time.Duration
	Model         string
	Succeeded     bool
}

// BatchMetrics 持有批量预测的指标，使用独立的 Registry，避免混入进程级指标。
type BatchMetrics struct {
	registry *prometheus.Registry

	rowsRead      prometheus.Gauge
	rowsFiltered  prometheus.Gauge
	rowsPredicted prometheus.Gauge
	duration      prometheus.Gauge
	lastSuccess   prometheus.Gauge
	runs          *prometheus.CounterVec
}

// NewBatchMetrics 创建并注册批量预测指标
func NewBatchMetrics() *BatchMetrics {
	m := &BatchMetrics{
		registry: prometheus.NewRegistry(),
		rowsRead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "batch", Name: "rows_read",
			Help: "Rows read from the input file in the last run.",
		}),
		rowsFiltered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "batch", Name: "rows_filtered",
			Help: "Rows dropped by the row filter in the last run.",
		}),
		rowsPredicted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "batch", Name: "rows_predicted",
			Help: "Rows written with a prediction in the last run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "batch", Name: "duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "batch", Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "batch", Name: "runs_total",
			Help: "Batch prediction runs by model and result.",
		}, []string{"model", "result"}),
	}
	m.registry.MustRegister(m.rowsRead, m.rowsFiltered, m.rowsPredicted, m.duration, m.lastSuccess, m.runs)
	return m
}

// Registry 返回指标所在的 Registry（便于测试或挂到 HTTP handler）
func (m *BatchMetrics) Registry() *prometheus.Registry { return m.registry }

// Observe 记录一次运行
func (m *BatchMetrics) Observe(stats RunStats, now time.Time) {
	m.rowsRead.Set(float64(stats.RowsRead))
	m.rowsFiltered.Set(float64(stats.RowsFiltered))
	m.rowsPredicted.Set(float64(stats.RowsPredicted))
	m.duration.Set(stats.Duration.Seconds())

	model := stats.Model
	if model == "" {
		model = "unknown"
	}
	result := "failure"
	if stats.Succeeded {
		result = "success"
		m.lastSuccess.Set(float64(now.Unix()))
	}
	m.runs.WithLabelValues(model, result).Inc()
}

// WriteTextfile 原子地把指标写到 path（node_exporter textfile collector 格式）
func (m *BatchMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
