package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 查询指标
	lookups *prometheus.CounterVec
	sets    *prometheus.CounterVec

	// 加载指标
	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	parseErrors  prometheus.Counter
	records      prometheus.Gauge

	// 推送指标
	feedConnects prometheus.Counter
	feedMessages *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "stock",
		Subsystem: "lookup",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,

		lookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "lookups_total",
				Help:      "查询次数（result=hit|miss|invalid）",
			},
			[]string{"result"},
		),
		sets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sets_total",
				Help:      "写入次数（result=ok|invalid）",
			},
			[]string{"result"},
		),

		loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "loads_total",
				Help:      "数据源加载次数（status=ok|error）",
			},
			[]string{"status"},
		),
		loadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "load_duration_seconds",
			Help:      "数据源加载耗时（秒）",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		parseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "parse_errors_total",
			Help:      "被跳过的格式错误行",
		}),
		records: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "records",
			Help:      "当前记录数",
		}),

		feedConnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "feed_connections_total",
			Help:      "WebSocket推送连接次数",
		}),
		feedMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "feed_records_total",
				Help:      "推送记录数（result=applied|rejected）",
			},
			[]string{"result"},
		),
	}
}

func (m *Monitor) RecordLookup(result string) {
	m.lookups.WithLabelValues(result).Inc()
}

func (m *Monitor) RecordSet(ok bool) {
	if ok {
		m.sets.WithLabelValues("ok").Inc()
		return
	}
	m.sets.WithLabelValues("invalid").Inc()
}

// RecordLoad 记录一次加载；err 非空时只计失败次数。
func (m *Monitor) RecordLoad(seconds float64, parseErrors int, err error) {
	m.loadDuration.Observe(seconds)
	if err != nil {
		m.loads.WithLabelValues("error").Inc()
		return
	}
	m.loads.WithLabelValues("ok").Inc()
	m.parseErrors.Add(float64(parseErrors))
}

func (m *Monitor) SetRecordCount(n int) {
	m.records.Set(float64(n))
}

func (m *Monitor) RecordFeedConnection() {
	m.feedConnects.Inc()
}

func (m *Monitor) RecordFeedRecord(applied bool) {
	if applied {
		m.feedMessages.WithLabelValues("applied").Inc()
		return
	}
	m.feedMessages.WithLabelValues("rejected").Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
