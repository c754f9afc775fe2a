package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 告警链路的 Prometheus 指标
type Metrics struct {
	ReadingsIngested *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	CaseTransitions  *prometheus.CounterVec
	SoftFailures     *prometheus.CounterVec
	MQTTMessages     *prometheus.CounterVec
}

// New 在 reg 上注册全部指标；reg 为 nil 时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ReadingsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "afe_readings_ingested_total",
			Help: "Device readings persisted, by kind and computed status",
		}, []string{"kind", "status"}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "afe_alert_dispatch_total",
			Help: "Alert dispatch attempts, by alert kind and outcome",
		}, []string{"kind", "outcome"}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "afe_alert_dispatch_duration_seconds",
			Help:    "Time spent in a single dispatch attempt",
			Buckets: prometheus.DefBuckets,
		}),
		CaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "afe_case_transitions_total",
			Help: "Emergency case state transitions",
		}, []string{"from", "to"}),
		SoftFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "afe_soft_failures_total",
			Help: "Logged-only failures (cache, event stream) by component",
		}, []string{"component"}),
		MQTTMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "afe_mqtt_messages_total",
			Help: "MQTT device messages by result",
		}, []string{"result"}),
	}
}

// NewNop 独立注册表上的指标，测试用
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
