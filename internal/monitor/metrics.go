package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇总消费循环的运行指标。
type Metrics struct {
	registry *prometheus.Registry

	messages   *prometheus.CounterVec
	lifecycle  *prometheus.CounterVec
	executions *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

// NewMetrics 在独立的 registry 上注册指标。
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_stream_messages_total",
			Help: "Private stream messages consumed, by topic",
		}, []string{"topic"}),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_lifecycle_events_total",
			Help: "Position lifecycle events, by kind",
		}, []string{"kind"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_executions_total",
			Help: "Executions handled, by attribution outcome",
		}, []string{"outcome"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_messages_dropped_total",
			Help: "Messages dropped after a collaborator failure, by topic",
		}, []string{"topic"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_notifications_total",
			Help: "Notification deliveries, by result",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_queue_depth",
			Help: "Messages waiting for the consumer",
		}),
	}
	m.registry.MustRegister(m.messages, m.lifecycle, m.executions, m.dropped, m.deliveries, m.queueDepth)
	return m
}

// Handler 返回 /metrics 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveMessage(topic string) {
	m.messages.WithLabelValues(topic).Inc()
}

func (m *Metrics) ObserveLifecycle(kind string) {
	m.lifecycle.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveExecution(outcome string) {
	m.executions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDropped(topic string) {
	m.dropped.WithLabelValues(topic).Inc()
}

func (m *Metrics) ObserveDeliveries(delivered, failed int) {
	m.deliveries.WithLabelValues("ok").Add(float64(delivered))
	m.deliveries.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}
