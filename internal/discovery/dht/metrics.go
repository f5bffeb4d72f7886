package dht

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/lookup"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/tracker"
	"github.com/dep2p/go-kaddht/pkg/types"
)

const metricsNamespace = "kaddht"

// ============================================================================
//                              DHT 指标
// ============================================================================

// Metrics DHT 指标
type Metrics struct {
	received        *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestFailures *prometheus.CounterVec
	lookups         *prometheus.CounterVec
	lookupDuration  *prometheus.HistogramVec
}

// NewMetrics 创建并注册 DHT 指标
//
// peers 和 pending 以 GaugeFunc 形式在采集时读取。
// reg 为 nil 时使用新的独立 registry。
func NewMetrics(reg prometheus.Registerer, peers, pending func() int) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "Number of valid messages received, by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_dropped_total",
			Help:      "Number of datagrams dropped, by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_sent_total",
			Help:      "Number of outgoing requests, by type.",
		}, []string{"type"}),
		requestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "request_failures_total",
			Help:      "Number of outgoing requests that failed, by reason.",
		}, []string{"reason"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Number of completed operations, by kind and result.",
		}, []string{"kind", "result"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of completed operations, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"kind"}),
	}

	collectors := []prometheus.Collector{
		m.received, m.dropped, m.requests, m.requestFailures, m.lookups, m.lookupDuration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "routing_table_peers",
			Help:      "Number of peers in the routing table.",
		}, func() float64 { return float64(peers()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_requests",
			Help:      "Number of requests awaiting a response.",
		}, func() float64 { return float64(pending()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordReceived 记录收到的合法消息
func (m *Metrics) RecordReceived(t message.Type) {
	m.received.WithLabelValues(t.String()).Inc()
}

// RecordDropped 记录被丢弃的数据报
func (m *Metrics) RecordDropped(err error) {
	m.dropped.WithLabelValues(dropReason(err)).Inc()
}

// RecordRequest 记录发出的请求
func (m *Metrics) RecordRequest(t message.Type) {
	m.requests.WithLabelValues(t.String()).Inc()
}

// RecordRequestFailure 记录失败的请求
func (m *Metrics) RecordRequestFailure(err error) {
	reason := "other"
	switch {
	case errors.Is(err, tracker.ErrTimedOut):
		reason = "timeout"
	case errors.Is(err, ErrRunAborted):
		reason = "aborted"
	}
	m.requestFailures.WithLabelValues(reason).Inc()
}

// RecordOperation 记录完成的操作
func (m *Metrics) RecordOperation(kind string, started time.Time, now time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.lookups.WithLabelValues(kind, result).Inc()
	m.lookupDuration.WithLabelValues(kind).Observe(now.Sub(started).Seconds())
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, message.ErrUnknownProtocolVersion):
		return "version"
	case errors.Is(err, message.ErrUnknownMessageType):
		return "type"
	case errors.Is(err, message.ErrCorruptedBody):
		return "corrupted"
	default:
		return "truncated"
	}
}

// ============================================================================
//                              带指标的跟踪器
// ============================================================================

// instrumentedTracker 为查找发出的请求计数
type instrumentedTracker struct {
	tracker *tracker.Tracker
	metrics *Metrics
}

var _ lookup.Tracker = (*instrumentedTracker)(nil)

// SendRequest 实现 lookup.Tracker
func (t *instrumentedTracker) SendRequest(body message.Body, to types.Endpoint, timeout time.Duration, onResponse tracker.OnResponse, onError tracker.OnError) {
	t.metrics.RecordRequest(body.Type())
	t.tracker.SendRequest(body, to, timeout, onResponse, func(err error) {
		t.metrics.RecordRequestFailure(err)
		onError(err)
	})
}

// SendMessage 实现 lookup.Tracker
func (t *instrumentedTracker) SendMessage(body message.Body, to types.Endpoint) error {
	t.metrics.RecordRequest(body.Type())
	return t.tracker.SendMessage(body, to)
}
