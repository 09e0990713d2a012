package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amoylab/notification-service/internal/common/config"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	namespace  string
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec

	admissions    *prometheus.CounterVec
	queueDrops    prometheus.Counter
	offline       *prometheus.CounterVec
	busPublish    *prometheus.CounterVec
	ingestRecords *prometheus.CounterVec
	deliverDur    *prometheus.HistogramVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "ws_admissions_total", Help: "WebSocket admission decisions"}, []string{"result"})
	queueDrops := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "queue_drops_total", Help: "Messages dropped because a connection queue was full"})
	offline := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "offline_deliveries_total", Help: "Payloads routed to the offline store"}, []string{"result"})
	busPublish := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "bus_publish_total"}, []string{"status"})
	ingestRecords := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "ingest_records_total"}, []string{"topic", "result"})
	deliverDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "local_delivery_duration_seconds", Buckets: cfg.Buckets}, []string{"target"})
	r.MustRegister(admissions, queueDrops, offline, busPublish, ingestRecords, deliverDur)

	return &Metrics{
		registry:      r,
		namespace:     ns,
		httpReqCnt:    httpReqCnt,
		httpDur:       httpDur,
		httpInfl:      httpInfl,
		admissions:    admissions,
		queueDrops:    queueDrops,
		offline:       offline,
		busPublish:    busPublish,
		ingestRecords: ingestRecords,
		deliverDur:    deliverDur,
	}
}

// RegisterConnectionGauge exposes the live connection count read from fn at scrape time.
func (m *Metrics) RegisterConnectionGauge(fn func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "ws_connections",
		Help:      "Live registered WebSocket connections",
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) Admission(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.admissions.WithLabelValues(result).Inc()
}

func (m *Metrics) QueueDrop() {
	if m == nil {
		return
	}
	m.queueDrops.Inc()
}

// Offline counts offline-path payloads; result is stored, dropped or failed.
func (m *Metrics) Offline(result string) {
	if m == nil {
		return
	}
	m.offline.WithLabelValues(result).Inc()
}

func (m *Metrics) BusPublish(err error) {
	if m == nil {
		return
	}
	m.busPublish.WithLabelValues(status(err)).Inc()
}

// IngestRecord counts a processed record; result is delivered, skipped or failed.
func (m *Metrics) IngestRecord(topic, result string) {
	if m == nil {
		return
	}
	m.ingestRecords.WithLabelValues(topic, result).Inc()
}

func (m *Metrics) LocalDelivery(target string, since time.Time) {
	if m == nil {
		return
	}
	m.deliverDur.WithLabelValues(target).Observe(time.Since(since).Seconds())
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		code := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, code).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, code).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
