package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can construct isolated
// instances without tripping duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	uploadsTotal    *prometheus.CounterVec
	storedBytes     *prometheus.CounterVec
	servesTotal     *prometheus.CounterVec
	sseSubscribers  prometheus.Gauge
	storageDegraded prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_media_uploads_total",
			Help: "Uploads stored, by persistence tier and media type.",
		}, []string{"tier", "media_type"}),
		storedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_media_stored_bytes_total",
			Help: "Bytes persisted after derivative processing, by tier.",
		}, []string{"tier"}),
		servesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_media_serves_total",
			Help: "Media serve responses, by outcome.",
		}, []string{"outcome"}),
		sseSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gallery_progress_subscribers",
			Help: "Open upload-progress SSE streams.",
		}),
		storageDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gallery_storage_degraded",
			Help: "1 when writes are landing on the ephemeral fallback root.",
		}),
	}

	registry.MustRegister(
		m.uploadsTotal,
		m.storedBytes,
		m.servesTotal,
		m.sseSubscribers,
		m.storageDegraded,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveUpload(tier, mediaType string, storedBytes int64) {
	m.uploadsTotal.WithLabelValues(tier, mediaType).Inc()
	m.storedBytes.WithLabelValues(tier).Add(float64(storedBytes))
}

func (m *Metrics) ObserveServe(outcome string) {
	m.servesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SSESubscriberInc() { m.sseSubscribers.Inc() }
func (m *Metrics) SSESubscriberDec() { m.sseSubscribers.Dec() }

func (m *Metrics) SetStorageDegraded(degraded bool) {
	if degraded {
		m.storageDegraded.Set(1)
		return
	}
	m.storageDegraded.Set(0)
}
