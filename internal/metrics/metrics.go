package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event names recorded by the service.
const (
	EventLoginSuccess      = "auth.login.success"
	EventLoginFailure      = "auth.login.failure"
	EventRejectMissing     = "auth.reject.missing_credential"
	EventRejectInvalid     = "auth.reject.invalid_credential"
	EventRejectExpired     = "auth.reject.expired"
	EventRejectUnknownUser = "auth.reject.unknown_user"
	EventRecordCreated     = "records.created"
	EventRecordDeleted     = "records.deleted"
	EventAudioUploaded     = "records.audio.uploaded"
	EventAudioUploadFailed = "records.audio.upload_failed"
	EventAudioDeleteFailed = "records.audio.delete_failed"
)

// Recorder increments counters for service events.
type Recorder interface {
	Increment(event string)
}

// Nop discards every event.
type Nop struct{}

// Increment does nothing.
func (Nop) Increment(string) {}

// CounterMetrics implements Recorder with in-memory counts.
type CounterMetrics struct {
	mutex  sync.Mutex
	counts map[string]int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counts: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterMetrics) Increment(event string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.counts[event]++
}

// Count returns the current value for the given event.
func (recorder *CounterMetrics) Count(event string) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.counts[event]
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	clone := make(map[string]int64, len(recorder.counts))
	for key, value := range recorder.counts {
		clone[key] = value
	}
	return clone
}

// PrometheusMetrics exports events as humanrecord_events_total{event}.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

// NewPrometheusMetrics registers the event counter on a private registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &PrometheusMetrics{
		registry: registry,
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "humanrecord_events_total",
				Help: "Total number of service events by name",
			},
			[]string{"event"},
		),
	}
}

// Increment increases the counter for the given event.
func (recorder *PrometheusMetrics) Increment(event string) {
	recorder.events.WithLabelValues(event).Inc()
}

// Registry exposes the underlying registry.
func (recorder *PrometheusMetrics) Registry() *prometheus.Registry {
	return recorder.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (recorder *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(recorder.registry, promhttp.HandlerOpts{})
}
