package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry                *prometheus.Registry
	registrationsTotal      *prometheus.CounterVec
	availabilityChecksTotal *prometheus.CounterVec
	subnameLookupsTotal     *prometheus.CounterVec
	verificationChecks      *prometheus.CounterVec
	upstreamRetriesTotal    *prometheus.CounterVec
}

func newMetricsRegistry() *metricsRegistry {
	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "letspay_registrations_total",
		Help: "Total number of subname registration requests",
	}, []string{"status"})

	availability := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "letspay_availability_checks_total",
		Help: "Total number of label availability checks",
	}, []string{"status"})

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "letspay_subname_lookups_total",
		Help: "Total number of owner subname lookups",
	}, []string{"status"})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "letspay_verification_checks_total",
		Help: "Total number of verification status checks",
	}, []string{"status"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "letspay_upstream_retry_attempts_total",
		Help: "Retry attempts against the namespace upstream",
	}, []string{"result"})

	r := prometheus.NewRegistry()
	r.MustRegister(registrations, availability, lookups, verifications, retries)

	return &metricsRegistry{
		registry:                r,
		registrationsTotal:      registrations,
		availabilityChecksTotal: availability,
		subnameLookupsTotal:     lookups,
		verificationChecks:      verifications,
		upstreamRetriesTotal:    retries,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incRegistration(status string) {
	m.registrationsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incAvailability(status string) {
	m.availabilityChecksTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incLookup(status string) {
	m.subnameLookupsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incVerification(status string) {
	m.verificationChecks.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incRetry(result string) {
	m.upstreamRetriesTotal.WithLabelValues(result).Inc()
}
