package httphandler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ericfisherdev/credpool/internal/application"
	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// Metrics holds the Prometheus collectors for the HTTP surface.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AdminOperations *prometheus.CounterVec
}

// NewMetrics registers the HTTP collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"route", "method"},
		),
		AdminOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credpool_admin_operations_total",
				Help: "Total number of administrative operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
}

// RegisterPoolGauges exposes available and disabled credential counts read
// from the live pool at scrape time.
func RegisterPoolGauges(reg prometheus.Registerer, admin *application.AdminService) {
	gauge := func(state string, value func(application.StatusView) int) prometheus.GaugeFunc {
		return promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "credpool_credentials",
				Help:        "Number of pooled credentials by state",
				ConstLabels: prometheus.Labels{"state": state},
			},
			func() float64 { return float64(value(admin.Status(1, 1))) },
		)
	}

	gauge("available", func(v application.StatusView) int { return v.Available })
	gauge("disabled", func(v application.StatusView) int { return v.Credentials.Total - v.Available })
}

// observeOperation counts one admin operation. Failed operations are
// labelled with their error kind.
func (m *Metrics) observeOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if kind := model.KindOf(err); kind != "" {
			outcome = string(kind)
		}
	}
	m.AdminOperations.WithLabelValues(operation, outcome).Inc()
}
