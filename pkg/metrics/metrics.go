// Package metrics exposes Prometheus metrics for the kiosk: verification
// sessions, flash cycles, recognitions, enrollments and frame timing.
package metrics

import (
	"image"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MrCodeEU/lpad/pkg/kiosk"
	"github.com/MrCodeEU/lpad/pkg/liveness"
)

// Recognition results
const (
	ResultAccepted = "accepted"
	ResultUnknown  = "unknown"
	ResultError    = "error"
)

// Metrics holds all Prometheus metrics for the kiosk
type Metrics struct {
	registry *prometheus.Registry

	VerificationsStarted prometheus.Counter
	FlashCycles          *prometheus.CounterVec
	AccessDecisions      *prometheus.CounterVec
	Recognitions         *prometheus.CounterVec
	FrameDuration        prometheus.Histogram
	Enrollments          *prometheus.CounterVec
}

// New creates the metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		VerificationsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lpad_verifications_started_total",
				Help: "Total number of liveness verification sessions started",
			},
		),

		FlashCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lpad_flash_cycles_total",
				Help: "Total number of evaluated flash cycles",
			},
			[]string{"result", "reason"}, // result: pass, fail
		),

		AccessDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lpad_access_decisions_total",
				Help: "Total number of final access decisions",
			},
			[]string{"outcome"}, // outcome: granted, denied
		),

		Recognitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lpad_recognitions_total",
				Help: "Total number of recognition attempts while scanning",
			},
			[]string{"result"}, // result: accepted, unknown, error
		),

		FrameDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lpad_frame_processing_seconds",
				Help:    "Time spent detecting and processing one frame",
				Buckets: []float64{0.005, 0.01, 0.02, 0.033, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),

		Enrollments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lpad_enrollments_total",
				Help: "Total number of completed enrollments",
			},
			[]string{"result"}, // result: trained, failed
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records a liveness machine event.
func (m *Metrics) Observe(e liveness.Event) {
	switch e.Kind {
	case liveness.EventStarted:
		m.VerificationsStarted.Inc()
	case liveness.EventRetry:
		m.FlashCycles.WithLabelValues("fail", string(e.Verdict.Reason)).Inc()
	case liveness.EventGranted:
		m.FlashCycles.WithLabelValues("pass", "").Inc()
		m.AccessDecisions.WithLabelValues("granted").Inc()
	case liveness.EventDenied:
		m.FlashCycles.WithLabelValues("fail", string(e.Verdict.Reason)).Inc()
		m.AccessDecisions.WithLabelValues("denied").Inc()
	}
}

// ObserveFrame records the processing time of one frame.
func (m *Metrics) ObserveFrame(d time.Duration) {
	m.FrameDuration.Observe(d.Seconds())
}

// ObserveEnrollment records the result of training after an enrollment.
func (m *Metrics) ObserveEnrollment(err error) {
	if err != nil {
		m.Enrollments.WithLabelValues("failed").Inc()
		return
	}
	m.Enrollments.WithLabelValues("trained").Inc()
}

// RecordRecognition classifies one recognizer result.
func (m *Metrics) RecordRecognition(identity string, score float64) {
	switch {
	case identity == kiosk.ErrorIdentity:
		m.Recognitions.WithLabelValues(ResultError).Inc()
	case identity == kiosk.UnknownIdentity || identity == "" || score <= kiosk.AcceptScore:
		m.Recognitions.WithLabelValues(ResultUnknown).Inc()
	default:
		m.Recognitions.WithLabelValues(ResultAccepted).Inc()
	}
}

// InstrumentRecognizer counts every recognition made through r.
func (m *Metrics) InstrumentRecognizer(r kiosk.Recognizer) kiosk.Recognizer {
	return &recognizer{next: r, metrics: m}
}

type recognizer struct {
	next    kiosk.Recognizer
	metrics *Metrics
}

func (r *recognizer) Recognize(frame image.Image, box image.Rectangle) (string, float64) {
	identity, score := r.next.Recognize(frame, box)
	r.metrics.RecordRecognition(identity, score)
	return identity, score
}

func (r *recognizer) Trained() bool {
	return r.next.Trained()
}
