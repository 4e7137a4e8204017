package metrics

import (
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrCodeEU/lpad/pkg/kiosk"
	"github.com/MrCodeEU/lpad/pkg/liveness"
)

type fixedRecognizer struct {
	identity string
	score    float64
}

func (f fixedRecognizer) Recognize(image.Image, image.Rectangle) (string, float64) {
	return f.identity, f.score
}

func (f fixedRecognizer) Trained() bool { return true }

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.VerificationsStarted.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.VerificationsStarted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.VerificationsStarted))
}

func TestObserve(t *testing.T) {
	m := New()

	m.Observe(liveness.Event{Kind: liveness.EventStarted})
	m.Observe(liveness.Event{Kind: liveness.EventRetry, Verdict: liveness.Verdict{Reason: liveness.ReasonFlatFace}})
	m.Observe(liveness.Event{Kind: liveness.EventRetry, Verdict: liveness.Verdict{Reason: liveness.ReasonGlare}})
	m.Observe(liveness.Event{Kind: liveness.EventDenied, Verdict: liveness.Verdict{Reason: liveness.ReasonFlatFace}})
	m.Observe(liveness.Event{Kind: liveness.EventStarted})
	m.Observe(liveness.Event{Kind: liveness.EventGranted, Verdict: liveness.Verdict{Passed: true}})
	m.Observe(liveness.Event{Kind: liveness.EventStopped})
	m.Observe(liveness.Event{Kind: liveness.EventExpired})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VerificationsStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlashCycles.WithLabelValues("fail", "Flat Face")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlashCycles.WithLabelValues("fail", "Glare Detected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlashCycles.WithLabelValues("pass", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessDecisions.WithLabelValues("granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessDecisions.WithLabelValues("denied")))
}

func TestObserveEnrollment(t *testing.T) {
	m := New()

	m.ObserveEnrollment(nil)
	m.ObserveEnrollment(nil)
	m.ObserveEnrollment(errors.New("no training data"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Enrollments.WithLabelValues("trained")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Enrollments.WithLabelValues("failed")))
}

func TestObserveFrame(t *testing.T) {
	m := New()
	m.ObserveFrame(500 * time.Millisecond)
	m.ObserveFrame(2 * time.Second)

	expected := `
# HELP lpad_frame_processing_seconds Time spent detecting and processing one frame
# TYPE lpad_frame_processing_seconds histogram
lpad_frame_processing_seconds_bucket{le="0.005"} 0
lpad_frame_processing_seconds_bucket{le="0.01"} 0
lpad_frame_processing_seconds_bucket{le="0.02"} 0
lpad_frame_processing_seconds_bucket{le="0.033"} 0
lpad_frame_processing_seconds_bucket{le="0.05"} 0
lpad_frame_processing_seconds_bucket{le="0.1"} 0
lpad_frame_processing_seconds_bucket{le="0.25"} 0
lpad_frame_processing_seconds_bucket{le="0.5"} 1
lpad_frame_processing_seconds_bucket{le="1"} 1
lpad_frame_processing_seconds_bucket{le="+Inf"} 2
lpad_frame_processing_seconds_sum 2.5
lpad_frame_processing_seconds_count 2
`
	require.NoError(t, testutil.CollectAndCompare(m.FrameDuration, strings.NewReader(expected)))
}

func TestInstrumentRecognizer(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		score    float64
		result   string
	}{
		{"accepted", "alice", 80, ResultAccepted},
		{"unknown", kiosk.UnknownIdentity, 0, ResultUnknown},
		{"score at threshold", "alice", kiosk.AcceptScore, ResultUnknown},
		{"engine error", kiosk.ErrorIdentity, 0, ResultError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			r := m.InstrumentRecognizer(fixedRecognizer{identity: tt.identity, score: tt.score})

			identity, score := r.Recognize(nil, image.Rectangle{})
			assert.Equal(t, tt.identity, identity)
			assert.Equal(t, tt.score, score)
			assert.True(t, r.Trained())
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Recognitions.WithLabelValues(tt.result)))
		})
	}
}

func TestRegistry_Gathers(t *testing.T) {
	m := New()
	m.VerificationsStarted.Inc()
	m.AccessDecisions.WithLabelValues("granted").Inc()

	n, err := testutil.GatherAndCount(m.Registry(), "lpad_verifications_started_total", "lpad_access_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
