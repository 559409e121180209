package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg, "test")
	require.NoError(t, err)

	r.WebhookEvent("charge.success", "handled")
	r.WebhookEvent("charge.success", "handled")
	r.Correlated("")
	r.AmountValidated("review")
	r.Transition("activate", "")
	r.ObserveProcess("webhook", "charge.success", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(r.webhook.WithLabelValues("charge.success", "handled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.correlation.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.amount.WithLabelValues("review")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transition.WithLabelValues("activate", "ok")))
}

func TestRecorder_ReRegisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r1, err := NewRecorder(reg, "test")
	require.NoError(t, err)
	r2, err := NewRecorder(reg, "test")
	require.NoError(t, err)

	r1.AmountValidated("accept")
	r2.AmountValidated("accept")
	assert.Equal(t, 2.0, testutil.ToFloat64(r2.amount.WithLabelValues("accept")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.WebhookEvent("x", "y")
		r.Correlated("s")
		r.AmountValidated("a")
		r.Transition("o", "r")
		r.ObserveProcess("t", "s", time.Now())
	})
}
