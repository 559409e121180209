package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses around 700ms (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Extended range: covers 60000ms+ (15s - 75s) ---
	20000,  // 20s
	30000,  // 30s
	45000,  // 45s
	60000,  // 60s
	75000,  // 75s
	90000,  // 90s
	120000, // 120s
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "histogram":
		metric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "summary":
		metric = prometheus.NewSummary(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	}
	return metric
}

var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}

var MetricsWebhookEvents = &Metric{
	ID:          "webhookEvents",
	Name:        "webhook_events_total",
	Description: "Provider webhook events partitioned by event name and outcome.",
	Type:        "counter_vec",
	Args:        []string{"event", "outcome"},
}

var MetricsCorrelation = &Metric{
	ID:          "correlation",
	Name:        "correlation_total",
	Description: "Subscription correlation attempts partitioned by the strategy that matched (none on miss).",
	Type:        "counter_vec",
	Args:        []string{"strategy"},
}

var MetricsAmountValidation = &Metric{
	ID:          "amountValidation",
	Name:        "amount_validation_total",
	Description: "Payment amount validations partitioned by suggested action.",
	Type:        "counter_vec",
	Args:        []string{"action"},
}

var MetricsTransition = &Metric{
	ID:          "transition",
	Name:        "transition_total",
	Description: "Subscription transitions partitioned by operation and result reason.",
	Type:        "counter_vec",
	Args:        []string{"operation", "reason"},
}

// BusinessMetrics lists the domain collectors registered next to the HTTP ones.
var BusinessMetrics = []*Metric{
	MetricsBusinessProcess,
	MetricsWebhookEvents,
	MetricsCorrelation,
	MetricsAmountValidation,
	MetricsTransition,
}

// Recorder is the narrow surface services use to report business metrics.
// The zero value and a nil *Recorder are both safe no-ops.
type Recorder struct {
	bpDur       *prometheus.HistogramVec
	webhook     *prometheus.CounterVec
	correlation *prometheus.CounterVec
	amount      *prometheus.CounterVec
	transition  *prometheus.CounterVec
}

// NewRecorder builds the business collectors and registers them with reg.
// A nil reg skips registration, which keeps tests free of global state.
func NewRecorder(reg prometheus.Registerer, subsystem string) (*Recorder, error) {
	r := &Recorder{}
	for _, m := range BusinessMetrics {
		c := NewMetric(m, subsystem)
		if reg != nil {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					return nil, fmt.Errorf("register %s: %w", m.Name, err)
				}
				c = are.ExistingCollector
			}
		}
		switch m {
		case MetricsBusinessProcess:
			r.bpDur = c.(*prometheus.HistogramVec)
		case MetricsWebhookEvents:
			r.webhook = c.(*prometheus.CounterVec)
		case MetricsCorrelation:
			r.correlation = c.(*prometheus.CounterVec)
		case MetricsAmountValidation:
			r.amount = c.(*prometheus.CounterVec)
		case MetricsTransition:
			r.transition = c.(*prometheus.CounterVec)
		}
	}
	return r, nil
}

func (r *Recorder) ObserveProcess(typ, subtype string, start time.Time) {
	if r == nil || r.bpDur == nil {
		return
	}
	r.bpDur.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

func (r *Recorder) WebhookEvent(event, outcome string) {
	if r == nil || r.webhook == nil {
		return
	}
	r.webhook.WithLabelValues(event, outcome).Inc()
}

func (r *Recorder) Correlated(strategy string) {
	if r == nil || r.correlation == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	r.correlation.WithLabelValues(strategy).Inc()
}

func (r *Recorder) AmountValidated(action string) {
	if r == nil || r.amount == nil {
		return
	}
	r.amount.WithLabelValues(action).Inc()
}

func (r *Recorder) Transition(operation, reason string) {
	if r == nil || r.transition == nil {
		return
	}
	if reason == "" {
		reason = "ok"
	}
	r.transition.WithLabelValues(operation, reason).Inc()
}

func newDefaultRecorder() (*Recorder, error) {
	return NewRecorder(prometheus.DefaultRegisterer, "billing")
}

var Module = fx.Options(
	fx.Provide(newDefaultRecorder),
)

const (
	RefererKey = "X-Referer"
)
