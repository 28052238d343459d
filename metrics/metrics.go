package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout counts checkout outcomes and tracks commit latency.
type Checkout struct {
	Outcomes   *prometheus.CounterVec
	DurationMS prometheus.Histogram
}

func NewCheckout(reg prometheus.Registerer) *Checkout {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "checkout",
		Name:      "outcomes_total",
		Help:      "Checkout invocations by terminal outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marketplace",
		Subsystem: "checkout",
		Name:      "duration_ms",
		Help:      "Checkout duration in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	reg.MustRegister(outcomes, duration)
	return &Checkout{Outcomes: outcomes, DurationMS: duration}
}

// Observe records one checkout invocation.
func (c *Checkout) Observe(outcome string, ms float64) {
	if c == nil {
		return
	}
	c.Outcomes.WithLabelValues(outcome).Inc()
	c.DurationMS.Observe(ms)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
