// Package metrics exposes checkout counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

var (
	checkoutsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_started_total",
		Help:      "Checkouts that passed the project guards.",
	})

	checkoutsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_rejected_total",
		Help:      "Checkouts short-circuited by a project guard.",
	}, []string{"reason"})

	checkoutOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_outcomes_total",
		Help:      "Finished checkouts by payment method and outcome.",
	}, []string{"method", "outcome"})

	activeCheckouts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "checkouts_active",
		Help:      "Checkouts currently held in memory.",
	})

	intentAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_intent_attempts_total",
		Help:      "Payment intent creation attempts by result.",
	}, []string{"result"})

	qrPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "qr_status_polls_total",
		Help:      "QR payment status checks by reported status.",
	}, []string{"status"})
)

func CheckoutStarted() {
	checkoutsStarted.Inc()
}

func CheckoutRejected(reason string) {
	checkoutsRejected.WithLabelValues(reason).Inc()
}

func CheckoutFinished(method, outcome string) {
	if method == "" {
		method = "none"
	}
	checkoutOutcomes.WithLabelValues(method, outcome).Inc()
}

func SetActiveCheckouts(n int) {
	activeCheckouts.Set(float64(n))
}

// IntentAttempt matches intent.Config.OnAttempt.
func IntentAttempt(_ int, err error) {
	if err != nil {
		intentAttempts.WithLabelValues("error").Inc()
		return
	}
	intentAttempts.WithLabelValues("ok").Inc()
}

// QRPoll records one status check; errors are counted under "error".
func QRPoll(status string, err error) {
	if err != nil {
		status = "error"
	}
	if status == "" {
		status = "unknown"
	}
	qrPolls.WithLabelValues(status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
