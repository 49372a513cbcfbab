package metrics

import (
	"time"

	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/joripage/transfer-orders/pkg/txn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics holds the client-side metrics of the order lifecycle. It
// satisfies the observer interfaces of the guard, coordinator and store.
type ClientMetrics struct {
	// Network guard
	GuardChecksTotal    *prometheus.CounterVec
	SwitchRequestsTotal *prometheus.CounterVec

	// Submissions
	SubmissionsTotal   *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec

	// Store
	RefreshesTotal     *prometheus.CounterVec
	RefreshDuration    prometheus.Histogram
	DetailFetchesTotal *prometheus.CounterVec
}

// NewClientMetrics registers the metrics on reg.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	factory := promauto.With(reg)
	return &ClientMetrics{
		GuardChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "network_guard_checks_total",
				Help: "Network checks by outcome",
			},
			[]string{"result"},
		),

		SwitchRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "network_switch_requests_total",
				Help: "Network switch requests sent to the wallet",
			},
			[]string{"chain_added"},
		),

		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tx_submissions_total",
				Help: "Finished submissions by action and outcome",
			},
			[]string{"action", "result"},
		),

		SubmissionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tx_submission_duration_seconds",
				Help:    "Time from network check to refreshed state",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s, 1s, 2s...
			},
			[]string{"action"},
		),

		RefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_refreshes_total",
				Help: "Store refreshes by outcome",
			},
			[]string{"result"},
		),

		RefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "store_refresh_duration_seconds",
				Help:    "Duration of the parallel refresh reads",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),

		DetailFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_detail_fetches_total",
				Help: "Order detail fetches by outcome",
			},
			[]string{"result"},
		),
	}
}

func (m *ClientMetrics) GuardChecked(ok bool) {
	m.GuardChecksTotal.WithLabelValues(boolLabel(ok, "on_target", "mismatch")).Inc()
}

func (m *ClientMetrics) SwitchRequested(added bool) {
	m.SwitchRequestsTotal.WithLabelValues(boolLabel(added, "true", "false")).Inc()
}

func (m *ClientMetrics) SubmissionFinished(action model.Action, stage txn.Stage, elapsed time.Duration, err error) {
	result := "confirmed"
	if err != nil {
		result = "failed_" + string(stage)
	}
	m.SubmissionsTotal.WithLabelValues(string(action), result).Inc()
	if err == nil {
		m.SubmissionDuration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
	}
}

func (m *ClientMetrics) RefreshFinished(elapsed time.Duration, err error) {
	m.RefreshesTotal.WithLabelValues(errLabel(err)).Inc()
	if err == nil {
		m.RefreshDuration.Observe(elapsed.Seconds())
	}
}

func (m *ClientMetrics) DetailFetched(err error) {
	m.DetailFetchesTotal.WithLabelValues(errLabel(err)).Inc()
}

func errLabel(err error) string {
	return boolLabel(err == nil, "ok", "error")
}

func boolLabel(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
