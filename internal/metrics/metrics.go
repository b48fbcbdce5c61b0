// Package metrics exposes Prometheus counters for the login flow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks login starts, callback outcomes and account changes.
type Metrics struct {
	OAuthStarts            prometheus.Counter
	OAuthCallbacks         *prometheus.CounterVec
	UsersCreated           prometheus.Counter
	UsersLinked            prometheus.Counter
	IdentityLookupDuration prometheus.Histogram
	TagFeedFetches         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every metric on reg. A nil reg uses a fresh registry,
// which keeps tests independent of the global default.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		OAuthStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "release_watch_oauth_starts_total",
			Help: "Total number of OAuth logins started",
		}),
		OAuthCallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "release_watch_oauth_callbacks_total",
			Help: "OAuth callbacks by outcome",
		}, []string{"outcome"}),
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "release_watch_users_created_total",
			Help: "Total number of accounts created on login",
		}),
		UsersLinked: factory.NewCounter(prometheus.CounterOpts{
			Name: "release_watch_users_linked_total",
			Help: "Total number of existing accounts updated with a GitHub identity",
		}),
		IdentityLookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "release_watch_identity_lookup_duration_seconds",
			Help:    "Duration of the concurrent identity and email lookups",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		TagFeedFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "release_watch_tag_feed_fetches_total",
			Help: "Tag feed lookups by result",
		}, []string{"result"}),
		gatherer: reg,
	}
}

// IncrementStart records a login start.
func (m *Metrics) IncrementStart() {
	m.OAuthStarts.Inc()
}

// IncrementCallback records a callback outcome.
func (m *Metrics) IncrementCallback(outcome string) {
	m.OAuthCallbacks.WithLabelValues(outcome).Inc()
}

// IncrementCreated records a new account.
func (m *Metrics) IncrementCreated() {
	m.UsersCreated.Inc()
}

// IncrementLinked records an account updated with a GitHub identity.
func (m *Metrics) IncrementLinked() {
	m.UsersLinked.Inc()
}

// ObserveIdentityLookup records the lookup duration.
// Call with time.Now() at the start of the lookup.
func (m *Metrics) ObserveIdentityLookup(start time.Time) {
	m.IdentityLookupDuration.Observe(time.Since(start).Seconds())
}

// IncrementTagFetch records a tag feed lookup: "hit", "fetched" or "error".
func (m *Metrics) IncrementTagFetch(result string) {
	m.TagFeedFetches.WithLabelValues(result).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
