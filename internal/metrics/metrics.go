// Package metrics provides Prometheus metrics for the assistant.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	portalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcgis_portal_requests_total",
			Help: "Total REST requests sent to portals",
		},
		[]string{"operation", "result"},
	)

	portalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arcgis_portal_request_duration_seconds",
			Help:    "Portal REST request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	searchPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcgis_search_pages_total",
			Help: "Search pages fetched during paginated listings",
		},
		[]string{"result"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcgis_auth_attempts_total",
			Help: "Portal authentication attempts",
		},
		[]string{"result"},
	)

	itemSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcgis_item_saves_total",
			Help: "Item save outcomes (pushed, noop, declined, invalid, error)",
		},
		[]string{"result"},
	)

	treeResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcgis_tree_resolutions_total",
			Help: "Children resolutions by node kind",
		},
		[]string{"kind"},
	)
)

// RecordPortalRequest records one REST call and its duration.
func RecordPortalRequest(operation string, err error, start time.Time) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	portalRequestsTotal.WithLabelValues(operation, result).Inc()
	portalRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordSearchPage records one page fetch inside a pagination burst.
func RecordSearchPage(ok bool) {
	if ok {
		searchPagesTotal.WithLabelValues("ok").Inc()
	} else {
		searchPagesTotal.WithLabelValues("failed").Inc()
	}
}

// RecordAuthAttempt records an authentication outcome.
func RecordAuthAttempt(ok bool) {
	if ok {
		authAttemptsTotal.WithLabelValues("success").Inc()
	} else {
		authAttemptsTotal.WithLabelValues("failure").Inc()
	}
}

// RecordSave records the outcome of a save pipeline run.
func RecordSave(result string) {
	itemSavesTotal.WithLabelValues(result).Inc()
}

// RecordTreeResolution records a ChildrenOf call.
func RecordTreeResolution(kind string) {
	treeResolutionsTotal.WithLabelValues(kind).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics listener on addr (blocking).
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
