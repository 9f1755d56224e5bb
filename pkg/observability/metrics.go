package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FilesTotal counts processed files by outcome and the stage they ended in
	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statement_import_files_total",
			Help: "Total number of uploaded statement files processed",
		},
		[]string{"outcome", "stage"},
	)

	// DraftsTotal counts extracted drafts per statement format
	DraftsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statement_import_drafts_total",
			Help: "Total number of transaction drafts extracted",
		},
		[]string{"format"},
	)

	// UncategorizedTotal counts drafts no history candidate matched
	UncategorizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statement_import_uncategorized_total",
			Help: "Total number of drafts left without a category",
		},
	)

	// ProcessDuration tracks batch processing duration
	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statement_import_process_duration_seconds",
			Help:    "Batch import processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// MaterializedCategoriesTotal counts categories created on confirm, by level
	MaterializedCategoriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statement_import_materialized_categories_total",
			Help: "Total number of categories created while confirming imports",
		},
		[]string{"level"},
	)
)

// ObserveProcess starts a ProcessDuration timer; call the result when done.
func ObserveProcess() func() {
	start := time.Now()
	return func() {
		ProcessDuration.Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
