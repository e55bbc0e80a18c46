package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ideasGeneratedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillflow_ideas_generated_total",
			Help: "Number of ideas persisted, by source",
		},
		[]string{"source"},
	)
	draftsWrittenCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quillflow_drafts_written_total",
			Help: "Number of drafts persisted",
		},
	)
	linksInsertedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quillflow_internal_links_inserted_total",
			Help: "Number of internal links inserted into drafts",
		},
	)
	enrichmentWarningsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillflow_enrichment_warnings_total",
			Help: "Enrichment stages that failed and were skipped, by stage",
		},
		[]string{"stage"},
	)
	cycleStepFailuresCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillflow_cycle_step_failures_total",
			Help: "Automation steps that failed, by step",
		},
		[]string{"step"},
	)
	postsPublishedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quillflow_posts_published_total",
			Help: "Number of drafts published automatically",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ideasGeneratedCounter,
		draftsWrittenCounter,
		linksInsertedCounter,
		enrichmentWarningsCounter,
		cycleStepFailuresCounter,
		postsPublishedCounter,
	)
}
