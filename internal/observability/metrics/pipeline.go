// Package metrics provides Prometheus collectors for the publication pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for file processing and
// session publication.
type PipelineMetrics struct {
	filesProcessedTotal *prometheus.CounterVec
	uploadsTotal        *prometheus.CounterVec
	publicationsTotal   *prometheus.CounterVec
	jobRetriesTotal     prometheus.Counter
	extractionDuration  prometheus.Histogram
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		filesProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mousetube_files_processed_total",
				Help: "Number of file processing tasks by outcome",
			},
			[]string{"outcome"},
		),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mousetube_deposition_uploads_total",
				Help: "Number of per-file deposition uploads by outcome",
			},
			[]string{"outcome"},
		),
		publicationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mousetube_session_publications_total",
				Help: "Number of session publication tasks by outcome",
			},
			[]string{"outcome"},
		),
		jobRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mousetube_job_retries_total",
				Help: "Number of background job retry attempts",
			},
		),
		extractionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mousetube_metadata_extraction_duration_seconds",
				Help:    "Duration of audio metadata extraction",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	collectors := []prometheus.Collector{
		m.filesProcessedTotal,
		m.uploadsTotal,
		m.publicationsTotal,
		m.jobRetriesTotal,
		m.extractionDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordFileProcessed counts a finished file processing task.
func (m *PipelineMetrics) RecordFileProcessed(outcome string) {
	m.filesProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordUpload counts a per-file deposition upload.
func (m *PipelineMetrics) RecordUpload(outcome string) {
	m.uploadsTotal.WithLabelValues(outcome).Inc()
}

// RecordPublication counts a finished session publication task.
func (m *PipelineMetrics) RecordPublication(outcome string) {
	m.publicationsTotal.WithLabelValues(outcome).Inc()
}

// RecordJobRetry counts a background retry attempt.
func (m *PipelineMetrics) RecordJobRetry() {
	m.jobRetriesTotal.Inc()
}

// ObserveExtractionDuration records how long a metadata extraction took.
func (m *PipelineMetrics) ObserveExtractionDuration(seconds float64) {
	m.extractionDuration.Observe(seconds)
}
