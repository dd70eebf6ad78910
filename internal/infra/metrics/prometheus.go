package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidlex_jobs_processed_total",
		Help: "Total number of extraction jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidlex_job_processing_duration_seconds",
		Help:    "Duration of the extraction pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidlex_frames_sampled_total",
		Help: "Total number of frames sampled across all jobs",
	})

	FramesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidlex_frames_skipped_total",
		Help: "Total number of frames skipped after a failed OCR call",
	})

	WordsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidlex_words_extracted_total",
		Help: "Total number of unique words produced across all jobs",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidlex_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidlex_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
