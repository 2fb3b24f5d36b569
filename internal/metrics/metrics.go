package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "nexus"
	subsystem = "doctranslate"
)

var (
	ocrRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ocr_requests_total",
			Help:      "The total number of OCR recognitions, by engine and outcome.",
		},
		[]string{"engine", "status"},
	)
	ocrPollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ocr_poll_attempts",
			Help:      "Polls needed before an OCR job reached a terminal status.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 60},
		},
	)
	translationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "translation_requests_total",
			Help:      "The total number of translation service calls, by provider and outcome.",
		},
		[]string{"provider", "status"},
	)
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "translation_cache_hits_total",
			Help:      "Translation cache hits, by tier.",
		},
		[]string{"tier"},
	)
	cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "translation_cache_misses_total",
			Help:      "Translation cache misses.",
		},
	)
	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pages_processed_total",
			Help:      "Pages processed, by terminal state.",
		},
		[]string{"state"},
	)
	pageDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "page_duration_seconds",
			Help:      "Time to OCR, translate and render one page.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)
	jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs_total",
			Help:      "Translation jobs, by outcome.",
		},
		[]string{"status"},
	)
	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_duration_seconds",
			Help:      "End-to-end translation job time.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(ocrRequests)
	prometheus.MustRegister(ocrPollAttempts)
	prometheus.MustRegister(translationRequests)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(pagesProcessed)
	prometheus.MustRegister(pageDuration)
	prometheus.MustRegister(jobs)
	prometheus.MustRegister(jobDuration)
}

// RecordOCRRequest counts one recognition call.
func RecordOCRRequest(engine, status string) {
	ocrRequests.WithLabelValues(engine, status).Inc()
}

// RecordOCRPolls records how many polls an OCR job took.
func RecordOCRPolls(attempts int) {
	ocrPollAttempts.Observe(float64(attempts))
}

// RecordTranslationRequest counts one translation service call.
func RecordTranslationRequest(provider, status string) {
	translationRequests.WithLabelValues(provider, status).Inc()
}

// RecordCacheHit increments the cache hit counter
func RecordCacheHit(tier string) {
	cacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss increments the cache miss counter
func RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordPage records a page reaching a terminal state.
func RecordPage(state string, seconds float64) {
	pagesProcessed.WithLabelValues(state).Inc()
	pageDuration.Observe(seconds)
}

// RecordJob records a finished translation job.
func RecordJob(status string, seconds float64) {
	jobs.WithLabelValues(status).Inc()
	jobDuration.Observe(seconds)
}
