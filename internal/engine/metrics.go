package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheMissTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "dynamic_cache_miss_total",
			Help:      "Times the batch driver halved its chunk size after a soft decode failure",
		},
	)

	promptTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "prompt_tokens_total",
			Help:      "Total prompt tokens decoded",
		},
	)

	generatedTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "generated_tokens_total",
			Help:      "Total tokens generated across all slots",
		},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "generation_duration_seconds",
			Help:      "Duration of top-level generation calls",
			Buckets:   prometheus.DefBuckets,
		},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "generations_total",
			Help:      "Top-level generation calls by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(cacheMissTotal)
	prometheus.MustRegister(promptTokensTotal)
	prometheus.MustRegister(generatedTokensTotal)
	prometheus.MustRegister(generationDuration)
	prometheus.MustRegister(generationsTotal)
}
