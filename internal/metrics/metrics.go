package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PromptBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stageprompt_builds_total",
		Help: "Prompts assembled, by stage",
	}, []string{"stage"})

	PromptChars = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stageprompt_prompt_chars",
		Help:    "Assembled prompt length in characters",
		Buckets: []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
	})

	UnknownSections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stageprompt_unknown_sections_total",
		Help: "Section keys requested but missing from the catalog",
	})

	InstructionPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stageprompt_instruction_pushes_total",
		Help: "System instruction pushes into LLM clients, by capability and result",
	}, []string{"capability", "result"})

	ChatDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stageprompt_chat_duration_seconds",
		Help:    "Provider chat call latency",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0},
	}, []string{"provider"})

	ChatErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stageprompt_chat_errors_total",
		Help: "Failed provider chat calls",
	}, []string{"provider"})

	CatalogReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stageprompt_catalog_reloads_total",
		Help: "Section catalog reload attempts, by result",
	}, []string{"result"})
)

// ObserveBuild records one assembled prompt. Compact builds are labelled
// "compact"; an empty stage is labelled "none".
func ObserveBuild(stage string, compact bool, chars int) {
	switch {
	case compact:
		stage = "compact"
	case stage == "":
		stage = "none"
	}
	PromptBuilds.WithLabelValues(stage).Inc()
	PromptChars.Observe(float64(chars))
}

// ObserveChat records one provider call.
func ObserveChat(provider string, started time.Time, err error) {
	ChatDuration.WithLabelValues(provider).Observe(time.Since(started).Seconds())
	if err != nil {
		ChatErrors.WithLabelValues(provider).Inc()
	}
}
