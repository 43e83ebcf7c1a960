package game

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricGamesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizpair",
		Subsystem: "game",
		Name:      "started_total",
		Help:      "Number of games that reached the Active state.",
	})

	metricGamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizpair",
		Subsystem: "game",
		Name:      "finished_total",
		Help:      "Number of finalized games by reason.",
	}, []string{"reason"})

	metricAnswers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizpair",
		Subsystem: "game",
		Name:      "answers_total",
		Help:      "Number of scored answer submissions by correctness.",
	}, []string{"correct"})
)
