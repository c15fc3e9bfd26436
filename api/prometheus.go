package api

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"breakdown-api/domain"
)

var (
	taskCreations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "breakdown",
		Name:      "task_creations_total",
		Help:      "Task creation attempts by outcome.",
	}, []string{"outcome"})

	breakdownTiers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "breakdown",
		Name:      "interpreter_tier_total",
		Help:      "Successful breakdowns by the interpreter tier that produced them.",
	}, []string{"tier"})

	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "breakdown",
		Name:      "completion_duration_seconds",
		Help:      "Latency of completion service calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"result"})
)

const (
	outcomeCreated     = "created"
	outcomeInvalid     = "invalid_input"
	outcomeUnavailable = "completion_unavailable"
	outcomeParse       = "parse_failed"
	outcomePersistence = "persistence_failed"
	outcomeDuplicate   = "duplicate"
)

func creationOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeCreated
	case errors.Is(err, domain.ErrInvalidInput):
		return outcomeInvalid
	case errors.Is(err, domain.ErrCompletionUnavailable):
		return outcomeUnavailable
	case errors.Is(err, domain.ErrBreakdownParse):
		return outcomeParse
	default:
		return outcomePersistence
	}
}

func observeCreation(result domain.CreateResult, err error) {
	taskCreations.WithLabelValues(creationOutcome(err)).Inc()
	if err == nil {
		breakdownTiers.WithLabelValues(string(result.Tier)).Inc()
	}
}

// InstrumentCompleter records the latency of every completion call.
func InstrumentCompleter(c domain.Completer) domain.Completer {
	return timedCompleter{next: c}
}

type timedCompleter struct {
	next domain.Completer
}

func (t timedCompleter) RequestBreakdown(ctx context.Context, task string) (string, error) {
	start := time.Now()
	raw, err := t.next.RequestBreakdown(ctx, task)
	result := "ok"
	if err != nil {
		result = "error"
	}
	completionDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return raw, err
}
