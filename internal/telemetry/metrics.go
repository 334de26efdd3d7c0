package telemetry

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/event"
)

const namespace = "quizduel"

type Subscriber interface {
	Subscribe(event, subscriber string, h event.Handler)
}

type MetricsConfig struct {
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	EventBus   Subscriber
	Stats      func() domain.Stats
}

// Metrics exports the engine gauges and counts duel lifecycle events.
type Metrics struct {
	matched   prometheus.Counter
	ended     *prometheus.CounterVec
	abandoned prometheus.Counter
	answers   *prometheus.CounterVec
}

func NewMetrics(c MetricsConfig) (*Metrics, error) {
	if c.Registerer == nil {
		c.Registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		matched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duels_matched_total",
			Help:      "Number of duels formed by the lobby.",
		}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duels_ended_total",
			Help:      "Number of duels that ran until the end, by result.",
		}, []string{"result"}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duels_abandoned_total",
			Help:      "Number of duels ended by a player leaving.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Number of submitted answers, by correctness.",
		}, []string{"correct"}),
	}

	collectors := []prometheus.Collector{m.matched, m.ended, m.abandoned, m.answers}
	if c.Stats != nil {
		collectors = append(collectors,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "waiting_participants",
				Help:      "Number of participants waiting in the lobby.",
			}, func() float64 { return float64(c.Stats().WaitingCount) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of live duels.",
			}, func() float64 { return float64(c.Stats().ActiveSessionCount) }),
		)
	}

	for _, col := range collectors {
		if err := c.Registerer.Register(col); err != nil {
			return nil, err
		}
	}

	c.EventBus.Subscribe(domain.EventNameDuelMatched, "metrics", func(context.Context, event.Event) error {
		m.matched.Inc()
		return nil
	})
	c.EventBus.Subscribe(domain.EventNameDuelEnded, "metrics", func(_ context.Context, e event.Event) error {
		result := "win"
		if e.(domain.EventDuelEnded).Outcome.IsDraw {
			result = "draw"
		}
		m.ended.WithLabelValues(result).Inc()
		return nil
	})
	c.EventBus.Subscribe(domain.EventNameDuelAbandoned, "metrics", func(context.Context, event.Event) error {
		m.abandoned.Inc()
		return nil
	})
	c.EventBus.Subscribe(domain.EventNameDuelAnswered, "metrics", func(_ context.Context, e event.Event) error {
		m.answers.WithLabelValues(strconv.FormatBool(e.(domain.EventDuelAnswered).Correct)).Inc()
		return nil
	})

	return m, nil
}
