package infra

import (
	"context"
	"errors"

	"action-limiter/actionlimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore expõe as decisões como contador com labels
// category/outcome. Categorias sem política viram category="unconfigured"
// para não explodir a cardinalidade com nomes arbitrários.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "actionlimit",
		Name:      "decisions_total",
		Help:      "Rate limit decisions by action category and outcome.",
	}, []string{"category", "outcome"})

	if err := reg.Register(decisions); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		decisions = existing
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	category := string(ev.Category)
	if ev.Unlimited {
		category = "unconfigured"
	}
	s.decisions.WithLabelValues(category, outcome(ev)).Inc()
	return nil
}
