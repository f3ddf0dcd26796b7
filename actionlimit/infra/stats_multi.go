package infra

import (
	"context"
	"errors"

	"action-limiter/actionlimit/domain"
)

// MultiStatsStore repassa cada evento para todos os stores; erros são agregados.
type MultiStatsStore []domain.StatsStore

// FanOutStats devolve nil sem stores, o próprio store com um só, ou um
// MultiStatsStore.
func FanOutStats(stores ...domain.StatsStore) domain.StatsStore {
	switch len(stores) {
	case 0:
		return nil
	case 1:
		return stores[0]
	default:
		return MultiStatsStore(stores)
	}
}

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
