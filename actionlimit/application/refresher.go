package application

import (
	"context"
	"time"

	"action-limiter/actionlimit/domain"
)

// Refresher re-poda periodicamente as categorias já usadas no processo, para
// que "remaining" e "reset" exibidos continuem frescos sem polling do cliente.
//
// Não é necessário para a corretude: Inspect e RecordAction sempre podam.
type Refresher struct {
	Service *Service
	Every   time.Duration
	// OnRefresh, se definido, recebe os estados recalculados a cada tick.
	OnRefresh func([]domain.State)
}

// RefreshOnce inspeciona cada categoria ativa e devolve os estados.
func (r Refresher) RefreshOnce(ctx context.Context) []domain.State {
	if r.Service == nil {
		return nil
	}
	active := r.Service.Active()
	out := make([]domain.State, 0, len(active))
	for _, c := range active {
		out = append(out, r.Service.Inspect(ctx, c))
	}
	return out
}

// Start inicia uma goroutine que roda RefreshOnce a cada Every.
// Pare cancelando o contexto.
func (r Refresher) Start(ctx context.Context) {
	if r.Service == nil || r.Every <= 0 {
		return
	}

	t := time.NewTicker(r.Every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				states := r.RefreshOnce(ctx)
				if r.OnRefresh != nil {
					r.OnRefresh(states)
				}
			}
		}
	}()
}
