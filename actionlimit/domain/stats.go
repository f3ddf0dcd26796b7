package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do limitador para uma categoria.
//
// Observação: Category vem de uma tabela fixa, então a cardinalidade é baixa.
// Categorias desconhecidas também geram evento (Unlimited=true).
type StatsEvent struct {
	Category  Category
	Allowed   bool
	Unlimited bool

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de decisões.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O serviço trata erro como best-effort (nunca afeta a decisão).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
