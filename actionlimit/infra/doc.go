// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - SQLiteStore: histórico persistido num arquivo local (padrão do device)
//   - RedisStore: histórico compartilhado, com compare-and-swap via WATCH
//   - MemoryStore: histórico em memória (testes, modo efêmero)
//   - RedisStatsStore / PrometheusStatsStore / MemoryStatsStore: estatísticas de decisões
package infra
