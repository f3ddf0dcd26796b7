// Package actionlimit expõe o limitador de ações por categoria para outros
// processos do device via HTTP (net/http + chi).
//
// Visão geral (camadas):
//
//   - domain: política, histórico e estado derivado (sem net/http)
//   - application: casos de uso (Inspect, RecordAction, Reset) sem net/http
//   - infra: stores concretos (SQLite, Redis, memória) e estatísticas
//   - actionlimit (este pacote): rotas HTTP, middleware por categoria e
//     formatação do tempo até o reset
//
// Contrato com quem consome:
//
//  1. Antes da ação, consulta o estado (GET /v1/limits/{category})
//  2. Se bloqueado, mostra a mensagem com o tempo formatado
//  3. Ao tentar a ação, registra exatamente uma vez (POST .../actions),
//     mesmo que a ação falhe depois: contamos tentativas, não sucessos
package actionlimit
