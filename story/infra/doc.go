// Package infra contém implementações concretas dos contratos do pacote domain.
//
// Exemplos:
//   - SQLiteLedger / PostgresLedger: ledger append-only das frases
//   - TokenResolver: identidade do visitante via token aleatório
//   - ThrottleStore: token bucket por chave usando golang.org/x/time/rate
//   - MemoryStatsStore / RedisStatsStore: estatísticas de submissão
//   - ChanPool: semáforo simples para limite de concorrência
package infra
