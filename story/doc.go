// Package story expõe a história colaborativa sobre HTTP (net/http).
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (sem net/http)
//   - application: casos de uso (frase atual, submissão com limite diário,
//     throttle, concorrência)
//   - infra: ledger SQLite/Postgres, tokens, token bucket, estatísticas
//   - story (este pacote): handlers JSON, cookie de identidade, CORS e
//     middlewares de throttle/concorrência/request-id
//
// Endpoints:
//
//	GET     /api/sentence  -> {text, author, created_at}
//	POST    /api/sentence  <- {sentence, name, anonymous}
//	OPTIONS /api/sentence  -> 204 (CORS)
//	GET     /healthz
//
// O cookie story_client_id carrega a identidade do visitante; é emitido na
// primeira requisição de API sem um token válido.
package story
