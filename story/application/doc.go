// Package application contém os casos de uso da história: leitura da frase
// atual, submissão com limite diário, e as regras de throttle/concorrência
// usadas pela camada HTTP.
//
// Depende apenas do pacote domain e não conhece net/http.
package application
