// Package domain define os tipos e contratos da história colaborativa:
// contribuições, identidade do visitante, taxonomia de erros e as portas
// de persistência/estatística.
//
// Este pacote não depende de net/http nem de drivers de banco.
package domain
