package infra

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"story-chain/story/domain"
)

const (
	tokenBytes     = 32
	minTokenLength = 32 // tokens uuid4-hex emitidos pela versão anterior
	maxTokenLength = 2 * tokenBytes
)

// TokenResolver implementa domain.IdentityResolver com tokens aleatórios em hex.
//
// Token bem formado: 32 a 64 caracteres hex minúsculos. Qualquer outra coisa
// é tratada como ausente e um token novo é emitido; nunca retorna erro.
type TokenResolver struct {
	// Rand é a fonte de entropia. nil usa crypto/rand.
	Rand io.Reader
}

func (r TokenResolver) Resolve(token string) (domain.ContributorKey, string) {
	if WellFormedToken(token) {
		return domain.ContributorKey(token), ""
	}
	fresh := r.newToken()
	return domain.ContributorKey(fresh), fresh
}

func (r TokenResolver) newToken() string {
	src := r.Rand
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(src, buf); err != nil {
		// crypto/rand não falha em plataformas suportadas; uma fonte injetada
		// quebrada é erro de programação.
		panic("infra: reading random token: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// WellFormedToken informa se token tem o formato emitido pelo resolver.
func WellFormedToken(token string) bool {
	if len(token) < minTokenLength || len(token) > maxTokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
