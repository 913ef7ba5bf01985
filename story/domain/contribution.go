package domain

import "time"

// ContributorKey é a identidade resolvida do visitante. É opaca: só é
// comparada por igualdade, nunca interpretada.
type ContributorKey string

// Contribution é uma frase já gravada na história. Imutável depois de criada.
type Contribution struct {
	Seq            int64
	Text           string
	Author         string
	ContributorKey ContributorKey
	CreatedAt      time.Time
}

// NewContribution é o que o serviço entrega ao ledger; Seq e CreatedAt
// são atribuídos pelo ledger no momento do insert.
type NewContribution struct {
	Text           string
	Author         string
	ContributorKey ContributorKey
}

// Sentence é a visão pública de uma contribuição (o que o leitor vê).
type Sentence struct {
	Text      string
	Author    string
	CreatedAt time.Time // zero para a frase semente
}

func (c Contribution) Sentence() Sentence {
	return Sentence{Text: c.Text, Author: c.Author, CreatedAt: c.CreatedAt}
}
