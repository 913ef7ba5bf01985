package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"story-chain/story/domain"
)

const (
	SeedText        = "Add the very first sentence to start the story!"
	SeedAuthor      = "System"
	AnonymousAuthor = "Anonymous"

	DefaultMaxSentenceLen = 500
	DefaultMaxNameLen     = 80
)

// Service orquestra leitura e escrita da história.
//
// Não guarda estado mutável próprio: o ledger é a única fonte de verdade e o
// único ponto de sincronização.
type Service struct {
	Ledger   domain.Ledger
	Identity domain.IdentityResolver
	Policy   DailyPolicy
	Stats    domain.StatsStore
	Logger   *slog.Logger

	MaxSentenceLen int
	MaxNameLen     int
}

type SubmitInput struct {
	Sentence  string
	Name      string
	Anonymous bool
	// Token é o identificador guardado pelo cliente (pode vir vazio).
	Token string
}

type Submission struct {
	Sentence domain.Sentence
	Key      domain.ContributorKey
	// IssuedToken vem preenchido quando um token novo foi emitido nesta chamada.
	IssuedToken string
	Bypass      bool
}

// GetCurrent retorna a frase mais recente, ou a frase semente se a história
// ainda está vazia.
func (s *Service) GetCurrent(ctx context.Context) (domain.Sentence, error) {
	latest, err := s.Ledger.Latest(ctx)
	if err != nil {
		s.logger().ErrorContext(ctx, "reading latest sentence", "err", err)
		return domain.Sentence{}, err
	}
	if latest == nil {
		return domain.Sentence{Text: SeedText, Author: SeedAuthor}, nil
	}
	return latest.Sentence(), nil
}

// Length retorna quantas frases a história tem.
func (s *Service) Length(ctx context.Context) (int64, error) {
	return s.Ledger.Count(ctx)
}

// Identify resolve o token do visitante sem tocar no ledger.
func (s *Service) Identify(token string) (domain.ContributorKey, string) {
	return s.Identity.Resolve(token)
}

// Submit valida, verifica o limite diário e grava a frase.
//
// Verificação e gravação acontecem dentro da mesma unidade de escrita do
// ledger, então duas submissões simultâneas da mesma chave nunca passam as duas.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Submission, error) {
	text := strings.TrimSpace(in.Sentence)
	if text == "" {
		s.record(ctx, "", domain.OutcomeInvalid)
		return Submission{}, &domain.ValidationError{Reason: domain.ReasonEmpty}
	}
	if utf8.RuneCountInString(text) > s.maxSentenceLen() {
		s.record(ctx, "", domain.OutcomeInvalid)
		return Submission{}, &domain.ValidationError{Reason: domain.ReasonTooLong}
	}
	author := displayName(in.Name, in.Anonymous)
	if utf8.RuneCountInString(author) > s.maxNameLen() {
		s.record(ctx, "", domain.OutcomeInvalid)
		return Submission{}, &domain.ValidationError{Reason: domain.ReasonNameTooLong}
	}

	key, issued := s.Identity.Resolve(in.Token)
	sub := Submission{Key: key, IssuedToken: issued, Bypass: s.Policy.IsBypass(in.Name)}

	err := s.Ledger.Write(ctx, func(w domain.LedgerWriter) error {
		ok, wait, err := s.Policy.MayContribute(ctx, w, key, in.Name)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.RateLimitError{RetryAfter: wait}
		}
		c, err := w.Append(ctx, domain.NewContribution{
			Text:           text,
			Author:         author,
			ContributorKey: key,
		})
		if err != nil {
			return err
		}
		sub.Sentence = c.Sentence()
		return nil
	})

	var rl *domain.RateLimitError
	switch {
	case err == nil:
		if sub.Bypass {
			s.record(ctx, key, domain.OutcomeBypass)
		} else {
			s.record(ctx, key, domain.OutcomeAccepted)
		}
		return sub, nil
	case errors.As(err, &rl):
		s.record(ctx, key, domain.OutcomeRateLimited)
	default:
		s.record(ctx, key, domain.OutcomeFailed)
		s.logger().ErrorContext(ctx, "appending sentence", "err", err)
	}
	return sub, err
}

// displayName aplica a regra de anonimato: flag ligada ou nome vazio viram
// AnonymousAuthor.
func displayName(raw string, anonymous bool) string {
	if anonymous {
		return AnonymousAuthor
	}
	if name := strings.TrimSpace(raw); name != "" {
		return name
	}
	return AnonymousAuthor
}

func (s *Service) record(ctx context.Context, key domain.ContributorKey, outcome domain.Outcome) {
	if s.Stats == nil {
		return
	}
	ev := domain.StatsEvent{Key: key, Outcome: outcome, At: time.Now()}
	if err := s.Stats.Record(ctx, ev); err != nil {
		s.logger().DebugContext(ctx, "stats record failed", "err", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) maxSentenceLen() int {
	if s.MaxSentenceLen > 0 {
		return s.MaxSentenceLen
	}
	return DefaultMaxSentenceLen
}

func (s *Service) maxNameLen() int {
	if s.MaxNameLen > 0 {
		return s.MaxNameLen
	}
	return DefaultMaxNameLen
}
