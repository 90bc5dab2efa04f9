package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Notification é o resultado da interpretação de um texto de notificação
// bancária. OccurredAt é o horário de liquidação informado pelo próprio
// banco; nil quando o texto não traz horário (o chamador usa a chegada da
// mensagem como fallback).
type Notification struct {
	AmountCents int64
	OccurredAt  *time.Time
	Bank        string
}

var (
	ErrUnrecognized  = errors.New("unrecognized notification")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Horário no formato que os bancos usam nos extratos: dd.mm.yyyy HH:MM:SS
var timestampRe = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4}) (\d{2}):(\d{2}):(\d{2})`)

// Parse interpreta o texto de uma notificação bancária.
// Quando bankHint corresponde a uma gramática conhecida ela é tentada
// primeiro; caso contrário todas são tentadas em ordem fixa, a primeira que
// casar vence (determinístico). Função pura, sem efeitos colaterais.
func Parse(text, bankHint string) (*Notification, error) {
	for _, g := range grammarsFor(bankHint) {
		m := g.amount.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		cents, err := NormalizeAmount(m[1])
		if err != nil {
			// valor irreconhecível nessa gramática; tenta a próxima
			continue
		}
		n := &Notification{AmountCents: cents, Bank: g.bank}
		if ts, ok := extractTimestamp(text); ok {
			n.OccurredAt = &ts
		}
		return n, nil
	}
	return nil, ErrUnrecognized
}

// grammarsFor retorna as gramáticas na ordem de tentativa.
// O hint apenas prioriza; a ordem das demais permanece fixa.
func grammarsFor(bankHint string) []grammar {
	hint := strings.ToLower(strings.TrimSpace(bankHint))
	if hint == "" {
		return grammars
	}
	out := make([]grammar, 0, len(grammars))
	for _, g := range grammars {
		if g.bank == hint {
			out = append(out, g)
		}
	}
	for _, g := range grammars {
		if g.bank != hint {
			out = append(out, g)
		}
	}
	return out
}

// NormalizeAmount converte um literal numérico em formato local
// ("1 240,06", "1,240.06", "1240.06") para centavos.
// Regra: separador seguido de 1-2 dígitos no fim é decimal; os demais são
// separadores de milhar e são descartados. Rejeita zero, negativo e lixo.
func NormalizeAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	// espaços (inclusive não separáveis) só aparecem como milhar
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, s)
	s = strings.Trim(s, ".,")
	if s == "" {
		return 0, ErrInvalidAmount
	}

	intPart, fracPart := s, ""
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		frac := s[i+1:]
		if len(frac) >= 1 && len(frac) <= 2 {
			intPart, fracPart = s[:i], frac
		}
	}
	// remove separadores de milhar remanescentes
	intPart = strings.Map(func(r rune) rune {
		if r == '.' || r == ',' {
			return -1
		}
		return r
	}, intPart)

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := whole * 100
	if fracPart != "" {
		f, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		if len(fracPart) == 1 {
			f *= 10
		}
		cents += f
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// extractTimestamp busca um horário dd.mm.yyyy HH:MM:SS no texto.
// Os bancos informam horário local de liquidação, sem fuso; interpreta em UTC
// e deixa o ajuste de fuso para a camada de configuração do operador.
func extractTimestamp(text string) (time.Time, bool) {
	m := timestampRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	min, _ := strconv.Atoi(m[5])
	sec, _ := strconv.Atoi(m[6])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC), true
}
