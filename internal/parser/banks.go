package parser

import (
	"regexp"
	"strings"
)

// grammar descreve como um banco específico escreve o valor transferido.
// O grupo 1 do regex de amount captura o literal numérico bruto.
type grammar struct {
	bank   string
	amount *regexp.Regexp
}

// Literal numérico com separadores locais: "1240.06", "1 240,06", "1,240.06"
const numToken = `(\d[\d\s\x{00a0}.,]*\d|\d)`

// Ordem fixa: bancos mais frequentes primeiro, gramática genérica por último.
// Novos formatos entram aqui, nunca no meio do fluxo de conciliação.
var grammars = []grammar{
	{
		bank:   "sberbank",
		amount: regexp.MustCompile(`(?i)(?:зачисление|перевод)\s+` + numToken + `\s*(?:р|руб|₽|RUB)`),
	},
	{
		bank:   "tinkoff",
		amount: regexp.MustCompile(`(?i)пополнение(?:[^\d]{0,40})` + numToken + `\s*(?:р|руб|₽|RUB)`),
	},
	{
		bank:   "alfabank",
		amount: regexp.MustCompile(`(?i)(?:поступление|перевод)(?:[^\d]{0,40})` + numToken + `\s*(?:р|руб|₽|RUB)`),
	},
	{
		// Qualquer valor seguido de marcador de moeda; última tentativa
		bank:   "generic",
		amount: regexp.MustCompile(numToken + `\s*(?:р\.|руб\.?|₽|RUB)`),
	},
}

// GuessBank deduz o banco a partir do remetente/assunto da mensagem.
// Retorna "" quando não reconhece; o Parse então tenta todas as gramáticas.
func GuessBank(from, subject string) string {
	s := strings.ToLower(from + " " + subject)
	switch {
	case strings.Contains(s, "sber") || strings.Contains(s, "сбер"):
		return "sberbank"
	case strings.Contains(s, "tinkoff") || strings.Contains(s, "тинькофф") || strings.Contains(s, "t-bank"):
		return "tinkoff"
	case strings.Contains(s, "alfa") || strings.Contains(s, "альфа"):
		return "alfabank"
	}
	return ""
}
