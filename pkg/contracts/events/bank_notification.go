package events

// Mensagem bruta publicada pelo coletor de inbox no tópico "bank_notifications".
// O conteúdo chega como texto livre (assunto/remetente/corpo) e só é
// interpretado pelo parser; ReceivedAt é o horário de chegada da mensagem,
// usado como fallback quando o banco não informa horário de liquidação.
type BankNotification struct {
	MessageID    string `json:"message_id"`
	From         string `json:"from"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	ReceivedAtMs int64  `json:"received_at_ms"`
}
