package events

import "time"

// Evento emitido pelo coordenador de execução após o commit da transição
// terminal de uma solicitação. Só é publicado depois que o estado local foi
// persistido; consumidores (notifier-worker) nunca influenciam a transação.
type RequestSettled struct {
	RequestID   string    `json:"request_id"`
	UserID      string    `json:"user_id"`
	Platform    string    `json:"platform"`
	Kind        string    `json:"kind"`   // "DEPOSIT" | "WITHDRAW"
	Status      string    `json:"status"` // "SUCCESS" | "FAILED" | "UNKNOWN_CHECK"
	AmountCents int64     `json:"amount_cents"`
	PaymentID   string    `json:"payment_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Ts          time.Time `json:"ts"`
}
