package repo

import "time"

// Kind distingue depósito e saque
type Kind string

const (
	KindDeposit  Kind = "DEPOSIT"
	KindWithdraw Kind = "WITHDRAW"
)

// Status da solicitação, modelado como enumeração com tabela de transições:
// qualquer transição fora da tabela é rejeitada pelo repositório.
type Status string

const (
	StatusPending      Status = "PENDING"       // aguardando pagamento/ação
	StatusDeferred     Status = "DEFERRED"      // estacionada pelo operador, fora do casamento automático
	StatusProcessing   Status = "PROCESSING"    // claim ativo do coordenador
	StatusSuccess      Status = "SUCCESS"       // liquidada na plataforma
	StatusFailed       Status = "FAILED"        // recusada pela plataforma
	StatusUnknownCheck Status = "UNKNOWN_CHECK" // desfecho ambíguo; só sai daqui por ação manual
	StatusDeclined     Status = "DECLINED"      // recusada pelo operador
	StatusExpired      Status = "EXPIRED"       // venceu a janela sem pagamento
)

// transitions é a tabela de transições permitidas.
// UNKNOWN_CHECK -> SUCCESS/FAILED só acontece via resolução manual do
// operador depois de conferir o back office da plataforma.
var transitions = map[Status][]Status{
	StatusPending:      {StatusProcessing, StatusDeferred, StatusDeclined, StatusExpired},
	StatusDeferred:     {StatusProcessing, StatusDeclined, StatusExpired},
	StatusProcessing:   {StatusSuccess, StatusFailed, StatusUnknownCheck},
	StatusUnknownCheck: {StatusSuccess, StatusFailed},
}

// CanTransition responde se a mudança from -> to está na tabela
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal indica estado final: uma solicitação só chega num deles uma vez
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusDeclined, StatusExpired:
		return true
	}
	return false
}

// Claimable indica que o coordenador pode assumir a solicitação
func (s Status) Claimable() bool {
	return s == StatusPending || s == StatusDeferred
}

// Request é a solicitação de depósito/saque persistida no Postgres.
// Criada pela camada de apresentação; o estado só muda pelo coordenador de
// execução ou por ação de operador seguindo a mesma tabela de transições.
type Request struct {
	ID           string
	UserID       string
	Platform     string // identidade da plataforma; seleciona adapter e credencial
	AccountRef   string
	AmountCents  int64
	Kind         Kind
	Status       Status
	StatusDetail string
	ProcessedBy  string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// Payment é a notificação bancária decodificada e persistida.
// Inserida uma única vez pelo watcher; mutada exatamente uma vez pelo
// coordenador (is_processed false->true, linked_request_id). Nunca apagada.
type Payment struct {
	ID              string
	MessageID       string // dedup da mensagem de origem
	AmountCents     int64
	Bank            string
	OccurredAt      time.Time // horário de liquidação do banco, não de chegada
	RawExcerpt      string
	IsProcessed     bool
	LinkedRequestID *string
	ReceivedAt      time.Time
}

// MaxDetailLen limita status_detail ao que cabe na tela do operador
const MaxDetailLen = 400

// TruncateDetail corta a mensagem da plataforma para caber em status_detail
func TruncateDetail(s string) string {
	r := []rune(s)
	if len(r) > MaxDetailLen {
		return string(r[:MaxDetailLen])
	}
	return s
}
