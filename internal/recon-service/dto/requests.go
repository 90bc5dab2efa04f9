package dto

type CreateRequest struct {
	UserID      string `json:"userId"`
	Platform    string `json:"platform"` // identidade da plataforma alvo
	AccountRef  string `json:"account_ref"`
	AmountCents int64  `json:"amount_cents"`
	Kind        string `json:"kind"` // "DEPOSIT" | "WITHDRAW"
}

type ApproveRequest struct {
	Operator  string `json:"operator"`
	PaymentID string `json:"payment_id,omitempty"` // opcional: vincula um pagamento observado
}

type ConfirmRequest struct {
	Operator string `json:"operator"`
	Code     string `json:"code"` // código de confirmação obtido pelo jogador na plataforma
}

type DeclineRequest struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason,omitempty"`
}

type ResolveRequest struct {
	Operator string `json:"operator"`
	Status   string `json:"status"` // "SUCCESS" | "FAILED", após conferência no back office
	Reason   string `json:"reason,omitempty"`
}
