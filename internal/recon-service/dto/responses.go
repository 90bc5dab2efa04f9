package dto

import "time"

type RequestResponse struct {
	RequestID    string     `json:"requestId"`
	UserID       string     `json:"userId"`
	Platform     string     `json:"platform"`
	Kind         string     `json:"kind"`
	AmountCents  int64      `json:"amount_cents"`
	Status       string     `json:"status"`
	StatusDetail string     `json:"status_detail,omitempty"`
	ProcessedBy  string     `json:"processed_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type ExecutionResponse struct {
	RequestID string `json:"requestId"`
	Outcome   string `json:"outcome"`
}
