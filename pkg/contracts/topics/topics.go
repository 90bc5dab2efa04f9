package topics

const (
	// Notificações bancárias (inbox)
	BankNotifications    = "bank_notifications"
	BankNotificationsDLQ = "bank_notifications_dlq"

	// Liquidação de solicitações (depósito/saque)
	RequestSettled    = "request_settled"
	RequestSettledDLQ = "request_settled_dlq"
)
