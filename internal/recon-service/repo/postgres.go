package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Postgres implementa a persistência de solicitações e pagamentos.
// O banco é a única fonte de verdade; toda transição passa por transação
// curta com re-leitura — nunca se segura lock através de chamada externa.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPaymentConsumed   = errors.New("payment already consumed")
)

const requestCols = `id, user_id, platform, account_ref, amount_cents, kind, status,
	COALESCE(status_detail,''), COALESCE(processed_by,''), created_at, processed_at`

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	var r Request
	var processedAt sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.Platform, &r.AccountRef, &r.AmountCents,
		&r.Kind, &r.Status, &r.StatusDetail, &r.ProcessedBy, &r.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t := processedAt.Time
		r.ProcessedAt = &t
	}
	return &r, nil
}

// CreateRequest insere uma solicitação nova com status PENDING
func (p *Postgres) CreateRequest(ctx context.Context, r *Request) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO requests (id, user_id, platform, account_ref, amount_cents, kind, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,'PENDING',NOW())`,
		id, r.UserID, r.Platform, r.AccountRef, r.AmountCents, r.Kind)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) GetRequest(ctx context.Context, id string) (*Request, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+requestCols+` FROM requests WHERE id=$1`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// InsertPayment persiste o pagamento decodificado, idempotente por
// message_id: reentrega da mesma notificação devolve o registro existente.
func (p *Postgres) InsertPayment(ctx context.Context, pay *Payment) (id string, created bool, err error) {
	id = uuid.NewString()
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO incoming_payments (id, message_id, amount_cents, bank, occurred_at, raw_excerpt, is_processed, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,false,$7)
		ON CONFLICT (message_id) DO NOTHING`,
		id, pay.MessageID, pay.AmountCents, pay.Bank, pay.OccurredAt, pay.RawExcerpt, pay.ReceivedAt)
	if err != nil {
		return "", false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return id, true, nil
	}
	err = p.db.QueryRowContext(ctx,
		`SELECT id FROM incoming_payments WHERE message_id=$1`, pay.MessageID).Scan(&id)
	return id, false, err
}

func (p *Postgres) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var pay Payment
	var linked sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT id, message_id, amount_cents, bank, occurred_at, COALESCE(raw_excerpt,''),
		       is_processed, linked_request_id, received_at
		FROM incoming_payments WHERE id=$1`, id).
		Scan(&pay.ID, &pay.MessageID, &pay.AmountCents, &pay.Bank, &pay.OccurredAt,
			&pay.RawExcerpt, &pay.IsProcessed, &linked, &pay.ReceivedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if linked.Valid {
		s := linked.String
		pay.LinkedRequestID = &s
	}
	return &pay, nil
}

// ListPendingDeposits retorna candidatas ao casamento: depósitos PENDING
// criados a partir de since e sem pagamento processado já vinculado.
// O recorte fino (lag, valor, ordenação) fica no matcher.
func (p *Postgres) ListPendingDeposits(ctx context.Context, since time.Time) ([]Request, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+requestCols+` FROM requests r
		WHERE r.kind='DEPOSIT' AND r.status='PENDING' AND r.created_at >= $1
		  AND NOT EXISTS (
		      SELECT 1 FROM incoming_payments ip
		      WHERE ip.linked_request_id = r.id AND ip.is_processed
		  )
		ORDER BY r.created_at ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ClaimRequest tenta assumir a solicitação para execução (CAS re-leia-antes-
// de-escrever): só PENDING/DEFERRED viram PROCESSING; perder a corrida para
// um gatilho concorrente devolve claimed=false e vira no-op no chamador.
func (p *Postgres) ClaimRequest(ctx context.Context, id string) (prev Status, req *Request, claimed bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+requestCols+` FROM requests WHERE id=$1 FOR UPDATE`, id)
	req, err = scanRequest(row)
	if err == sql.ErrNoRows {
		return "", nil, false, ErrNotFound
	}
	if err != nil {
		return "", nil, false, err
	}
	if !req.Status.Claimable() {
		return req.Status, req, false, nil
	}

	prev = req.Status
	if _, err = tx.ExecContext(ctx, `UPDATE requests SET status='PROCESSING' WHERE id=$1`, id); err != nil {
		return "", nil, false, err
	}
	if err = insertTransition(ctx, tx, id, prev, StatusProcessing, "claim"); err != nil {
		return "", nil, false, err
	}
	if err = tx.Commit(); err != nil {
		return "", nil, false, err
	}
	req.Status = StatusProcessing
	return prev, req, true, nil
}

// ReleaseClaim devolve a solicitação ao status anterior quando a execução foi
// abortada antes de qualquer chamada externa (pagamento consumido, credencial
// ausente). Só atua se o claim ainda é nosso.
func (p *Postgres) ReleaseClaim(ctx context.Context, id string, prev Status) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE requests SET status=$1 WHERE id=$2 AND status='PROCESSING'`, prev, id)
	return err
}

// Settle grava o desfecho da execução numa única transação:
// SUCCESS com pagamento consome o pagamento e vincula à solicitação como
// unidade indivisível; FAILED/UNKNOWN_CHECK não tocam no pagamento, que
// permanece elegível para resolução manual.
func (p *Postgres) Settle(ctx context.Context, requestID string, to Status, detail, processedBy string, paymentID *string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cur Status
	if err = tx.QueryRowContext(ctx,
		`SELECT status FROM requests WHERE id=$1 FOR UPDATE`, requestID).Scan(&cur); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	if !CanTransition(cur, to) {
		return ErrInvalidTransition
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE requests SET status=$1, status_detail=$2, processed_by=$3, processed_at=NOW()
		WHERE id=$4`,
		to, TruncateDetail(detail), processedBy, requestID); err != nil {
		return err
	}

	if to == StatusSuccess && paymentID != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE incoming_payments SET is_processed=true, linked_request_id=$1
			WHERE id=$2 AND is_processed=false`, requestID, *paymentID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			// outro fluxo consumiu o pagamento; aborta a transação inteira
			return ErrPaymentConsumed
		}
	}

	if err = insertTransition(ctx, tx, requestID, cur, to, TruncateDetail(detail)); err != nil {
		return err
	}
	return tx.Commit()
}

// GetStatus relê o status para a verificação pós-transição do coordenador
func (p *Postgres) GetStatus(ctx context.Context, id string) (Status, error) {
	var s Status
	err := p.db.QueryRowContext(ctx, `SELECT status FROM requests WHERE id=$1`, id).Scan(&s)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return s, err
}

// ForceStatus é a re-escrita corretiva única do coordenador: sobrescreve o
// estado sem consultar a tabela de transições, porque o dinheiro já se moveu
// no lado externo e o registro local tem que refletir isso.
func (p *Postgres) ForceStatus(ctx context.Context, id string, to Status, detail string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cur Status
	if err = tx.QueryRowContext(ctx,
		`SELECT status FROM requests WHERE id=$1 FOR UPDATE`, id).Scan(&cur); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE requests SET status=$1, status_detail=$2, processed_at=NOW() WHERE id=$3`,
		to, TruncateDetail(detail), id); err != nil {
		return err
	}
	if err = insertTransition(ctx, tx, id, cur, to, "corrective rewrite"); err != nil {
		return err
	}
	return tx.Commit()
}

// OperatorTransition aplica uma transição manual (declinar, estacionar,
// resolver UNKNOWN_CHECK) respeitando a tabela de transições.
func (p *Postgres) OperatorTransition(ctx context.Context, id string, to Status, operator, reason string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cur Status
	if err = tx.QueryRowContext(ctx,
		`SELECT status FROM requests WHERE id=$1 FOR UPDATE`, id).Scan(&cur); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	if !CanTransition(cur, to) {
		return ErrInvalidTransition
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE requests SET status=$1, status_detail=$2, processed_by=$3, processed_at=NOW()
		WHERE id=$4`,
		to, TruncateDetail(reason), operator, id); err != nil {
		return err
	}
	if err = insertTransition(ctx, tx, id, cur, to, TruncateDetail(reason)); err != nil {
		return err
	}
	return tx.Commit()
}

// ExpireStale expira depósitos PENDING criados antes do corte.
// Usa o mesmo caminho guardado por status, então convive com matcher e
// operador sem corrida.
func (p *Postgres) ExpireStale(ctx context.Context, olderThan time.Time) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		UPDATE requests SET status='EXPIRED', status_detail='janela de pagamento vencida', processed_at=NOW()
		WHERE kind='DEPOSIT' AND status='PENDING' AND created_at < $1
		RETURNING id`, olderThan)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := insertTransition(ctx, tx, id, StatusPending, StatusExpired, "sweep"); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// insertTransition registra a trilha de auditoria de mudanças de status
func insertTransition(ctx context.Context, tx *sql.Tx, requestID string, from, to Status, reason string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO request_transitions (request_id, old_status, new_status, reason, created_at)
		VALUES ($1,$2,$3,$4,NOW())`, requestID, from, to, reason)
	return err
}
