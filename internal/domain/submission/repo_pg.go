package submission

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxisbill/praxisbill/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Submission Repository ===========

type submissionRepoPG struct{ pool *pgxpool.Pool }

func NewSubmissionRepoPG(pool *pgxpool.Pool) SubmissionRepository {
	return &submissionRepoPG{pool: pool}
}

func (r *submissionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const submissionCols = `id, invoice_id, invoice_number, law_type, message_id, status,
	last_response_code, last_response_message, transmitted_at, created_at, updated_at`

func scanSubmission(row pgx.Row) (*Submission, error) {
	var s Submission
	err := row.Scan(&s.ID, &s.InvoiceID, &s.InvoiceNumber, &s.LawType, &s.MessageID, &s.Status,
		&s.LastResponseCode, &s.LastResponseMessage, &s.TransmittedAt, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *submissionRepoPG) Create(ctx context.Context, s *Submission) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO submissions (id, invoice_id, invoice_number, law_type, message_id, status,
			last_response_code, last_response_message, transmitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.ID, s.InvoiceID, s.InvoiceNumber, s.LawType, s.MessageID, s.Status,
		s.LastResponseCode, s.LastResponseMessage, s.TransmittedAt)
	return err
}

func (r *submissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return scanSubmission(r.conn(ctx).QueryRow(ctx, `SELECT `+submissionCols+` FROM submissions WHERE id = $1`, id))
}

func (r *submissionRepoPG) Update(ctx context.Context, s *Submission) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE submissions SET message_id=$2, status=$3, last_response_code=$4,
			last_response_message=$5, transmitted_at=$6, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.MessageID, s.Status, s.LastResponseCode, s.LastResponseMessage, s.TransmittedAt)
	return err
}

func (r *submissionRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error) {
	q := r.conn(ctx)

	var total int
	var err error
	if status != "" {
		err = q.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE status = $1`, status).Scan(&total)
	} else {
		err = q.QueryRow(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&total)
	}
	if err != nil {
		return nil, 0, err
	}

	var rows pgx.Rows
	if status != "" {
		rows, err = q.Query(ctx, `SELECT `+submissionCols+` FROM submissions WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	} else {
		rows, err = q.Query(ctx, `SELECT `+submissionCols+` FROM submissions ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectSubmissions(rows, total)
}

func (r *submissionRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Submission, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+submissionCols+` FROM submissions WHERE invoice_id = $1 ORDER BY created_at DESC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, _, err := collectSubmissions(rows, 0)
	return items, err
}

func (r *submissionRepoPG) ListOpenWithMessageID(ctx context.Context, limit int) ([]*Submission, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+submissionCols+` FROM submissions
		WHERE message_id IS NOT NULL AND status NOT IN ($1, $2)
		ORDER BY created_at
		LIMIT $3`,
		StatusAccepted, StatusRejected, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, _, err := collectSubmissions(rows, 0)
	return items, err
}

func (r *submissionRepoPG) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE status NOT IN ($1, $2)`,
		StatusAccepted, StatusRejected).Scan(&n)
	return n, err
}

func (r *submissionRepoPG) FindCandidates(ctx context.Context, messageID, invoiceNumber string) ([]*Submission, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+submissionCols+` FROM submissions
		WHERE ($1 <> '' AND message_id = $1) OR ($2 <> '' AND invoice_number = $2)
		ORDER BY created_at DESC`,
		messageID, invoiceNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, _, err := collectSubmissions(rows, 0)
	return items, err
}

func collectSubmissions(rows pgx.Rows, total int) ([]*Submission, int, error) {
	var items []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *submissionRepoPG) AppendHistory(ctx context.Context, h *HistoryEntry) error {
	h.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO submission_history (id, submission_id, previous_status, new_status, response_code, response_message)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		h.ID, h.SubmissionID, h.PreviousStatus, h.NewStatus, h.ResponseCode, h.ResponseMessage)
	return err
}

func (r *submissionRepoPG) ListHistory(ctx context.Context, submissionID uuid.UUID) ([]*HistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, submission_id, previous_status, new_status, response_code, response_message, created_at
		FROM submission_history WHERE submission_id = $1 ORDER BY created_at`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.SubmissionID, &h.PreviousStatus, &h.NewStatus,
			&h.ResponseCode, &h.ResponseMessage, &h.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}

// =========== Response Repository ===========

type responseRepoPG struct{ pool *pgxpool.Pool }

func NewResponseRepoPG(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepoPG{pool: pool}
}

func (r *responseRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const responseCols = `id, message_id, submission_id, response_type, explanation, invoice_number,
	sender_gln, correlation_reference, raw_content, confirmed, created_at`

func scanResponse(row pgx.Row) (*ResponseRecord, error) {
	var rec ResponseRecord
	err := row.Scan(&rec.ID, &rec.MessageID, &rec.SubmissionID, &rec.ResponseType, &rec.Explanation,
		&rec.InvoiceNumber, &rec.SenderGLN, &rec.CorrelationReference, &rec.RawContent, &rec.Confirmed, &rec.CreatedAt)
	return &rec, err
}

func (r *responseRepoPG) Insert(ctx context.Context, rec *ResponseRecord) error {
	rec.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO response_records (id, message_id, submission_id, response_type, explanation,
			invoice_number, sender_gln, correlation_reference, raw_content, confirmed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.MessageID, rec.SubmissionID, rec.ResponseType, rec.Explanation,
		rec.InvoiceNumber, rec.SenderGLN, rec.CorrelationReference, rec.RawContent, rec.Confirmed)
	return err
}

func (r *responseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ResponseRecord, error) {
	return scanResponse(r.conn(ctx).QueryRow(ctx, `SELECT `+responseCols+` FROM response_records WHERE id = $1`, id))
}

func (r *responseRepoPG) GetByMessageID(ctx context.Context, messageID string) (*ResponseRecord, error) {
	return scanResponse(r.conn(ctx).QueryRow(ctx, `SELECT `+responseCols+` FROM response_records WHERE message_id = $1`, messageID))
}

func (r *responseRepoPG) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE response_records SET confirmed = TRUE WHERE id = $1`, id)
	return err
}

func (r *responseRepoPG) SetSubmission(ctx context.Context, id, submissionID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE response_records SET submission_id = $2 WHERE id = $1`, id, submissionID)
	return err
}

func (r *responseRepoPG) ListUnmatched(ctx context.Context, limit, offset int) ([]*ResponseRecord, int, error) {
	q := r.conn(ctx)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM response_records WHERE submission_id IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+responseCols+` FROM response_records WHERE submission_id IS NULL ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*ResponseRecord
	for rows.Next() {
		rec, err := scanResponse(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

// =========== Notification Repository ===========

type notificationRepoPG struct{ pool *pgxpool.Pool }

func NewNotificationRepoPG(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepoPG{pool: pool}
}

func (r *notificationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const notificationCols = `id, notification_id, severity, error_code, message,
	transmission_reference, submission_id, confirmed, created_at`

func scanNotification(row pgx.Row) (*NotificationRecord, error) {
	var n NotificationRecord
	err := row.Scan(&n.ID, &n.NotificationID, &n.Severity, &n.ErrorCode, &n.Message,
		&n.TransmissionReference, &n.SubmissionID, &n.Confirmed, &n.CreatedAt)
	return &n, err
}

func (r *notificationRepoPG) Insert(ctx context.Context, n *NotificationRecord) error {
	n.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notification_records (id, notification_id, severity, error_code, message,
			transmission_reference, submission_id, confirmed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.NotificationID, n.Severity, n.ErrorCode, n.Message,
		n.TransmissionReference, n.SubmissionID, n.Confirmed)
	return err
}

func (r *notificationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*NotificationRecord, error) {
	return scanNotification(r.conn(ctx).QueryRow(ctx, `SELECT `+notificationCols+` FROM notification_records WHERE id = $1`, id))
}

func (r *notificationRepoPG) GetByNotificationID(ctx context.Context, notificationID string) (*NotificationRecord, error) {
	return scanNotification(r.conn(ctx).QueryRow(ctx, `SELECT `+notificationCols+` FROM notification_records WHERE notification_id = $1`, notificationID))
}

func (r *notificationRepoPG) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE notification_records SET confirmed = TRUE WHERE id = $1`, id)
	return err
}

func (r *notificationRepoPG) SetSubmission(ctx context.Context, id, submissionID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE notification_records SET submission_id = $2 WHERE id = $1`, id, submissionID)
	return err
}

func (r *notificationRepoPG) ListUnmatched(ctx context.Context, limit, offset int) ([]*NotificationRecord, int, error) {
	q := r.conn(ctx)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM notification_records WHERE submission_id IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+notificationCols+` FROM notification_records WHERE submission_id IS NULL ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*NotificationRecord
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}
