package payments

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

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository {
	return &eventRepoPG{pool: pool}
}

func (r *eventRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const eventCols = `id, transaction_id, gateway_status, normalized_status, reference_id,
	settled_amount, currency, invoice_id, applied_status, raw_payload, created_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.TransactionID, &e.GatewayStatus, &e.NormalizedStatus, &e.ReferenceID,
		&e.SettledAmount, &e.Currency, &e.InvoiceID, &e.AppliedStatus, &e.RawPayload, &e.CreatedAt)
	return &e, err
}

func (r *eventRepoPG) Insert(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment_events (id, transaction_id, gateway_status, normalized_status,
			reference_id, settled_amount, currency, invoice_id, applied_status, raw_payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.TransactionID, e.GatewayStatus, e.NormalizedStatus,
		e.ReferenceID, e.SettledAmount, e.Currency, e.InvoiceID, e.AppliedStatus, e.RawPayload)
	return err
}

func (r *eventRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	return scanEvent(r.conn(ctx).QueryRow(ctx, `SELECT `+eventCols+` FROM payment_events WHERE id = $1`, id))
}

func (r *eventRepoPG) GetByTransactionID(ctx context.Context, transactionID string) (*Event, error) {
	return scanEvent(r.conn(ctx).QueryRow(ctx, `SELECT `+eventCols+` FROM payment_events WHERE transaction_id = $1`, transactionID))
}

func (r *eventRepoPG) List(ctx context.Context, unmatchedOnly bool, limit, offset int) ([]*Event, int, error) {
	q := r.conn(ctx)

	where := ""
	if unmatchedOnly {
		where = " WHERE invoice_id IS NULL"
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM payment_events`+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `SELECT `+eventCols+` FROM payment_events`+where+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
