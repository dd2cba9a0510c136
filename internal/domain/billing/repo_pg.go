package billing

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

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

func (r *invoiceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const invoiceCols = `id, invoice_number, patient_id, billing_entity_id, staff_id,
	law_type, tiers_mode, canton, currency, total_amount, paid_amount, status,
	gateway_transaction_id, payment_link, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PatientID, &inv.BillingEntityID, &inv.StaffID,
		&inv.LawType, &inv.TiersMode, &inv.Canton, &inv.Currency, &inv.TotalAmount, &inv.PaidAmount, &inv.Status,
		&inv.GatewayTransactionID, &inv.PaymentLink, &inv.CreatedAt, &inv.UpdatedAt)
	return &inv, err
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoices (id, invoice_number, patient_id, billing_entity_id, staff_id,
			law_type, tiers_mode, canton, currency, total_amount, paid_amount, status,
			gateway_transaction_id, payment_link)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		inv.ID, inv.InvoiceNumber, inv.PatientID, inv.BillingEntityID, inv.StaffID,
		inv.LawType, inv.TiersMode, inv.Canton, inv.Currency, inv.TotalAmount, inv.PaidAmount, inv.Status,
		inv.GatewayTransactionID, inv.PaymentLink)
	return err
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id))
}

func (r *invoiceRepoPG) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE invoice_number = $1`, number))
}

func (r *invoiceRepoPG) Update(ctx context.Context, inv *Invoice) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoices SET tiers_mode=$2, canton=$3, currency=$4, total_amount=$5,
			paid_amount=$6, status=$7, gateway_transaction_id=$8, payment_link=$9,
			updated_at=NOW()
		WHERE id = $1`,
		inv.ID, inv.TiersMode, inv.Canton, inv.Currency, inv.TotalAmount,
		inv.PaidAmount, inv.Status, inv.GatewayTransactionID, inv.PaymentLink)
	return err
}

func (r *invoiceRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Invoice, int, error) {
	q := r.conn(ctx)

	var total int
	var err error
	if status != "" {
		err = q.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE status = $1`, status).Scan(&total)
	} else {
		err = q.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&total)
	}
	if err != nil {
		return nil, 0, err
	}

	var rows pgx.Rows
	if status != "" {
		rows, err = q.Query(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	} else {
		rows, err = q.Query(ctx, `SELECT `+invoiceCols+` FROM invoices ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

const lineItemCols = `id, invoice_id, tariff_type, code, name, quantity, session,
	unit_price, tax_points, external_factor, date_of_service, side_code,
	provider_gln, amount, created_at`

func scanLineItem(row pgx.Row) (*LineItem, error) {
	var li LineItem
	err := row.Scan(&li.ID, &li.InvoiceID, &li.TariffType, &li.Code, &li.Name, &li.Quantity, &li.Session,
		&li.UnitPrice, &li.TaxPoints, &li.ExternalFactor, &li.DateOfService, &li.SideCode,
		&li.ProviderGLN, &li.Amount, &li.CreatedAt)
	return &li, err
}

func (r *invoiceRepoPG) AddLineItem(ctx context.Context, li *LineItem) error {
	li.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_line_items (id, invoice_id, tariff_type, code, name, quantity, session,
			unit_price, tax_points, external_factor, date_of_service, side_code, provider_gln, amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		li.ID, li.InvoiceID, li.TariffType, li.Code, li.Name, li.Quantity, li.Session,
		li.UnitPrice, li.TaxPoints, li.ExternalFactor, li.DateOfService, li.SideCode, li.ProviderGLN, li.Amount)
	return err
}

func (r *invoiceRepoPG) ListLineItems(ctx context.Context, invoiceID uuid.UUID) ([]*LineItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+lineItemCols+` FROM invoice_line_items WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*LineItem
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}
