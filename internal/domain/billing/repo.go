package billing

import (
	"context"

	"github.com/google/uuid"
)

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, status string, limit, offset int) ([]*Invoice, int, error)
	// Line items
	AddLineItem(ctx context.Context, li *LineItem) error
	ListLineItems(ctx context.Context, invoiceID uuid.UUID) ([]*LineItem, error)
}
