package payments

import (
	"context"

	"github.com/google/uuid"
)

type EventRepository interface {
	Insert(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Event, error)
	List(ctx context.Context, unmatchedOnly bool, limit, offset int) ([]*Event, int, error)
}
