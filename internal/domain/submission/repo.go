package submission

import (
	"context"

	"github.com/google/uuid"
)

type SubmissionRepository interface {
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	Update(ctx context.Context, s *Submission) error
	List(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Submission, error)
	// ListOpenWithMessageID returns non-terminal submissions that hold an
	// upstream message id, oldest first. The reconcile loop polls these.
	ListOpenWithMessageID(ctx context.Context, limit int) ([]*Submission, error)
	// FindCandidates returns submissions whose message id OR invoice
	// number equals the given references, newest first.
	FindCandidates(ctx context.Context, messageID, invoiceNumber string) ([]*Submission, error)
	// CountOpen counts non-terminal submissions, for the open gauge.
	CountOpen(ctx context.Context) (int, error)
	// History
	AppendHistory(ctx context.Context, h *HistoryEntry) error
	ListHistory(ctx context.Context, submissionID uuid.UUID) ([]*HistoryEntry, error)
}

type ResponseRepository interface {
	Insert(ctx context.Context, r *ResponseRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ResponseRecord, error)
	GetByMessageID(ctx context.Context, messageID string) (*ResponseRecord, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID) error
	SetSubmission(ctx context.Context, id, submissionID uuid.UUID) error
	ListUnmatched(ctx context.Context, limit, offset int) ([]*ResponseRecord, int, error)
}

type NotificationRepository interface {
	Insert(ctx context.Context, n *NotificationRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*NotificationRecord, error)
	GetByNotificationID(ctx context.Context, notificationID string) (*NotificationRecord, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID) error
	SetSubmission(ctx context.Context, id, submissionID uuid.UUID) error
	ListUnmatched(ctx context.Context, limit, offset int) ([]*NotificationRecord, int, error)
}
