// Package submission tracks the lifecycle of invoices sent to insurers
// through the clearing proxy: the submission itself, its append-only
// status history, and the response and notification records drained from
// the proxy's inboxes.
package submission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Submission statuses. Rank ordering is strictly forward: a submission
// never moves back, and rejected is reachable from every non-terminal
// state.
const (
	StatusPending     = "pending"
	StatusTransmitted = "transmitted"
	StatusDelivered   = "delivered"
	StatusAccepted    = "accepted"
	StatusRejected    = "rejected"
)

var statusRank = map[string]int{
	StatusPending:     0,
	StatusTransmitted: 1,
	StatusDelivered:   2,
	StatusAccepted:    3,
	StatusRejected:    3,
}

// KnownStatus reports whether s is a submission status at all.
func KnownStatus(s string) bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(s string) bool {
	return s == StatusAccepted || s == StatusRejected
}

// advances reports whether moving from one status to another goes forward
// in rank. Same-status and backward moves are not advances; callers treat
// them as no-ops, never as errors, because reconciliation signals arrive
// out of order.
func advances(from, to string) bool {
	return statusRank[to] > statusRank[from]
}

// Submission maps to the submissions table. InvoiceNumber and LawType are
// denormalized from the invoice: the number is the correlation key for
// insurer responses, the law type feeds the reconciliation dwell
// heuristic.
type Submission struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	InvoiceID           uuid.UUID  `db:"invoice_id" json:"invoice_id"`
	InvoiceNumber       string     `db:"invoice_number" json:"invoice_number"`
	LawType             string     `db:"law_type" json:"law_type"`
	MessageID           *string    `db:"message_id" json:"message_id,omitempty"`
	Status              string     `db:"status" json:"status"`
	LastResponseCode    *string    `db:"last_response_code" json:"last_response_code,omitempty"`
	LastResponseMessage *string    `db:"last_response_message" json:"last_response_message,omitempty"`
	TransmittedAt       *time.Time `db:"transmitted_at" json:"transmitted_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// HistoryEntry maps to the submission_history table. Entries are
// append-only and strictly insertion-ordered per submission.
type HistoryEntry struct {
	ID              uuid.UUID `db:"id" json:"id"`
	SubmissionID    uuid.UUID `db:"submission_id" json:"submission_id"`
	PreviousStatus  string    `db:"previous_status" json:"previous_status"`
	NewStatus       string    `db:"new_status" json:"new_status"`
	ResponseCode    *string   `db:"response_code" json:"response_code,omitempty"`
	ResponseMessage *string   `db:"response_message" json:"response_message,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ResponseRecord maps to the response_records table. MessageID is the
// upstream download id and carries a unique constraint: it is the dedupe
// key that makes inbox draining idempotent. A nil SubmissionID means the
// response could not be matched and waits in the triage queue.
type ResponseRecord struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	MessageID            string     `db:"message_id" json:"message_id"`
	SubmissionID         *uuid.UUID `db:"submission_id" json:"submission_id,omitempty"`
	ResponseType         string     `db:"response_type" json:"response_type"`
	Explanation          *string    `db:"explanation" json:"explanation,omitempty"`
	InvoiceNumber        *string    `db:"invoice_number" json:"invoice_number,omitempty"`
	SenderGLN            *string    `db:"sender_gln" json:"sender_gln,omitempty"`
	CorrelationReference *string    `db:"correlation_reference" json:"correlation_reference,omitempty"`
	RawContent           []byte     `db:"raw_content" json:"-"`
	Confirmed            bool       `db:"confirmed" json:"confirmed"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

// NotificationRecord maps to the notification_records table.
// NotificationID is the upstream id in its own namespace, also unique.
type NotificationRecord struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	NotificationID        string     `db:"notification_id" json:"notification_id"`
	Severity              string     `db:"severity" json:"severity"`
	ErrorCode             *string    `db:"error_code" json:"error_code,omitempty"`
	Message               string     `db:"message" json:"message"`
	TransmissionReference *string    `db:"transmission_reference" json:"transmission_reference,omitempty"`
	SubmissionID          *uuid.UUID `db:"submission_id" json:"submission_id,omitempty"`
	Confirmed             bool       `db:"confirmed" json:"confirmed"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
}

// ActiveSubmissionError reports an attempt to submit an invoice that
// already has a submission in flight.
type ActiveSubmissionError struct {
	InvoiceID    uuid.UUID
	SubmissionID uuid.UUID
	Status       string
}

func (e *ActiveSubmissionError) Error() string {
	return fmt.Sprintf("invoice %s already has an active submission %s in status %s",
		e.InvoiceID, e.SubmissionID, e.Status)
}
