// Package payments reconciles payment-gateway callbacks with invoices.
// Gateways retry aggressively and disagree on payload shape, so the
// webhook is tolerant on the way in and exactly-once on the way down.
package payments

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Normalized gateway statuses. The raw gateway vocabulary is preserved on
// the event; these four drive the settlement decision.
const (
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusPending   = "pending"
	StatusUnknown   = "unknown"
)

// NormalizeStatus folds the status vocabulary of the supported gateways
// into the four internal values. Anything unrecognized is unknown, never
// an error: the event is still recorded.
func NormalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "confirmed", "completed", "succeeded", "success", "paid", "settled":
		return StatusConfirmed
	case "failed", "failure", "declined", "expired", "canceled", "cancelled":
		return StatusFailed
	case "pending", "processing", "created", "open", "authorized":
		return StatusPending
	default:
		return StatusUnknown
	}
}

// Event maps to the payment_events table. TransactionID is the gateway's
// id and carries a unique constraint: it is the dedupe key that makes
// webhook replays no-ops. A nil InvoiceID means the referenced invoice
// could not be found; the event waits in the triage queue.
type Event struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	TransactionID    string     `db:"transaction_id" json:"transaction_id"`
	GatewayStatus    string     `db:"gateway_status" json:"gateway_status"`
	NormalizedStatus string     `db:"normalized_status" json:"normalized_status"`
	ReferenceID      string     `db:"reference_id" json:"reference_id"`
	SettledAmount    int64      `db:"settled_amount" json:"settled_amount"`
	Currency         string     `db:"currency" json:"currency"`
	InvoiceID        *uuid.UUID `db:"invoice_id" json:"invoice_id,omitempty"`
	AppliedStatus    *string    `db:"applied_status" json:"applied_status,omitempty"`
	RawPayload       []byte     `db:"raw_payload" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
