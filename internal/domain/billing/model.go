// Package billing holds invoices and their tariff-priced line items. An
// invoice is the unit everything downstream hangs off: document building,
// insurer submission, and payment reconciliation all key on it.
package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Invoice statuses. The machine is DRAFT -> PENDING -> one of the three
// terminal outcomes. Invoices are never deleted.
const (
	StatusDraft       = "DRAFT"
	StatusPending     = "PENDING"
	StatusPaid        = "PAID"
	StatusPartialLoss = "PARTIAL_LOSS"
	StatusRejected    = "REJECTED"
)

// Swiss insurance law types an invoice can be billed under.
const (
	LawKVG = "KVG" // mandatory health insurance
	LawUVG = "UVG" // accident insurance
	LawIVG = "IVG" // disability insurance
	LawMVG = "MVG" // military insurance
	LawVVG = "VVG" // supplementary (private) insurance
)

// Tiers modes. Garant bills the patient, payant bills the insurer.
const (
	TiersGarant = "TG"
	TiersPayant = "TP"
)

var validLawTypes = map[string]bool{
	LawKVG: true, LawUVG: true, LawIVG: true, LawMVG: true, LawVVG: true,
}

var validTiersModes = map[string]bool{
	TiersGarant: true, TiersPayant: true,
}

// ValidLawType reports whether s is a billable law type.
func ValidLawType(s string) bool { return validLawTypes[s] }

// Invoice maps to the invoices table.
type Invoice struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	InvoiceNumber        string     `db:"invoice_number" json:"invoice_number"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	BillingEntityID      uuid.UUID  `db:"billing_entity_id" json:"billing_entity_id"`
	StaffID              *uuid.UUID `db:"staff_id" json:"staff_id,omitempty"`
	LawType              string     `db:"law_type" json:"law_type"`
	TiersMode            string     `db:"tiers_mode" json:"tiers_mode"`
	Canton               string     `db:"canton" json:"canton"`
	Currency             string     `db:"currency" json:"currency"`
	TotalAmount          float64    `db:"total_amount" json:"total_amount"`
	PaidAmount           *float64   `db:"paid_amount" json:"paid_amount,omitempty"`
	Status               string     `db:"status" json:"status"`
	GatewayTransactionID *string    `db:"gateway_transaction_id" json:"gateway_transaction_id,omitempty"`
	PaymentLink          *string    `db:"payment_link" json:"payment_link,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// LineItem maps to the invoice_line_items table. UnitPrice is the
// canton-priced CHF amount per unit; TaxPoints is kept when the price was
// derived from the tariff catalog.
type LineItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	InvoiceID      uuid.UUID `db:"invoice_id" json:"invoice_id"`
	TariffType     string    `db:"tariff_type" json:"tariff_type"`
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	Quantity       float64   `db:"quantity" json:"quantity"`
	Session        int       `db:"session" json:"session"`
	UnitPrice      float64   `db:"unit_price" json:"unit_price"`
	TaxPoints      *float64  `db:"tax_points" json:"tax_points,omitempty"`
	ExternalFactor float64   `db:"external_factor" json:"external_factor"`
	DateOfService  time.Time `db:"date_of_service" json:"date_of_service"`
	SideCode       *string   `db:"side_code" json:"side_code,omitempty"`
	ProviderGLN    *string   `db:"provider_gln" json:"provider_gln,omitempty"`
	Amount         float64   `db:"amount" json:"amount"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// invoiceTransitions lists the allowed next statuses per state. Terminal
// states have no entry.
var invoiceTransitions = map[string][]string{
	StatusDraft:   {StatusPending},
	StatusPending: {StatusPaid, StatusPartialLoss, StatusRejected},
}

// CanTransition reports whether an invoice may move between the two
// statuses. Re-applying the current status is always allowed and treated
// as a no-op by callers.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether the status admits no further
// transitions.
func IsTerminalStatus(s string) bool {
	return s == StatusPaid || s == StatusPartialLoss || s == StatusRejected
}

// StatusTransitionError reports an attempted transition outside the
// invoice status machine.
type StatusTransitionError struct {
	From string
	To   string
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("invalid invoice status transition %s -> %s", e.From, e.To)
}

// round2 rounds half-up to two decimals. The epsilon absorbs binary float
// representation error so values like 2.675 round up, not down.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5+1e-9) / 100
}
