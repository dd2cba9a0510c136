package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/praxisbill/praxisbill/internal/domain/tariff"
)

type Service struct {
	invoices InvoiceRepository
	tariffs  *tariff.Service
}

func NewService(invoices InvoiceRepository, tariffs *tariff.Service) *Service {
	return &Service{invoices: invoices, tariffs: tariffs}
}

func (s *Service) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.InvoiceNumber == "" {
		return fmt.Errorf("invoice_number is required")
	}
	if inv.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if inv.BillingEntityID == uuid.Nil {
		return fmt.Errorf("billing_entity_id is required")
	}
	if !validLawTypes[inv.LawType] {
		return fmt.Errorf("invalid law type: %s", inv.LawType)
	}
	if inv.TiersMode == "" {
		inv.TiersMode = TiersGarant
	}
	if !validTiersModes[inv.TiersMode] {
		return fmt.Errorf("invalid tiers mode: %s", inv.TiersMode)
	}
	if !s.tariffs.CantonKnown(inv.Canton) {
		return fmt.Errorf("unknown canton: %s", inv.Canton)
	}
	if inv.Currency == "" {
		inv.Currency = "CHF"
	}
	if inv.Status == "" {
		inv.Status = StatusDraft
	}
	if inv.Status != StatusDraft {
		return fmt.Errorf("new invoices start in %s, got %s", StatusDraft, inv.Status)
	}
	return s.invoices.Create(ctx, inv)
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	return s.invoices.GetByNumber(ctx, number)
}

func (s *Service) ListInvoices(ctx context.Context, status string, limit, offset int) ([]*Invoice, int, error) {
	if status != "" && status != StatusDraft && status != StatusPending && !IsTerminalStatus(status) {
		return nil, 0, fmt.Errorf("invalid status filter: %s", status)
	}
	return s.invoices.List(ctx, status, limit, offset)
}

// AddLineItem appends a billable service to a DRAFT invoice and recomputes
// the invoice total. When UnitPrice is zero and TaxPoints is set, the unit
// price is derived from the tariff engine at the invoice's canton.
func (s *Service) AddLineItem(ctx context.Context, li *LineItem) error {
	if li.InvoiceID == uuid.Nil {
		return fmt.Errorf("invoice_id is required")
	}
	if li.Code == "" {
		return fmt.Errorf("code is required")
	}
	if li.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	inv, err := s.invoices.GetByID(ctx, li.InvoiceID)
	if err != nil {
		return fmt.Errorf("load invoice: %w", err)
	}
	if inv.Status != StatusDraft {
		return fmt.Errorf("line items can only be added while the invoice is %s, invoice %s is %s",
			StatusDraft, inv.InvoiceNumber, inv.Status)
	}

	if li.TariffType == "" {
		li.TariffType = tariff.TypeMedical
	}
	if li.ExternalFactor == 0 {
		li.ExternalFactor = 1.0
	}
	if li.UnitPrice == 0 && li.TaxPoints != nil {
		unit, err := s.tariffs.Price(*li.TaxPoints, inv.Canton)
		if err != nil {
			return fmt.Errorf("price line item %s: %w", li.Code, err)
		}
		li.UnitPrice = unit
	}
	li.Amount = round2(li.Quantity * li.UnitPrice * li.ExternalFactor)

	if err := s.invoices.AddLineItem(ctx, li); err != nil {
		return err
	}
	return s.recomputeTotal(ctx, inv)
}

func (s *Service) recomputeTotal(ctx context.Context, inv *Invoice) error {
	items, err := s.invoices.ListLineItems(ctx, inv.ID)
	if err != nil {
		return err
	}
	var total float64
	for _, li := range items {
		total += li.Amount
	}
	inv.TotalAmount = round2(total)
	return s.invoices.Update(ctx, inv)
}

func (s *Service) ListLineItems(ctx context.Context, invoiceID uuid.UUID) ([]*LineItem, error) {
	return s.invoices.ListLineItems(ctx, invoiceID)
}

// FinalizeInvoice moves a DRAFT invoice to PENDING. An invoice without
// line items cannot be finalized. Finalizing an already PENDING invoice is
// a no-op.
func (s *Service) FinalizeInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusPending {
		return inv, nil
	}
	if !CanTransition(inv.Status, StatusPending) {
		return nil, &StatusTransitionError{From: inv.Status, To: StatusPending}
	}

	items, err := s.invoices.ListLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("invoice %s has no line items", inv.InvoiceNumber)
	}

	inv.Status = StatusPending
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// UpdateStatus moves an invoice along the status machine. paidAmount is
// recorded for PAID and PARTIAL_LOSS; pass nil otherwise. Re-applying the
// current status is a no-op, transitions outside the machine return a
// typed *StatusTransitionError.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string, paidAmount *float64) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == status {
		return inv, nil
	}
	if !CanTransition(inv.Status, status) {
		return nil, &StatusTransitionError{From: inv.Status, To: status}
	}

	inv.Status = status
	if paidAmount != nil {
		inv.PaidAmount = paidAmount
	}
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// AttachGatewayTransaction records the payment-gateway linkage on an
// invoice without touching its status.
func (s *Service) AttachGatewayTransaction(ctx context.Context, id uuid.UUID, transactionID string, paymentLink *string) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transactionID != "" {
		inv.GatewayTransactionID = &transactionID
	}
	if paymentLink != nil {
		inv.PaymentLink = paymentLink
	}
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}
