package payments

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/praxisbill/praxisbill/internal/domain/billing"
)

// Incoming is one gateway callback after permissive field extraction.
// SettledAmount is in minor units (rappen).
type Incoming struct {
	TransactionID string
	Status        string
	ReferenceID   string
	SettledAmount int64
	Currency      string
	RawPayload    []byte
}

// Metrics receives the payment operation counters. The telemetry
// provider satisfies it; the default discards everything.
type Metrics interface {
	OperationCounter(entity, operation string)
}

type noopMetrics struct{}

func (noopMetrics) OperationCounter(string, string) {}

type Service struct {
	events   EventRepository
	invoices *billing.Service
	logger   zerolog.Logger
	metrics  Metrics
}

func NewService(events EventRepository, invoices *billing.Service, logger zerolog.Logger) *Service {
	return &Service{events: events, invoices: invoices, logger: logger, metrics: noopMetrics{}}
}

// SetMetrics attaches the telemetry sink. Safe to leave unset.
func (s *Service) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// Process records one gateway event exactly once, keyed by transaction
// id, and settles the matched invoice. A replayed transaction returns the
// stored event and false without touching anything. Events that match no
// invoice are stored unmatched for triage, never discarded.
func (s *Service) Process(ctx context.Context, in Incoming) (*Event, bool, error) {
	if in.TransactionID == "" {
		return nil, false, fmt.Errorf("transaction id is required")
	}
	if existing, err := s.events.GetByTransactionID(ctx, in.TransactionID); err == nil {
		return existing, false, nil
	}

	ev := &Event{
		TransactionID:    in.TransactionID,
		GatewayStatus:    in.Status,
		NormalizedStatus: NormalizeStatus(in.Status),
		ReferenceID:      in.ReferenceID,
		SettledAmount:    in.SettledAmount,
		Currency:         in.Currency,
		RawPayload:       in.RawPayload,
	}
	if ev.Currency == "" {
		ev.Currency = "CHF"
	}

	var inv *billing.Invoice
	if in.ReferenceID != "" {
		if found, err := s.invoices.GetInvoiceByNumber(ctx, in.ReferenceID); err == nil {
			inv = found
			ev.InvoiceID = &found.ID
		}
	}

	switch {
	case inv == nil:
		s.metrics.OperationCounter("payment", "unmatched")
		s.logger.Warn().
			Str("transaction_id", in.TransactionID).
			Str("reference", in.ReferenceID).
			Msg("payment event matches no invoice, parked for triage")
	case ev.NormalizedStatus == StatusConfirmed:
		applied, err := s.settle(ctx, inv, ev)
		if err != nil {
			s.logger.Error().Err(err).
				Str("transaction_id", in.TransactionID).
				Str("invoice_number", inv.InvoiceNumber).
				Msg("failed to settle invoice from payment event")
		} else {
			ev.AppliedStatus = &applied
			s.metrics.OperationCounter("payment", "applied")
			s.logger.Info().
				Str("transaction_id", in.TransactionID).
				Str("invoice_number", inv.InvoiceNumber).
				Str("applied_status", applied).
				Int64("settled_amount", ev.SettledAmount).
				Msg("payment settled")
		}
	case ev.NormalizedStatus == StatusFailed:
		s.logger.Info().
			Str("transaction_id", in.TransactionID).
			Str("invoice_number", inv.InvoiceNumber).
			Str("gateway_status", in.Status).
			Msg("payment failed upstream, invoice untouched")
	}

	if err := s.events.Insert(ctx, ev); err != nil {
		return nil, false, fmt.Errorf("persist payment event: %w", err)
	}
	return ev, true, nil
}

// settle compares the settled minor units against the invoice total. One
// cent or more short (gateway fee deductions, partial card captures)
// means PARTIAL_LOSS with the exact settled amount on record; anything
// else is PAID in full.
func (s *Service) settle(ctx context.Context, inv *billing.Invoice, ev *Event) (string, error) {
	totalMinor := int64(math.Round(inv.TotalAmount * 100))
	paid := float64(ev.SettledAmount) / 100

	target := billing.StatusPaid
	if ev.SettledAmount <= totalMinor-1 {
		target = billing.StatusPartialLoss
	}
	if _, err := s.invoices.UpdateStatus(ctx, inv.ID, target, &paid); err != nil {
		return "", err
	}
	return target, nil
}

// ListEvents returns recorded gateway events, optionally only those
// without an invoice link.
func (s *Service) ListEvents(ctx context.Context, unmatchedOnly bool, limit, offset int) ([]*Event, int, error) {
	return s.events.List(ctx, unmatchedOnly, limit, offset)
}
