package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxisbill/praxisbill/internal/domain/billing"
	"github.com/praxisbill/praxisbill/internal/platform/clearing"
	"github.com/praxisbill/praxisbill/internal/platform/invoicedoc"
)

// Transport is the clearing-proxy surface the submission domain needs.
// *clearing.Client satisfies it; tests substitute fakes.
type Transport interface {
	Submit(ctx context.Context, document []byte) (string, error)
	CheckStatus(ctx context.Context, messageID string) (clearing.StatusResult, error)
	ListDownloads(ctx context.Context) ([]clearing.Download, error)
	FetchDownload(ctx context.Context, ref string) ([]byte, error)
	ConfirmDownload(ctx context.Context, ref string) error
	ListNotifications(ctx context.Context) ([]clearing.Notification, error)
	ConfirmNotification(ctx context.Context, id string) error
}

// TransportError wraps a clearing-proxy failure during submission. The
// submission stays pending without a message id; the next submit retries
// the upload with the same row.
type TransportError struct{ Err error }

func (e *TransportError) Error() string { return "clearing transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Metrics receives the domain operation counters and gauges. The
// telemetry provider satisfies it; the default discards everything.
type Metrics interface {
	OperationCounter(entity, operation string)
	SetGauge(name string, val int64)
}

type noopMetrics struct{}

func (noopMetrics) OperationCounter(string, string) {}
func (noopMetrics) SetGauge(string, int64)          {}

type Service struct {
	submissions   SubmissionRepository
	responses     ResponseRepository
	notifications NotificationRepository
	invoices      *billing.Service
	builder       *invoicedoc.Builder
	transport     Transport
	logger        zerolog.Logger
	metrics       Metrics
}

func NewService(
	submissions SubmissionRepository,
	responses ResponseRepository,
	notifications NotificationRepository,
	invoices *billing.Service,
	builder *invoicedoc.Builder,
	transport Transport,
	logger zerolog.Logger,
) *Service {
	return &Service{
		submissions:   submissions,
		responses:     responses,
		notifications: notifications,
		invoices:      invoices,
		builder:       builder,
		transport:     transport,
		logger:        logger,
		metrics:       noopMetrics{},
	}
}

// SetMetrics attaches the telemetry sink. Safe to leave unset.
func (s *Service) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// SubmitRequest carries the invoice reference plus every party block the
// document needs. The referenced patient/staff/insurer data is passed in
// by the caller, never fetched from another system.
type SubmitRequest struct {
	InvoiceID uuid.UUID                  `json:"invoice_id"`
	Patient   invoicedoc.PatientInfo     `json:"patient"`
	Biller    invoicedoc.PartyInfo       `json:"biller"`
	Provider  invoicedoc.PartyInfo       `json:"provider"`
	Insurer   *invoicedoc.PartyInfo      `json:"insurer,omitempty"`
	Staff     invoicedoc.StaffInfo       `json:"staff"`
	Diagnoses []invoicedoc.DiagnosisInput `json:"diagnoses,omitempty"`
}

// SubmitResult is the submission plus the builder warnings, which the
// caller surfaces for operator review.
type SubmitResult struct {
	Submission *Submission `json:"submission"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// Submit builds the invoice document and uploads it to the clearing
// proxy. A DRAFT invoice is finalized on the way. At most one submission
// per invoice may be in flight; a prior pending submission that never
// obtained a message id is reused so a failed upload can simply be
// retried.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	inv, err := s.invoices.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}

	existing, err := s.submissions.ListByInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	var sub *Submission
	for _, e := range existing {
		if IsTerminal(e.Status) {
			continue
		}
		if e.Status == StatusPending && e.MessageID == nil {
			sub = e
			break
		}
		return nil, &ActiveSubmissionError{InvoiceID: inv.ID, SubmissionID: e.ID, Status: e.Status}
	}

	switch inv.Status {
	case billing.StatusDraft:
		if inv, err = s.invoices.FinalizeInvoice(ctx, inv.ID); err != nil {
			return nil, fmt.Errorf("finalize invoice: %w", err)
		}
	case billing.StatusPending:
		// already finalized, possibly by an earlier failed submit
	default:
		return nil, fmt.Errorf("invoice %s is %s and can no longer be submitted", inv.InvoiceNumber, inv.Status)
	}

	items, err := s.invoices.ListLineItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	doc, err := s.builder.Build(buildInput(inv, items, req))
	if err != nil {
		return nil, err
	}

	if sub == nil {
		sub = &Submission{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			LawType:       inv.LawType,
			Status:        StatusPending,
		}
		if err := s.submissions.Create(ctx, sub); err != nil {
			return nil, err
		}
	}

	messageID, err := s.transport.Submit(ctx, doc.XML)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	now := time.Now()
	sub.MessageID = &messageID
	sub.TransmittedAt = &now
	if err := s.submissions.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist message id: %w", err)
	}

	updated, _, err := s.ApplyStatus(ctx, sub.ID, StatusTransmitted, "", "")
	if err != nil {
		return nil, err
	}

	s.metrics.OperationCounter("submission", "transmitted")
	s.logger.Info().
		Str("invoice_number", inv.InvoiceNumber).
		Str("submission_id", updated.ID.String()).
		Str("message_id", messageID).
		Int("warnings", len(doc.Warnings)).
		Msg("invoice submitted to clearing proxy")

	return &SubmitResult{Submission: updated, Warnings: doc.Warnings}, nil
}

// buildInput maps the stored invoice and line items plus the request's
// party blocks onto the document builder input.
func buildInput(inv *billing.Invoice, items []*billing.LineItem, req SubmitRequest) invoicedoc.Input {
	services := make([]invoicedoc.ServiceLine, 0, len(items))
	for _, li := range items {
		services = append(services, invoicedoc.ServiceLine{
			TariffType:     li.TariffType,
			Code:           li.Code,
			Name:           li.Name,
			Quantity:       li.Quantity,
			Session:        li.Session,
			UnitPrice:      li.UnitPrice,
			ExternalFactor: li.ExternalFactor,
			DateOfService:  li.DateOfService,
			SideCode:       li.SideCode,
			ProviderGLN:    li.ProviderGLN,
		})
	}
	return invoicedoc.Input{
		Invoice: invoicedoc.InvoiceHeader{
			Number:      inv.InvoiceNumber,
			Date:        inv.CreatedAt,
			LawType:     inv.LawType,
			TiersMode:   inv.TiersMode,
			Canton:      inv.Canton,
			Currency:    inv.Currency,
			TotalAmount: inv.TotalAmount,
		},
		Services:  services,
		Patient:   req.Patient,
		Biller:    req.Biller,
		Provider:  req.Provider,
		Insurer:   req.Insurer,
		Staff:     req.Staff,
		Diagnoses: req.Diagnoses,
	}
}

// ApplyStatus moves a submission along the status machine. Same-status
// and backward applications are no-ops (reconciliation signals arrive out
// of order), unknown statuses are errors, and every applied transition
// appends exactly one history entry. A rejection propagates to the
// invoice. The bool reports whether a transition was applied.
func (s *Service) ApplyStatus(ctx context.Context, id uuid.UUID, newStatus, code, message string) (*Submission, bool, error) {
	if !KnownStatus(newStatus) {
		return nil, false, fmt.Errorf("unknown submission status: %s", newStatus)
	}
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !advances(sub.Status, newStatus) {
		return sub, false, nil
	}

	prev := sub.Status
	sub.Status = newStatus
	if code != "" {
		sub.LastResponseCode = &code
	}
	if message != "" {
		sub.LastResponseMessage = &message
	}
	if err := s.submissions.Update(ctx, sub); err != nil {
		return nil, false, err
	}

	h := &HistoryEntry{SubmissionID: sub.ID, PreviousStatus: prev, NewStatus: newStatus}
	if code != "" {
		h.ResponseCode = &code
	}
	if message != "" {
		h.ResponseMessage = &message
	}
	if err := s.submissions.AppendHistory(ctx, h); err != nil {
		return nil, false, err
	}

	if newStatus == StatusRejected {
		if _, err := s.invoices.UpdateStatus(ctx, sub.InvoiceID, billing.StatusRejected, nil); err != nil {
			s.logger.Error().Err(err).
				Str("invoice_id", sub.InvoiceID.String()).
				Msg("failed to propagate rejection to invoice")
		}
	}
	return sub, true, nil
}

func (s *Service) GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return s.submissions.GetByID(ctx, id)
}

// CountOpen counts submissions that have not reached a terminal status.
func (s *Service) CountOpen(ctx context.Context) (int, error) {
	return s.submissions.CountOpen(ctx)
}

func (s *Service) ListSubmissions(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error) {
	if status != "" && !KnownStatus(status) {
		return nil, 0, fmt.Errorf("invalid status filter: %s", status)
	}
	return s.submissions.List(ctx, status, limit, offset)
}

func (s *Service) ListHistory(ctx context.Context, submissionID uuid.UUID) ([]*HistoryEntry, error) {
	return s.submissions.ListHistory(ctx, submissionID)
}

// RecordResponse stores one drained download exactly once, keyed by the
// upstream message id. The bool is false when the record already existed.
func (s *Service) RecordResponse(ctx context.Context, rec *ResponseRecord) (*ResponseRecord, bool, error) {
	if rec.MessageID == "" {
		return nil, false, fmt.Errorf("message_id is required")
	}
	if existing, err := s.responses.GetByMessageID(ctx, rec.MessageID); err == nil {
		return existing, false, nil
	}
	if err := s.responses.Insert(ctx, rec); err != nil {
		return nil, false, err
	}
	if rec.SubmissionID != nil {
		s.metrics.OperationCounter("download", "matched")
	} else {
		s.metrics.OperationCounter("download", "unmatched")
	}
	return rec, true, nil
}

// RecordNotification mirrors RecordResponse for the notification inbox.
func (s *Service) RecordNotification(ctx context.Context, n *NotificationRecord) (*NotificationRecord, bool, error) {
	if n.NotificationID == "" {
		return nil, false, fmt.Errorf("notification_id is required")
	}
	if existing, err := s.notifications.GetByNotificationID(ctx, n.NotificationID); err == nil {
		return existing, false, nil
	}
	if err := s.notifications.Insert(ctx, n); err != nil {
		return nil, false, err
	}
	return n, true, nil
}

// statusForResponse maps a parsed response outcome to the submission
// status it implies. Unknown outcomes imply nothing and park in triage.
func statusForResponse(responseType string) (string, bool) {
	switch responseType {
	case clearing.ResponseAccepted:
		return StatusAccepted, true
	case clearing.ResponseRejected:
		return StatusRejected, true
	case clearing.ResponsePending:
		return StatusDelivered, true
	default:
		return "", false
	}
}

// ListUnmatchedResponses returns responses waiting in the triage queue.
func (s *Service) ListUnmatchedResponses(ctx context.Context, limit, offset int) ([]*ResponseRecord, int, error) {
	return s.responses.ListUnmatched(ctx, limit, offset)
}

// ResolveResponse manually links a triaged response to a submission and,
// when applyStatus is set, applies the status the response implies.
func (s *Service) ResolveResponse(ctx context.Context, responseID, submissionID uuid.UUID, applyStatus bool) (*ResponseRecord, error) {
	rec, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return nil, fmt.Errorf("load response: %w", err)
	}
	if rec.SubmissionID != nil {
		return nil, fmt.Errorf("response %s is already resolved", responseID)
	}
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if err := s.responses.SetSubmission(ctx, rec.ID, sub.ID); err != nil {
		return nil, err
	}
	rec.SubmissionID = &sub.ID

	if applyStatus {
		if st, ok := statusForResponse(rec.ResponseType); ok {
			code, message := "", ""
			if rec.Explanation != nil {
				message = *rec.Explanation
			}
			if _, _, err := s.ApplyStatus(ctx, sub.ID, st, code, message); err != nil {
				return nil, err
			}
		}
	}

	s.logger.Info().
		Str("response_id", rec.ID.String()).
		Str("submission_id", sub.ID.String()).
		Msg("triaged response resolved")
	return rec, nil
}

// ListUnmatchedNotifications returns notifications without a submission
// link.
func (s *Service) ListUnmatchedNotifications(ctx context.Context, limit, offset int) ([]*NotificationRecord, int, error) {
	return s.notifications.ListUnmatched(ctx, limit, offset)
}

// ResolveNotification manually links a triaged notification to a
// submission.
func (s *Service) ResolveNotification(ctx context.Context, notificationID, submissionID uuid.UUID) (*NotificationRecord, error) {
	n, err := s.notifications.GetByID(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("load notification: %w", err)
	}
	if n.SubmissionID != nil {
		return nil, fmt.Errorf("notification %s is already resolved", notificationID)
	}
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if err := s.notifications.SetSubmission(ctx, n.ID, sub.ID); err != nil {
		return nil, err
	}
	n.SubmissionID = &sub.ID
	return n, nil
}
