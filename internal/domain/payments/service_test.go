package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxisbill/praxisbill/internal/domain/billing"
	"github.com/praxisbill/praxisbill/internal/domain/tariff"
)

// -- Mock Repositories --

type mockEventRepo struct {
	events map[uuid.UUID]*Event
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{events: make(map[uuid.UUID]*Event)}
}

func (m *mockEventRepo) Insert(_ context.Context, e *Event) error {
	for _, existing := range m.events {
		if existing.TransactionID == e.TransactionID {
			return fmt.Errorf("duplicate transaction id")
		}
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.events[e.ID] = e
	return nil
}

func (m *mockEventRepo) GetByID(_ context.Context, id uuid.UUID) (*Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return e, nil
}

func (m *mockEventRepo) GetByTransactionID(_ context.Context, transactionID string) (*Event, error) {
	for _, e := range m.events {
		if e.TransactionID == transactionID {
			return e, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockEventRepo) List(_ context.Context, unmatchedOnly bool, limit, offset int) ([]*Event, int, error) {
	var out []*Event
	for _, e := range m.events {
		if unmatchedOnly && e.InvoiceID != nil {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

type mockInvoiceRepo struct {
	invoices map[uuid.UUID]*billing.Invoice
	items    map[uuid.UUID][]*billing.LineItem
}

func newMockInvoiceRepo() *mockInvoiceRepo {
	return &mockInvoiceRepo{
		invoices: make(map[uuid.UUID]*billing.Invoice),
		items:    make(map[uuid.UUID][]*billing.LineItem),
	}
}

func (m *mockInvoiceRepo) Create(_ context.Context, inv *billing.Invoice) error {
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = time.Now()
	m.invoices[inv.ID] = inv
	return nil
}

func (m *mockInvoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return inv, nil
}

func (m *mockInvoiceRepo) GetByNumber(_ context.Context, number string) (*billing.Invoice, error) {
	for _, inv := range m.invoices {
		if inv.InvoiceNumber == number {
			return inv, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockInvoiceRepo) Update(_ context.Context, inv *billing.Invoice) error {
	if _, ok := m.invoices[inv.ID]; !ok {
		return fmt.Errorf("not found")
	}
	inv.UpdatedAt = time.Now()
	m.invoices[inv.ID] = inv
	return nil
}

func (m *mockInvoiceRepo) List(_ context.Context, status string, limit, offset int) ([]*billing.Invoice, int, error) {
	var out []*billing.Invoice
	for _, inv := range m.invoices {
		if status == "" || inv.Status == status {
			out = append(out, inv)
		}
	}
	return out, len(out), nil
}

func (m *mockInvoiceRepo) AddLineItem(_ context.Context, li *billing.LineItem) error {
	li.ID = uuid.New()
	li.CreatedAt = time.Now()
	m.items[li.InvoiceID] = append(m.items[li.InvoiceID], li)
	return nil
}

func (m *mockInvoiceRepo) ListLineItems(_ context.Context, invoiceID uuid.UUID) ([]*billing.LineItem, error) {
	return m.items[invoiceID], nil
}

// -- Helpers --

func newTestService(t *testing.T) (*Service, *mockEventRepo, *billing.Service) {
	t.Helper()
	ts, err := tariff.NewService(tariff.Config{CostNeutralityFactor: 1.0, DefaultCanton: "ZH"})
	if err != nil {
		t.Fatalf("failed to create tariff service: %v", err)
	}
	invoices := billing.NewService(newMockInvoiceRepo(), ts)
	events := newMockEventRepo()
	return NewService(events, invoices, zerolog.Nop()), events, invoices
}

// pendingInvoice creates a finalized invoice with the given total.
func pendingInvoice(t *testing.T, invoices *billing.Service, number string, total float64) *billing.Invoice {
	t.Helper()
	inv := &billing.Invoice{
		InvoiceNumber:   number,
		PatientID:       uuid.New(),
		BillingEntityID: uuid.New(),
		LawType:         billing.LawKVG,
		TiersMode:       billing.TiersGarant,
		Canton:          "ZH",
	}
	if err := invoices.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	li := &billing.LineItem{
		InvoiceID:     inv.ID,
		Code:          "00.0010",
		Name:          "Konsultation",
		Quantity:      1,
		UnitPrice:     total,
		DateOfService: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
	if err := invoices.AddLineItem(context.Background(), li); err != nil {
		t.Fatalf("AddLineItem: %v", err)
	}
	finalized, err := invoices.FinalizeInvoice(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("FinalizeInvoice: %v", err)
	}
	return finalized
}

func confirmedEvent(transactionID, reference string, settled int64) Incoming {
	return Incoming{
		TransactionID: transactionID,
		Status:        "confirmed",
		ReferenceID:   reference,
		SettledAmount: settled,
		Currency:      "CHF",
		RawPayload:    []byte(`{}`),
	}
}

// -- Tests --

func TestProcess_FullSettlementMarksPaid(t *testing.T) {
	svc, _, invoices := newTestService(t)
	inv := pendingInvoice(t, invoices, "2026-0042", 250.00)

	ev, inserted, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2026-0042", 25000))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !inserted {
		t.Error("event not inserted")
	}
	if ev.AppliedStatus == nil || *ev.AppliedStatus != billing.StatusPaid {
		t.Errorf("applied status = %v, want %q", ev.AppliedStatus, billing.StatusPaid)
	}
	if ev.InvoiceID == nil || *ev.InvoiceID != inv.ID {
		t.Errorf("event invoice id = %v, want %s", ev.InvoiceID, inv.ID)
	}

	got, _ := invoices.GetInvoice(context.Background(), inv.ID)
	if got.Status != billing.StatusPaid {
		t.Errorf("invoice status = %q, want %q", got.Status, billing.StatusPaid)
	}
	if got.PaidAmount == nil || *got.PaidAmount != 250.00 {
		t.Errorf("paid amount = %v, want 250.00", got.PaidAmount)
	}
}

// A settlement short of the invoice total, the typical gateway fee
// deduction: 245.00 arrives against a 250.00 invoice.
func TestProcess_GatewayFeeShortfallIsPartialLoss(t *testing.T) {
	svc, _, invoices := newTestService(t)
	inv := pendingInvoice(t, invoices, "2026-0042", 250.00)

	ev, _, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2026-0042", 24500))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ev.AppliedStatus == nil || *ev.AppliedStatus != billing.StatusPartialLoss {
		t.Errorf("applied status = %v, want %q", ev.AppliedStatus, billing.StatusPartialLoss)
	}

	got, _ := invoices.GetInvoice(context.Background(), inv.ID)
	if got.Status != billing.StatusPartialLoss {
		t.Errorf("invoice status = %q, want %q", got.Status, billing.StatusPartialLoss)
	}
	// the exact settled amount, not the invoice total
	if got.PaidAmount == nil || *got.PaidAmount != 245.00 {
		t.Errorf("paid amount = %v, want 245.00", got.PaidAmount)
	}
}

func TestProcess_OneCentShortIsPartialLoss(t *testing.T) {
	svc, _, invoices := newTestService(t)
	inv := pendingInvoice(t, invoices, "2026-0042", 250.00)

	if _, _, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2026-0042", 24999)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := invoices.GetInvoice(context.Background(), inv.ID)
	if got.Status != billing.StatusPartialLoss {
		t.Errorf("invoice status = %q, want %q", got.Status, billing.StatusPartialLoss)
	}
	if got.PaidAmount == nil || *got.PaidAmount != 249.99 {
		t.Errorf("paid amount = %v, want 249.99", got.PaidAmount)
	}
}

func TestProcess_OverpaymentIsPaidInFull(t *testing.T) {
	svc, _, invoices := newTestService(t)
	inv := pendingInvoice(t, invoices, "2026-0042", 250.00)

	if _, _, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2026-0042", 25050)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := invoices.GetInvoice(context.Background(), inv.ID)
	if got.Status != billing.StatusPaid {
		t.Errorf("invoice status = %q, want %q", got.Status, billing.StatusPaid)
	}
	if got.PaidAmount == nil || *got.PaidAmount != 250.50 {
		t.Errorf("paid amount = %v, want 250.50", got.PaidAmount)
	}
}

func TestProcess_ReplayIsNoop(t *testing.T) {
	svc, events, invoices := newTestService(t)
	inv := pendingInvoice(t, invoices, "2026-0042", 250.00)

	first, inserted, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2026-0042", 25000))
	if err != nil || !inserted {
		t.Fatalf("first Process inserted=%v err=%v", inserted, err)
	}

	second, inserted, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2026-0042", 25000))
	if err != nil {
		t.Fatalf("replay Process: %v", err)
	}
	if inserted {
		t.Error("replay was inserted, want dedupe")
	}
	if second.ID != first.ID {
		t.Errorf("replay returned %s, want the original event %s", second.ID, first.ID)
	}
	if len(events.events) != 1 {
		t.Errorf("events = %d, want 1", len(events.events))
	}

	got, _ := invoices.GetInvoice(context.Background(), inv.ID)
	if got.Status != billing.StatusPaid {
		t.Errorf("invoice status = %q, want %q", got.Status, billing.StatusPaid)
	}
}

func TestProcess_FailedPaymentLeavesInvoiceUntouched(t *testing.T) {
	svc, _, invoices := newTestService(t)
	inv := pendingInvoice(t, invoices, "2026-0042", 250.00)

	in := confirmedEvent("tx-1", "2026-0042", 0)
	in.Status = "failed"
	ev, _, err := svc.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ev.AppliedStatus != nil {
		t.Errorf("applied status = %v, want nil", ev.AppliedStatus)
	}
	if ev.NormalizedStatus != StatusFailed {
		t.Errorf("normalized status = %q, want %q", ev.NormalizedStatus, StatusFailed)
	}

	got, _ := invoices.GetInvoice(context.Background(), inv.ID)
	if got.Status != billing.StatusPending {
		t.Errorf("invoice status = %q, want %q", got.Status, billing.StatusPending)
	}
}

func TestProcess_UnknownReferenceParksForTriage(t *testing.T) {
	svc, _, _ := newTestService(t)

	ev, _, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2099-9999", 25000))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ev.InvoiceID != nil {
		t.Errorf("event invoice id = %v, want nil", ev.InvoiceID)
	}
	if ev.AppliedStatus != nil {
		t.Errorf("applied status = %v, want nil", ev.AppliedStatus)
	}

	unmatched, total, err := svc.ListEvents(context.Background(), true, 50, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != 1 || len(unmatched) != 1 {
		t.Fatalf("unmatched = %d (total %d), want 1", len(unmatched), total)
	}
}

func TestProcess_SettleConflictStillRecordsEvent(t *testing.T) {
	svc, events, invoices := newTestService(t)

	// still a draft: DRAFT -> PAID is not a legal move
	inv := &billing.Invoice{
		InvoiceNumber:   "2026-0042",
		PatientID:       uuid.New(),
		BillingEntityID: uuid.New(),
		LawType:         billing.LawKVG,
		Canton:          "ZH",
	}
	if err := invoices.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	ev, inserted, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2026-0042", 25000))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !inserted {
		t.Error("event not inserted")
	}
	if ev.AppliedStatus != nil {
		t.Errorf("applied status = %v, want nil after settle conflict", ev.AppliedStatus)
	}
	if len(events.events) != 1 {
		t.Errorf("events = %d, want 1", len(events.events))
	}

	got, _ := invoices.GetInvoice(context.Background(), inv.ID)
	if got.Status != billing.StatusDraft {
		t.Errorf("invoice status = %q, want %q", got.Status, billing.StatusDraft)
	}
}

func TestProcess_PendingStatusRecordedOnly(t *testing.T) {
	svc, events, invoices := newTestService(t)
	inv := pendingInvoice(t, invoices, "2026-0042", 250.00)

	in := confirmedEvent("tx-1", "2026-0042", 25000)
	in.Status = "authorized"
	ev, _, err := svc.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ev.NormalizedStatus != StatusPending {
		t.Errorf("normalized status = %q, want %q", ev.NormalizedStatus, StatusPending)
	}
	if ev.AppliedStatus != nil {
		t.Errorf("applied status = %v, want nil", ev.AppliedStatus)
	}
	if len(events.events) != 1 {
		t.Errorf("events = %d, want 1", len(events.events))
	}

	got, _ := invoices.GetInvoice(context.Background(), inv.ID)
	if got.Status != billing.StatusPending {
		t.Errorf("invoice status = %q, want %q", got.Status, billing.StatusPending)
	}
}

func TestProcess_RequiresTransactionID(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, _, err := svc.Process(context.Background(), Incoming{Status: "confirmed"}); err == nil {
		t.Fatal("expected error for missing transaction id")
	}
}

// captureMetrics records every counter it is handed, keyed as
// entity/operation.
type captureMetrics struct {
	counters map[string]int
}

func (m *captureMetrics) OperationCounter(entity, operation string) {
	m.counters[entity+"/"+operation]++
}

func TestProcess_CountsAppliedAndUnmatched(t *testing.T) {
	svc, _, invoices := newTestService(t)
	metrics := &captureMetrics{counters: map[string]int{}}
	svc.SetMetrics(metrics)
	pendingInvoice(t, invoices, "2026-0042", 250.00)

	if _, _, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2026-0042", 25000)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, _, err := svc.Process(context.Background(), confirmedEvent("tx-2", "2099-9999", 25000)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := metrics.counters["payment/applied"]; got != 1 {
		t.Errorf("applied counter = %d, want 1", got)
	}
	if got := metrics.counters["payment/unmatched"]; got != 1 {
		t.Errorf("unmatched counter = %d, want 1", got)
	}

	// a replay of the settled transaction is deduplicated, not recounted
	if _, _, err := svc.Process(context.Background(), confirmedEvent("tx-1", "2026-0042", 25000)); err != nil {
		t.Fatalf("replay Process: %v", err)
	}
	if got := metrics.counters["payment/applied"]; got != 1 {
		t.Errorf("applied counter after replay = %d, want 1", got)
	}
}
