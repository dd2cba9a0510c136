package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/praxisbill/praxisbill/internal/platform/clearing"
)

func newHandlerFixture(t *testing.T) (*echo.Echo, *fixture) {
	t.Helper()
	f := newFixture(t)
	h := NewHandler(f.svc)

	e := echo.New()
	e.POST("/api/invoices/:id/submissions", h.Submit)
	e.GET("/api/submissions", h.ListSubmissions)
	e.GET("/api/submissions/:id", h.GetSubmission)
	e.GET("/api/submissions/:id/history", h.ListHistory)
	e.GET("/api/triage/responses", h.ListUnmatchedResponses)
	e.POST("/api/triage/responses/:id/resolve", h.ResolveResponse)
	e.GET("/api/triage/notifications", h.ListUnmatchedNotifications)
	e.POST("/api/triage/notifications/:id/resolve", h.ResolveNotification)
	return e, f
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func submitBody(t *testing.T, invoiceID uuid.UUID) string {
	t.Helper()
	raw, err := json.Marshal(submitRequest(invoiceID))
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return string(raw)
}

func TestSubmitHandler(t *testing.T) {
	e, f := newHandlerFixture(t)
	inv := draftInvoice(t, f, "2026-0042")

	rec := doJSON(t, e, http.MethodPost, "/api/invoices/"+inv.ID.String()+"/submissions", submitBody(t, inv.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var res SubmitResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Submission == nil {
		t.Fatal("response carries no submission")
	}
	if res.Submission.Status != StatusTransmitted {
		t.Errorf("status = %q, want %q", res.Submission.Status, StatusTransmitted)
	}
	if res.Submission.MessageID == nil || *res.Submission.MessageID != "tr-0001" {
		t.Errorf("message id = %v, want tr-0001", res.Submission.MessageID)
	}
}

func TestSubmitHandler_ConflictOnActiveSubmission(t *testing.T) {
	e, f := newHandlerFixture(t)
	inv := draftInvoice(t, f, "2026-0042")

	if rec := doJSON(t, e, http.MethodPost, "/api/invoices/"+inv.ID.String()+"/submissions", submitBody(t, inv.ID)); rec.Code != http.StatusCreated {
		t.Fatalf("first submit: expected 201, got %d", rec.Code)
	}

	rec := doJSON(t, e, http.MethodPost, "/api/invoices/"+inv.ID.String()+"/submissions", submitBody(t, inv.ID))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitHandler_BadGatewayOnTransportFailure(t *testing.T) {
	e, f := newHandlerFixture(t)
	inv := draftInvoice(t, f, "2026-0042")
	f.transport.submitErr = fmt.Errorf("connection refused")

	rec := doJSON(t, e, http.MethodPost, "/api/invoices/"+inv.ID.String()+"/submissions", submitBody(t, inv.ID))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitHandler_UnprocessableOnBuildFailure(t *testing.T) {
	e, f := newHandlerFixture(t)
	inv := draftInvoice(t, f, "2026-0042")

	req := submitRequest(inv.ID)
	req.Patient.FamilyName = ""
	raw, _ := json.Marshal(req)

	rec := doJSON(t, e, http.MethodPost, "/api/invoices/"+inv.ID.String()+"/submissions", string(raw))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitHandler_InvalidID(t *testing.T) {
	e, _ := newHandlerFixture(t)
	rec := doJSON(t, e, http.MethodPost, "/api/invoices/not-a-uuid/submissions", "{}")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetSubmissionHandler(t *testing.T) {
	e, f := newHandlerFixture(t)
	sub := transmitted(t, f, "2026-0042")

	rec := doJSON(t, e, http.MethodGet, "/api/submissions/"+sub.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != sub.ID {
		t.Errorf("id = %s, want %s", got.ID, sub.ID)
	}

	rec = doJSON(t, e, http.MethodGet, "/api/submissions/"+uuid.New().String(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodGet, "/api/submissions/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListSubmissionsHandler_StatusFilter(t *testing.T) {
	e, f := newHandlerFixture(t)
	transmitted(t, f, "2026-0001")
	sub := transmitted(t, f, "2026-0002")
	if _, _, err := f.svc.ApplyStatus(context.Background(), sub.ID, StatusAccepted, "", ""); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	rec := doJSON(t, e, http.MethodGet, "/api/submissions?status=accepted", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data  []Submission `json:"data"`
		Total int          `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Fatalf("accepted = %d (total %d), want 1", len(resp.Data), resp.Total)
	}
	if resp.Data[0].InvoiceNumber != "2026-0002" {
		t.Errorf("filtered submission = %q, want 2026-0002", resp.Data[0].InvoiceNumber)
	}

	rec = doJSON(t, e, http.MethodGet, "/api/submissions?status=NONSENSE", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListHistoryHandler(t *testing.T) {
	e, f := newHandlerFixture(t)
	sub := transmitted(t, f, "2026-0042")
	if _, _, err := f.svc.ApplyStatus(context.Background(), sub.ID, StatusDelivered, "", ""); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	rec := doJSON(t, e, http.MethodGet, "/api/submissions/"+sub.ID.String()+"/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entries []HistoryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	rec = doJSON(t, e, http.MethodGet, "/api/submissions/"+uuid.New().String()+"/history", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTriageResponseResolveFlow(t *testing.T) {
	e, f := newHandlerFixture(t)
	sub := transmitted(t, f, "2026-0042")

	explanation := "tariff code retired"
	parked, _, err := f.svc.RecordResponse(context.Background(), &ResponseRecord{
		MessageID:    "tr-orphan",
		ResponseType: clearing.ResponseRejected,
		Explanation:  &explanation,
	})
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	rec := doJSON(t, e, http.MethodGet, "/api/triage/responses", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		Data  []ResponseRecord `json:"data"`
		Total int              `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("triage queue total = %d, want 1", list.Total)
	}

	body := `{"submission_id":"` + sub.ID.String() + `","apply_status":true}`
	rec = doJSON(t, e, http.MethodPost, "/api/triage/responses/"+parked.ID.String()+"/resolve", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, _ := f.svc.GetSubmission(context.Background(), sub.ID)
	if got.Status != StatusRejected {
		t.Errorf("status after resolve = %q, want %q", got.Status, StatusRejected)
	}

	// resolving the same response twice fails
	rec = doJSON(t, e, http.MethodPost, "/api/triage/responses/"+parked.ID.String()+"/resolve", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestResolveResponseHandler_RequiresSubmissionID(t *testing.T) {
	e, f := newHandlerFixture(t)

	parked, _, err := f.svc.RecordResponse(context.Background(), &ResponseRecord{
		MessageID:    "tr-orphan",
		ResponseType: clearing.ResponsePending,
	})
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	rec := doJSON(t, e, http.MethodPost, "/api/triage/responses/"+parked.ID.String()+"/resolve", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTriageNotificationsHandler(t *testing.T) {
	e, f := newHandlerFixture(t)
	sub := transmitted(t, f, "2026-0042")

	parked, _, err := f.svc.RecordNotification(context.Background(), &NotificationRecord{
		NotificationID: "nt-9",
		Severity:       clearing.SeverityWarning,
		Message:        "retransmission scheduled",
	})
	if err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}

	rec := doJSON(t, e, http.MethodGet, "/api/triage/notifications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		Data  []NotificationRecord `json:"data"`
		Total int                  `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("triage queue total = %d, want 1", list.Total)
	}

	body := `{"submission_id":"` + sub.ID.String() + `"}`
	rec = doJSON(t, e, http.MethodPost, "/api/triage/notifications/"+parked.ID.String()+"/resolve", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodGet, "/api/triage/notifications", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.Total != 0 {
		t.Errorf("triage queue after resolve = %d, want 0", list.Total)
	}
}
