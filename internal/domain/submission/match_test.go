package submission

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func candidate(invoiceNumber, messageID string, createdAt time.Time) *Submission {
	sub := &Submission{
		ID:            uuid.New(),
		InvoiceID:     uuid.New(),
		InvoiceNumber: invoiceNumber,
		Status:        StatusTransmitted,
		CreatedAt:     createdAt,
	}
	if messageID != "" {
		sub.MessageID = &messageID
	}
	return sub
}

// A transmission-reference hit beats an invoice-number hit even when the
// invoice-number candidate is newer.
func TestMatchSubmission_TransmissionReferenceWinsOverInvoiceNumber(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	byMessageID := candidate("2026-0001", "tr-aaa", base)
	byNumber := candidate("2026-0042", "tr-bbb", base.Add(time.Hour))

	got := MatchSubmission(MatchRefs{
		TransmissionReference: "tr-aaa",
		CorrelationReference:  "2026-0042",
	}, []*Submission{byNumber, byMessageID})

	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.ID != byMessageID.ID {
		t.Errorf("matched %s (invoice %s), want the message-id candidate %s", got.ID, got.InvoiceNumber, byMessageID.ID)
	}
}

func TestMatchSubmission_FallsBackToInvoiceNumber(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := candidate("2026-0042", "tr-aaa", base)
	newer := candidate("2026-0042", "tr-bbb", base.Add(time.Hour))

	got := MatchSubmission(MatchRefs{
		TransmissionReference: "tr-unknown",
		CorrelationReference:  "2026-0042",
	}, []*Submission{older, newer})

	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.ID != newer.ID {
		t.Errorf("matched the older candidate, want the most recently created one")
	}
}

// A submission that never obtained a message id was never uploaded, so no
// insurer response can belong to it.
func TestMatchSubmission_SkipsNeverUploadedCandidates(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	neverUploaded := candidate("2026-0042", "", base.Add(time.Hour))
	uploaded := candidate("2026-0042", "tr-aaa", base)

	got := MatchSubmission(MatchRefs{
		CorrelationReference: "2026-0042",
	}, []*Submission{neverUploaded, uploaded})

	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.ID != uploaded.ID {
		t.Errorf("matched the never-uploaded candidate, want the uploaded one")
	}

	got = MatchSubmission(MatchRefs{CorrelationReference: "2026-0042"}, []*Submission{neverUploaded})
	if got != nil {
		t.Errorf("matched a submission without a message id, want nil")
	}
}

func TestMatchSubmission_NoReferencesNoMatch(t *testing.T) {
	subs := []*Submission{
		candidate("2026-0042", "tr-aaa", time.Now()),
	}
	if got := MatchSubmission(MatchRefs{}, subs); got != nil {
		t.Errorf("MatchSubmission with empty refs = %v, want nil", got)
	}
}

func TestMatchSubmission_NoCandidates(t *testing.T) {
	refs := MatchRefs{TransmissionReference: "tr-aaa", CorrelationReference: "2026-0042"}
	if got := MatchSubmission(refs, nil); got != nil {
		t.Errorf("MatchSubmission with no candidates = %v, want nil", got)
	}
}
