package submission

// MatchRefs are the correlation handles carried by one insurer response:
// the proxy's transmission reference and the correlation reference the
// insurer echoes back (by convention the invoice business number).
type MatchRefs struct {
	TransmissionReference string
	CorrelationReference  string
}

// MatchSubmission resolves a response to at most one submission. It is a
// pure function over the candidate slice; no guessing beyond the two
// documented rules:
//
//  1. a candidate whose message id equals the transmission reference wins
//     outright, then
//  2. the most recently created candidate that has obtained a message id
//     and whose invoice number equals the correlation reference, then
//  3. nil, and the caller stores the response unmatched for triage.
//
// Rule 2 deliberately skips submissions without a message id: those were
// never uploaded, so no insurer can be answering them.
func MatchSubmission(refs MatchRefs, candidates []*Submission) *Submission {
	if refs.TransmissionReference != "" {
		for _, c := range candidates {
			if c.MessageID != nil && *c.MessageID == refs.TransmissionReference {
				return c
			}
		}
	}

	if refs.CorrelationReference == "" {
		return nil
	}
	var best *Submission
	for _, c := range candidates {
		if c.MessageID == nil || c.InvoiceNumber != refs.CorrelationReference {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	return best
}
