package clearing

import (
	"encoding/xml"
	"strings"
)

// Response outcome types produced by ParseResponse.
const (
	ResponseAccepted = "accepted"
	ResponseRejected = "rejected"
	ResponsePending  = "pending"
	ResponseUnknown  = "unknown"
)

// Parsed is the distilled content of an insurer response document. Only
// the fields the reconcile loop acts on are surfaced; the raw document is
// stored alongside for audit.
type Parsed struct {
	Type          string
	InvoiceNumber string
	ErrorCode     string
	Explanation   string
}

// responseDoc mirrors the generalInvoiceResponse layout far enough to
// classify the outcome. Insurers fill exactly one of the three outcome
// elements.
type responseDoc struct {
	XMLName xml.Name `xml:"response"`
	Invoice struct {
		RequestID     string `xml:"request_id,attr"`
		InvoiceNumber string `xml:"invoice_number,attr"`
	} `xml:"invoice"`
	Accepted *struct {
		Explanation string `xml:"explanation,attr"`
	} `xml:"accepted"`
	Rejected *struct {
		Error       string `xml:"error,attr"`
		Explanation string `xml:"explanation,attr"`
	} `xml:"rejected"`
	Pending *struct {
		Explanation string `xml:"explanation,attr"`
	} `xml:"pending"`
}

// ParseResponse classifies an insurer response document. It never fails:
// documents that do not parse, or parse without a recognizable outcome
// element, come back as ResponseUnknown with the detail in Explanation so
// they can be routed to manual triage.
func ParseResponse(raw []byte) Parsed {
	var doc responseDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return Parsed{
			Type:        ResponseUnknown,
			Explanation: "unparseable response document: " + err.Error(),
		}
	}

	p := Parsed{InvoiceNumber: strings.TrimSpace(doc.Invoice.InvoiceNumber)}
	switch {
	case doc.Accepted != nil:
		p.Type = ResponseAccepted
		p.Explanation = doc.Accepted.Explanation
	case doc.Rejected != nil:
		p.Type = ResponseRejected
		p.ErrorCode = doc.Rejected.Error
		p.Explanation = doc.Rejected.Explanation
	case doc.Pending != nil:
		p.Type = ResponsePending
		p.Explanation = doc.Pending.Explanation
	default:
		p.Type = ResponseUnknown
		p.Explanation = "response document carries no outcome element"
	}
	return p
}

// Notification severities after normalization.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeverityFatal   = "fatal"
)

// NormalizeSeverity folds upstream severity spellings into the four levels
// the reconcile loop distinguishes. Unknown values degrade to error so a
// new upstream level is never silently ignored.
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "information", "informational":
		return SeverityInfo
	case "warn", "warning":
		return SeverityWarning
	case "error":
		return SeverityError
	case "fatal", "critical":
		return SeverityFatal
	default:
		return SeverityError
	}
}
