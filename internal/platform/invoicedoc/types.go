package invoicedoc

import "encoding/xml"

// Identifiers and constants of the generalInvoiceRequest interchange format.
const (
	// InvoiceNamespace is the interchange namespace of the invoice request.
	InvoiceNamespace = "http://www.forum-datenaustausch.ch/invoice"

	// DefaultSchemaVersion is the generalInvoiceRequest release the builder
	// emits when not configured otherwise.
	DefaultSchemaVersion = "4.5"

	// Recognized diagnosis coding systems. Entries coded in anything else
	// are dropped from the document.
	DiagnosisICD      = "ICD"      // ICD-10-GM
	DiagnosisICPC     = "ICPC"     // ICPC-2 (primary care)
	DiagnosisContract = "by_contract"

	// Tiers modes: tiers garant (patient is debtor, reimbursed by the
	// insurer) and tiers payant (insurer is debtor).
	TiersGarantMode = "TG"
	TiersPayantMode = "TP"
)

// Request is the root element of a generalInvoiceRequest document.
type Request struct {
	XMLName    xml.Name    `xml:"request"`
	Namespace  string      `xml:"xmlns,attr"`
	Modus      string      `xml:"modus,attr"`
	Language   string      `xml:"language,attr"`
	Processing *Processing `xml:"processing,omitempty"`
	Payload    *Payload    `xml:"payload,omitempty"`
}

// Processing carries the transport routing of the message.
type Processing struct {
	Transport *Transport `xml:"transport,omitempty"`
}

// Transport names sender and receiver by GLN.
type Transport struct {
	From string `xml:"from,attr"`
	To   string `xml:"to,attr,omitempty"`
}

// Payload wraps the invoice body.
type Payload struct {
	Type       string       `xml:"type,attr"`
	CopyStatus bool         `xml:"copy_status,attr"`
	Invoice    *InvoiceMeta `xml:"invoice,omitempty"`
	Body       *Body        `xml:"body,omitempty"`
}

// InvoiceMeta identifies the invoice instance.
type InvoiceMeta struct {
	RequestTimestamp int64  `xml:"request_timestamp,attr"`
	RequestDate      string `xml:"request_date,attr"`
	RequestID        string `xml:"request_id,attr"`
}

// Body holds the billing content. Exactly one of TiersGarant or
// TiersPayant is set, matching the invoice's tiers mode.
type Body struct {
	Prolog      *Prolog      `xml:"prolog,omitempty"`
	TiersGarant *Tiers       `xml:"tiers_garant,omitempty"`
	TiersPayant *Tiers       `xml:"tiers_payant,omitempty"`
	Treatment   *Treatment   `xml:"treatment,omitempty"`
	Services    *Services    `xml:"services,omitempty"`
}

// Prolog names the generating software.
type Prolog struct {
	Package *Package `xml:"package,omitempty"`
}

// Package identifies the software that produced the document.
type Package struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
}

// Tiers groups the parties and the balance of the invoice.
type Tiers struct {
	PaymentPeriod string       `xml:"payment_period,attr,omitempty"`
	Biller        *Party       `xml:"biller,omitempty"`
	Provider      *Party       `xml:"provider,omitempty"`
	Insurance     *Party       `xml:"insurance,omitempty"`
	Patient       *PatientElem `xml:"patient,omitempty"`
	Balance       *Balance     `xml:"balance,omitempty"`
	PaymentSlip   *PaymentSlip `xml:"esrQR,omitempty"`
}

// Party is a GLN-bearing participant (biller, provider, insurer).
type Party struct {
	GLN         string   `xml:"ean_party,attr"`
	ZSR         string   `xml:"zsr,attr,omitempty"`
	CompanyName string   `xml:"companyname,omitempty"`
	Person      *Person  `xml:"person,omitempty"`
	Postal      *Postal  `xml:"postal,omitempty"`
}

// PatientElem carries patient demographics.
type PatientElem struct {
	Gender    string  `xml:"gender,attr,omitempty"`
	BirthDate string  `xml:"birthdate,attr,omitempty"`
	SSN       string  `xml:"ssn,attr,omitempty"`
	Person    *Person `xml:"person,omitempty"`
}

// Person is a natural person's name and address.
type Person struct {
	FamilyName string  `xml:"familyname,omitempty"`
	GivenName  string  `xml:"givenname,omitempty"`
	Postal     *Postal `xml:"postal,omitempty"`
}

// Postal is a Swiss postal address.
type Postal struct {
	Street string `xml:"street,omitempty"`
	ZIP    string `xml:"zip,omitempty"`
	City   string `xml:"city,omitempty"`
}

// Balance totals the invoice.
type Balance struct {
	Currency  string  `xml:"currency,attr"`
	Amount    float64 `xml:"amount,attr"`
	AmountDue float64 `xml:"amount_due,attr"`
	VAT       *VAT    `xml:"vat,omitempty"`
}

// VAT carries the value-added tax summary. Medical services are exempt,
// so the rate is zero throughout.
type VAT struct {
	Rate float64 `xml:"vat,attr"`
}

// PaymentSlip is the QR payment part of the invoice.
type PaymentSlip struct {
	IBAN            string `xml:"iban,attr"`
	ReferenceNumber string `xml:"reference_number,attr,omitempty"`
}

// Treatment frames the billed episode.
type Treatment struct {
	DateBegin string      `xml:"date_begin,attr,omitempty"`
	DateEnd   string      `xml:"date_end,attr,omitempty"`
	Canton    string      `xml:"canton,attr,omitempty"`
	Law       string      `xml:"law,attr,omitempty"`
	Diagnoses []Diagnosis `xml:"diagnosis,omitempty"`
}

// Diagnosis is one coded diagnosis entry.
type Diagnosis struct {
	Type string `xml:"type,attr"`
	Code string `xml:"code,attr"`
}

// Services lists the billed positions.
type Services struct {
	Records []ServiceRecord `xml:"record,omitempty"`
}

// ServiceRecord is one billed tariff position.
type ServiceRecord struct {
	TariffType     string  `xml:"tariff_type,attr"`
	Code           string  `xml:"code,attr"`
	Name           string  `xml:"name,attr,omitempty"`
	Session        int     `xml:"session,attr,omitempty"`
	Quantity       float64 `xml:"quantity,attr"`
	DateBegin      string  `xml:"date_begin,attr,omitempty"`
	UnitPrice      float64 `xml:"unit,attr"`
	ExternalFactor float64 `xml:"external_factor,attr,omitempty"`
	Amount         float64 `xml:"amount,attr"`
	Side           string  `xml:"side,attr,omitempty"`
	ProviderGLN    string  `xml:"provider_id,attr"`
	ResponsibleGLN string  `xml:"responsible_id,attr"`
}
