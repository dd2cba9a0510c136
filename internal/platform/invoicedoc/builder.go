// Package invoicedoc builds generalInvoiceRequest XML documents from
// invoice data. The builder is pure: everything it needs arrives in the
// Input, nothing is fetched, and no two calls share state beyond the
// immutable configuration.
package invoicedoc

import (
	"encoding/xml"
	"fmt"
	"math"
	"time"
)

// BuildError code values.
const (
	ErrCodeNoServices       = "no_services"
	ErrCodeMissingNumber    = "missing_invoice_number"
	ErrCodeMissingPatient   = "missing_patient"
	ErrCodeInvalidTiersMode = "invalid_tiers_mode"
	ErrCodeInvalidLawType   = "invalid_law_type"
	ErrCodeMarshal          = "marshal_failed"
)

// BuildError is a hard document failure: the invoice cannot be represented
// and no document is produced. Warnings, by contrast, ride along on a
// successful Result.
type BuildError struct {
	Code    string
	Message string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("invoicedoc: %s: %s", e.Code, e.Message)
}

var validLawTypes = map[string]bool{
	"KVG": true, "UVG": true, "IVG": true, "MVG": true, "VVG": true,
}

// Config carries the constants the builder stamps into every document.
type Config struct {
	SchemaVersion   string
	FallbackGLN     string
	FallbackIBAN    string
	SenderGLN       string
	SoftwareName    string
	SoftwareVersion string
	Modus           string // "production" or "test"
	Language        string
}

// Builder assembles invoice documents. Safe for concurrent use; it holds
// only immutable configuration.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = DefaultSchemaVersion
	}
	if cfg.SoftwareName == "" {
		cfg.SoftwareName = "praxisbill"
	}
	if cfg.SoftwareVersion == "" {
		cfg.SoftwareVersion = "0.0.0"
	}
	if cfg.Modus == "" {
		cfg.Modus = "production"
	}
	if cfg.Language == "" {
		cfg.Language = "de"
	}
	return &Builder{cfg: cfg}
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

// Input carries everything the builder needs. Callers assemble it from
// their own records; the builder never reaches back into storage.
type Input struct {
	Invoice   InvoiceHeader
	Services  []ServiceLine
	Patient   PatientInfo
	Biller    PartyInfo
	Provider  PartyInfo
	Insurer   *PartyInfo
	Staff     StaffInfo
	Diagnoses []DiagnosisInput
}

// InvoiceHeader is the invoice-level data.
type InvoiceHeader struct {
	Number      string
	Date        time.Time
	LawType     string
	TiersMode   string
	Canton      string
	Currency    string
	TotalAmount float64
}

// ServiceLine is one billed position.
type ServiceLine struct {
	TariffType     string
	Code           string
	Name           string
	Quantity       float64
	Session        int
	UnitPrice      float64
	ExternalFactor float64
	DateOfService  time.Time
	SideCode       *string
	ProviderGLN    *string
}

// PatientInfo is the patient block of the input.
type PatientInfo struct {
	FamilyName string
	GivenName  string
	BirthDate  time.Time
	Gender     string
	Street     string
	ZIP        string
	City       string
	SSN        string
}

// PartyInfo describes a GLN-bearing party (billing entity, provider,
// insurer).
type PartyInfo struct {
	GLN         string
	ZSR         string
	IBAN        string
	CompanyName string
	Street      string
	ZIP         string
	City        string
}

// StaffInfo is the treating staff member. HasCredentials is false for
// staff without personal billing credentials (no own GLN/ZSR); the
// billing entity then fronts for them in the document.
type StaffInfo struct {
	ID             string
	GLN            string
	ZSR            string
	FamilyName     string
	GivenName      string
	HasCredentials bool
}

// DiagnosisInput is a coded diagnosis as stored on the case.
type DiagnosisInput struct {
	System string
	Code   string
}

// ---------------------------------------------------------------------------
// Result
// ---------------------------------------------------------------------------

// Result is a successfully built document. Warnings flag substitutions an
// operator may want to review; they never block submission.
type Result struct {
	XML           []byte
	Document      *Request
	SchemaVersion string
	Warnings      []string

	// StaffID is retained for internal statistics even when the staff
	// member does not appear in the document itself.
	StaffID string
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Build assembles and marshals the invoice document. Hard failures return
// a *BuildError and no document.
func (b *Builder) Build(in Input) (*Result, error) {
	if in.Invoice.Number == "" {
		return nil, &BuildError{Code: ErrCodeMissingNumber, Message: "invoice number is required"}
	}
	if len(in.Services) == 0 {
		return nil, &BuildError{Code: ErrCodeNoServices, Message: "an invoice without services cannot be billed"}
	}
	if in.Patient.FamilyName == "" {
		return nil, &BuildError{Code: ErrCodeMissingPatient, Message: "patient family name is required"}
	}
	if !validLawTypes[in.Invoice.LawType] {
		return nil, &BuildError{Code: ErrCodeInvalidLawType, Message: fmt.Sprintf("unknown law type %q", in.Invoice.LawType)}
	}
	if in.Invoice.TiersMode != TiersGarantMode && in.Invoice.TiersMode != TiersPayantMode {
		return nil, &BuildError{Code: ErrCodeInvalidTiersMode, Message: fmt.Sprintf("unknown tiers mode %q", in.Invoice.TiersMode)}
	}

	var warnings []string

	// Staff without personal billing credentials: the billing entity's
	// GLN/ZSR front as both provider and responsible party, and the staff
	// name stays out of the document entirely.
	staffGLN := in.Staff.GLN
	staffZSR := in.Staff.ZSR
	if !in.Staff.HasCredentials {
		staffGLN = ""
		staffZSR = ""
	}

	billerGLN := b.resolveGLN(in.Biller.GLN, staffGLN)
	providerGLN := b.resolveGLN(in.Provider.GLN, staffGLN, in.Biller.GLN)
	if billerGLN == b.cfg.FallbackGLN {
		warnings = append(warnings, "biller GLN missing or malformed, substituted fallback GLN")
	}
	if providerGLN == b.cfg.FallbackGLN {
		warnings = append(warnings, "provider GLN missing or malformed, substituted fallback GLN")
	}

	providerZSR := firstNonEmpty(in.Provider.ZSR, staffZSR, in.Biller.ZSR)
	billerZSR := firstNonEmpty(in.Biller.ZSR, staffZSR)

	// IBAN: normalize, validate, substitute the QR fallback on failure so
	// the payment part always renders.
	iban := NormalizeIBAN(in.Biller.IBAN)
	if !ValidIBAN(iban) {
		warnings = append(warnings, fmt.Sprintf("biller IBAN %q invalid, substituted fallback QR-IBAN", in.Biller.IBAN))
		iban = b.cfg.FallbackIBAN
	}

	services, total := b.buildServices(in, staffGLN)

	if in.Invoice.TotalAmount > 0 && math.Abs(in.Invoice.TotalAmount-total) >= 0.005 {
		warnings = append(warnings, fmt.Sprintf("recorded invoice total %.2f differs from computed total %.2f", in.Invoice.TotalAmount, total))
	}

	currency := in.Invoice.Currency
	if currency == "" {
		currency = "CHF"
	}

	tiers := &Tiers{
		PaymentPeriod: "P30D",
		Biller:        b.buildParty(in.Biller, billerGLN, billerZSR),
		Provider:      b.buildParty(in.Provider, providerGLN, providerZSR),
		Patient:       buildPatient(in.Patient),
		Balance: &Balance{
			Currency:  currency,
			Amount:    total,
			AmountDue: total,
			VAT:       &VAT{Rate: 0},
		},
		PaymentSlip: &PaymentSlip{IBAN: iban},
	}
	if in.Insurer != nil {
		insurerGLN := b.resolveGLN(in.Insurer.GLN)
		if insurerGLN == b.cfg.FallbackGLN {
			warnings = append(warnings, "insurer GLN missing or malformed, substituted fallback GLN")
		}
		tiers.Insurance = b.buildParty(*in.Insurer, insurerGLN, in.Insurer.ZSR)
	}

	body := &Body{
		Prolog: &Prolog{
			Package: &Package{Name: b.cfg.SoftwareName, Version: b.cfg.SoftwareVersion},
		},
		Treatment: &Treatment{
			DateBegin: earliestServiceDate(in.Services),
			DateEnd:   latestServiceDate(in.Services),
			Canton:    in.Invoice.Canton,
			Law:       in.Invoice.LawType,
			Diagnoses: filterDiagnoses(in.Diagnoses),
		},
		Services: services,
	}
	switch in.Invoice.TiersMode {
	case TiersGarantMode:
		body.TiersGarant = tiers
	case TiersPayantMode:
		body.TiersPayant = tiers
	}

	invoiceDate := in.Invoice.Date
	if invoiceDate.IsZero() {
		invoiceDate = time.Now().UTC()
	}

	doc := &Request{
		Namespace: InvoiceNamespace,
		Modus:     b.cfg.Modus,
		Language:  b.cfg.Language,
		Processing: &Processing{
			Transport: &Transport{From: b.resolveGLN(b.cfg.SenderGLN, in.Biller.GLN)},
		},
		Payload: &Payload{
			Type: "invoice",
			Invoice: &InvoiceMeta{
				RequestTimestamp: invoiceDate.Unix(),
				RequestDate:      invoiceDate.Format("2006-01-02"),
				RequestID:        in.Invoice.Number,
			},
			Body: body,
		},
	}
	if in.Insurer != nil && tiers.Insurance != nil {
		doc.Processing.Transport.To = tiers.Insurance.GLN
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, &BuildError{Code: ErrCodeMarshal, Message: err.Error()}
	}

	header := []byte(xml.Header)
	raw := make([]byte, len(header)+len(output))
	copy(raw, header)
	copy(raw[len(header):], output)

	return &Result{
		XML:           raw,
		Document:      doc,
		SchemaVersion: b.cfg.SchemaVersion,
		Warnings:      warnings,
		StaffID:       in.Staff.ID,
	}, nil
}

// buildServices converts the service lines and totals them. Each record's
// responsible GLN resolves independently: line-item override, then staff,
// then billing entity, then the fallback.
func (b *Builder) buildServices(in Input, staffGLN string) (*Services, float64) {
	records := make([]ServiceRecord, 0, len(in.Services))
	var total float64

	for _, line := range in.Services {
		factor := line.ExternalFactor
		if factor == 0 {
			factor = 1.0
		}
		amount := round2(line.Quantity * line.UnitPrice * factor)
		total += amount

		lineGLN := ""
		if line.ProviderGLN != nil {
			lineGLN = *line.ProviderGLN
		}
		responsible := b.resolveGLN(lineGLN, staffGLN, in.Biller.GLN)
		provider := b.resolveGLN(lineGLN, staffGLN, in.Provider.GLN, in.Biller.GLN)

		rec := ServiceRecord{
			TariffType:     line.TariffType,
			Code:           line.Code,
			Name:           line.Name,
			Session:        line.Session,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			ExternalFactor: factor,
			Amount:         amount,
			ProviderGLN:    provider,
			ResponsibleGLN: responsible,
		}
		if !line.DateOfService.IsZero() {
			rec.DateBegin = line.DateOfService.Format("2006-01-02")
		}
		if line.SideCode != nil {
			rec.Side = *line.SideCode
		}
		records = append(records, rec)
	}

	return &Services{Records: records}, round2(total)
}

func (b *Builder) buildParty(p PartyInfo, gln, zsr string) *Party {
	party := &Party{GLN: gln, ZSR: zsr, CompanyName: p.CompanyName}
	if p.Street != "" || p.ZIP != "" || p.City != "" {
		party.Postal = &Postal{Street: p.Street, ZIP: p.ZIP, City: p.City}
	}
	return party
}

func buildPatient(p PatientInfo) *PatientElem {
	elem := &PatientElem{
		Gender: p.Gender,
		SSN:    p.SSN,
		Person: &Person{
			FamilyName: p.FamilyName,
			GivenName:  p.GivenName,
		},
	}
	if !p.BirthDate.IsZero() {
		elem.BirthDate = p.BirthDate.Format("2006-01-02")
	}
	if p.Street != "" || p.ZIP != "" || p.City != "" {
		elem.Person.Postal = &Postal{Street: p.Street, ZIP: p.ZIP, City: p.City}
	}
	return elem
}

func earliestServiceDate(lines []ServiceLine) string {
	var earliest time.Time
	for _, l := range lines {
		if l.DateOfService.IsZero() {
			continue
		}
		if earliest.IsZero() || l.DateOfService.Before(earliest) {
			earliest = l.DateOfService
		}
	}
	if earliest.IsZero() {
		return ""
	}
	return earliest.Format("2006-01-02")
}

func latestServiceDate(lines []ServiceLine) string {
	var latest time.Time
	for _, l := range lines {
		if l.DateOfService.After(latest) {
			latest = l.DateOfService
		}
	}
	if latest.IsZero() {
		return ""
	}
	return latest.Format("2006-01-02")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// round2 rounds half-up to two decimals; the epsilon compensates for the
// binary representation of decimal literals.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5+1e-9) / 100
}
