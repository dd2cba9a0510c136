package invoicedoc

import (
	"regexp"
	"strings"
)

var glnPattern = regexp.MustCompile(`^\d{13}$`)

// ValidGLN reports whether s is a syntactically valid GLN (exactly 13
// digits). Check-digit verification is out of scope; upstream registries
// own that.
func ValidGLN(s string) bool {
	return glnPattern.MatchString(s)
}

// resolveGLN walks the candidates in order and returns the first valid
// GLN, falling back to the builder's last-resort GLN when none qualifies.
// The chain is applied independently per GLN-bearing field.
func (b *Builder) resolveGLN(candidates ...string) string {
	for _, c := range candidates {
		if ValidGLN(c) {
			return c
		}
	}
	return b.cfg.FallbackGLN
}

// NormalizeIBAN strips all whitespace (including interior grouping) and
// uppercases. Invoices arrive with IBANs keyed in every imaginable shape.
func NormalizeIBAN(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.ToUpper(sb.String())
}

// ValidIBAN reports whether the normalized value is a Swiss IBAN: "CH"
// followed by exactly 19 alphanumerics (21 characters total).
func ValidIBAN(normalized string) bool {
	if len(normalized) != 21 || !strings.HasPrefix(normalized, "CH") {
		return false
	}
	for _, r := range normalized[2:] {
		if !isAlnum(r) {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z')
}

// recognizedDiagnosisSystems maps the accepted coding-system spellings to
// the canonical type attribute emitted in the document.
var recognizedDiagnosisSystems = map[string]string{
	"ICD":         DiagnosisICD,
	"ICD-10":      DiagnosisICD,
	"ICD10":       DiagnosisICD,
	"ICPC":        DiagnosisICPC,
	"ICPC-2":      DiagnosisICPC,
	"ICPC2":       DiagnosisICPC,
	"BY_CONTRACT": DiagnosisContract,
	"BY-CONTRACT": DiagnosisContract,
	"CONTRACT":    DiagnosisContract,
}

// filterDiagnoses keeps only entries with a code of at least two characters
// and a recognized coding system. Malformed entries are dropped silently;
// a diagnosis is informational here and insurers re-code anyway.
func filterDiagnoses(in []DiagnosisInput) []Diagnosis {
	out := make([]Diagnosis, 0, len(in))
	for _, d := range in {
		code := strings.TrimSpace(d.Code)
		if len(code) < 2 {
			continue
		}
		system, ok := recognizedDiagnosisSystems[strings.ToUpper(strings.TrimSpace(d.System))]
		if !ok {
			continue
		}
		out = append(out, Diagnosis{Type: system, Code: code})
	}
	return out
}
