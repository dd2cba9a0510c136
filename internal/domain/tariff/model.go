package tariff

import "fmt"

// Tariff type codes as they appear in the invoice document services section.
const (
	// TypeMedical is the medical services tariff (per-position tax points,
	// priced with the cantonal tax-point value).
	TypeMedical = "001"
	// TypeAnalysis is the laboratory analysis list (nationally uniform
	// tax-point value).
	TypeAnalysis = "590"
)

// Item is one position of the tariff catalog. Items are immutable reference
// data seeded at startup; there is no runtime mutation path.
type Item struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	TaxPoints  float64 `json:"tax_points"`
	TariffType string  `json:"tariff_type"`
	Chapter    string  `json:"chapter"`
	Active     bool    `json:"active"`
}

// UnknownCantonError is returned when a price is requested for a canton
// that has no tax-point value on record. Callers that can recover (e.g.
// by asking the operator to fix the invoice) match it with errors.As.
type UnknownCantonError struct {
	Canton string
}

func (e *UnknownCantonError) Error() string {
	return fmt.Sprintf("unknown canton %q: no tax-point value on record", e.Canton)
}
