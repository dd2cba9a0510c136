package tariff

import (
	"fmt"
	"math"
	"strings"
)

// Config carries the pricing constants the service needs.
type Config struct {
	// CostNeutralityFactor is the transition correction multiplied into
	// every medical-services price. 1.0 outside transition phases.
	CostNeutralityFactor float64
	// DefaultCanton is used by PriceDefault for callers that do not carry
	// a canton of their own.
	DefaultCanton string
}

// Service answers tariff lookups and prices positions. All state is
// immutable after construction, so the service is safe for concurrent use.
type Service struct {
	items   []Item
	byCode  map[string]*Item
	rates   map[string]float64
	factor  float64
	defCant string
}

func NewService(cfg Config) (*Service, error) {
	if cfg.CostNeutralityFactor <= 0 {
		return nil, fmt.Errorf("cost neutrality factor must be positive, got %f", cfg.CostNeutralityFactor)
	}
	if _, ok := cantonTaxPointValues[cfg.DefaultCanton]; !ok {
		return nil, fmt.Errorf("default canton %q has no tax-point value on record", cfg.DefaultCanton)
	}

	s := &Service{
		items:   catalogItems,
		byCode:  make(map[string]*Item, len(catalogItems)),
		rates:   cantonTaxPointValues,
		factor:  cfg.CostNeutralityFactor,
		defCant: cfg.DefaultCanton,
	}
	for i := range s.items {
		s.byCode[s.items[i].Code] = &s.items[i]
	}
	return s, nil
}

// Lookup returns the catalog item with the exact code.
func (s *Service) Lookup(code string) (*Item, bool) {
	item, ok := s.byCode[code]
	return item, ok
}

// Search scans the catalog for items whose code starts with query or whose
// name contains it (case-insensitive). Each call is a fresh finite scan;
// there is no cursor state. A limit <= 0 means no limit.
func (s *Service) Search(query string, limit int) []*Item {
	q := strings.ToLower(strings.TrimSpace(query))
	results := make([]*Item, 0, 16)
	for i := range s.items {
		item := &s.items[i]
		if q == "" ||
			strings.HasPrefix(item.Code, q) ||
			strings.Contains(strings.ToLower(item.Name), q) {
			results = append(results, item)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results
}

// Price computes taxPoints x cantonal tax-point value x cost-neutrality
// factor, rounded half-up to two decimals. An unknown canton is a typed
// error, never a silent default.
func (s *Service) Price(taxPoints float64, canton string) (float64, error) {
	rate, ok := s.rates[canton]
	if !ok {
		return 0, &UnknownCantonError{Canton: canton}
	}
	return round2(taxPoints * rate * s.factor), nil
}

// PriceDefault prices with the configured default canton. For callers that
// genuinely have no canton (e.g. quoting before the patient record is
// complete); invoices always carry their own.
func (s *Service) PriceDefault(taxPoints float64) float64 {
	// The default canton is validated at construction.
	p, _ := s.Price(taxPoints, s.defCant)
	return p
}

// PriceItem looks up the position and prices quantity units of it.
func (s *Service) PriceItem(code string, quantity float64, canton string) (float64, error) {
	item, ok := s.Lookup(code)
	if !ok {
		return 0, fmt.Errorf("unknown tariff code %q", code)
	}
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive, got %f", quantity)
	}
	unit, err := s.Price(item.TaxPoints, canton)
	if err != nil {
		return 0, err
	}
	return round2(unit * quantity), nil
}

// CantonKnown reports whether a tax-point value exists for the canton.
func (s *Service) CantonKnown(canton string) bool {
	_, ok := s.rates[canton]
	return ok
}

// round2 rounds half-up to two decimals (2.675 -> 2.68). The epsilon
// compensates for binary representation of decimal literals (2.675 is
// stored as 2.67499...); amounts stay well below the range where it
// could flip a genuine half-down case.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5+1e-9) / 100
}
