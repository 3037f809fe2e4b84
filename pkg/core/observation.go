package core

import "fmt"

// RawObservation is a single cell as read from a source table.
// Immutable once produced by the loader.
type RawObservation struct {
	// Country is the ISO-3166 alpha-3 country code
	Country string
	// Year is the observation year
	Year int
	// Variable is the variable code (e.g., "gdp_nominal_lcu")
	Variable string
	// Value is the raw numeric value as read from the source
	Value float64
	// Unit declares the raw value's unit (e.g., "mil_lcu", "persons", "index")
	Unit string
	// Source identifies the table the observation came from
	Source string
}

// Basis records the normalization applied to an observation so that
// downstream consumers can audit how a value was derived.
type Basis struct {
	// Currency is the common currency code (e.g., "USD")
	Currency string
	// ReferenceYear is the constant-price reference year
	ReferenceYear int
	// Deflated is true if a price deflator was applied
	Deflated bool
	// Converted is true if an exchange rate was applied
	Converted bool
}

// Tag returns the unit tag written into outputs carrying this basis.
// The normalizer refuses observations whose unit already carries it.
func (b Basis) Tag() string {
	return fmt.Sprintf("%s%s_%d", NormalizedUnitPrefix, b.Currency, b.ReferenceYear)
}

// NormalizedUnitPrefix marks units of values that already went through the
// normalizer. Feeding such values back in is an error, never a no-op.
const NormalizedUnitPrefix = "normalized:"

// NormalizedObservation is an observation converted to the common
// currency/price basis. Derived deterministically from RawObservations.
type NormalizedObservation struct {
	Country  string
	Year     int
	Variable string
	Value    float64
	Basis    Basis
}

// DerivedObservation is the output of a derivation rule for one cell.
// Missing is explicit: a derived cell with an absent input is emitted
// with Missing=true rather than omitted.
type DerivedObservation struct {
	Country  string
	Year     int
	Variable string
	Value    float64
	Missing  bool
}

// CellKey identifies a (country, year) cell.
type CellKey struct {
	Country string
	Year    int
}

// String returns "CCC/YYYY".
func (k CellKey) String() string {
	return fmt.Sprintf("%s/%d", k.Country, k.Year)
}
