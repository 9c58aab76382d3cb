// Package model defines core domain types shared across the service.
package model

// Region is one entry of the immutable region catalog.
type Region struct {
	Name       string  `json:"name"`
	Postcode   int     `json:"postcode"`
	Population int     `json:"population"`
	Area       float64 `json:"area"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Council    string  `json:"council,omitempty"`
}

// Outcome is the provenance of a region's boundary for the current session.
type Outcome string

const (
	Cached          Outcome = "cached"
	BundledFallback Outcome = "bundled"
	FetchedRemote   Outcome = "remote"
	Unresolved      Outcome = "unresolved"
)

func (o Outcome) Resolved() bool {
	return o == Cached || o == BundledFallback || o == FetchedRemote
}
