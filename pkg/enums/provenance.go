package enums

import "fmt"

// Provenance records how a line or alias came to point at its item.
type Provenance string

const (
	ProvenanceAlias   Provenance = "alias"
	ProvenanceAuto    Provenance = "auto"
	ProvenanceCurated Provenance = "curated"
	ProvenanceManual  Provenance = "manual"
	ProvenanceCreated Provenance = "created"
)

var validProvenances = []Provenance{
	ProvenanceAlias,
	ProvenanceAuto,
	ProvenanceCurated,
	ProvenanceManual,
	ProvenanceCreated,
}

func (p Provenance) String() string {
	return string(p)
}

// IsValid reports whether the value matches the canonical provenance enum.
func (p Provenance) IsValid() bool {
	for _, candidate := range validProvenances {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProvenance converts the raw string to Provenance.
func ParseProvenance(value string) (Provenance, error) {
	for _, candidate := range validProvenances {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provenance %q", value)
}
