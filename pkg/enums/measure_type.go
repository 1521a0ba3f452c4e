package enums

import (
	"fmt"
	"strings"
)

// MeasureType describes how a catalog item is counted on hand.
type MeasureType string

const (
	MeasureTypeEach   MeasureType = "Each"
	MeasureTypeWeight MeasureType = "Weight"
	MeasureTypeVolume MeasureType = "Volume"
)

var validMeasureTypes = []MeasureType{
	MeasureTypeEach,
	MeasureTypeWeight,
	MeasureTypeVolume,
}

// String implements fmt.Stringer.
func (m MeasureType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known measure type.
func (m MeasureType) IsValid() bool {
	for _, candidate := range validMeasureTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMeasureType converts the raw string to MeasureType. Matching ignores case
// since import sheets are hand-edited.
func ParseMeasureType(value string) (MeasureType, error) {
	for _, candidate := range validMeasureTypes {
		if strings.EqualFold(string(candidate), strings.TrimSpace(value)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid measure type %q", value)
}
