package enums

import "fmt"

// LineStatus tracks an invoice line through resolution.
type LineStatus string

const (
	LineStatusUnmapped  LineStatus = "unmapped"
	LineStatusSuggested LineStatus = "suggested"
	LineStatusMapped    LineStatus = "mapped"
)

var validLineStatuses = []LineStatus{
	LineStatusUnmapped,
	LineStatusSuggested,
	LineStatusMapped,
}

func (s LineStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical line status enum.
func (s LineStatus) IsValid() bool {
	for _, candidate := range validLineStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLineStatus converts the raw string to LineStatus.
func ParseLineStatus(value string) (LineStatus, error) {
	for _, candidate := range validLineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid line status %q", value)
}
