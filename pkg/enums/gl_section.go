package enums

import "fmt"

// GLSection groups chart-of-accounts rows.
type GLSection string

const (
	GLSectionCOGS      GLSection = "COGS"
	GLSectionInventory GLSection = "INVENTORY"
	GLSectionExpense   GLSection = "EXPENSE"
)

var validGLSections = []GLSection{
	GLSectionCOGS,
	GLSectionInventory,
	GLSectionExpense,
}

func (s GLSection) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical GL section enum.
func (s GLSection) IsValid() bool {
	for _, candidate := range validGLSections {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseGLSection converts the raw string to GLSection.
func ParseGLSection(value string) (GLSection, error) {
	for _, candidate := range validGLSections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gl section %q", value)
}
