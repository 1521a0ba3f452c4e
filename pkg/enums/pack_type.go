package enums

import "fmt"

// PackType describes the purchase container of a pack configuration.
type PackType string

const (
	PackTypeCase   PackType = "case"
	PackTypeBottle PackType = "bottle"
	PackTypeBag    PackType = "bag"
	PackTypeBox    PackType = "box"
	PackTypeEach   PackType = "each"
	PackTypeKeg    PackType = "keg"
)

var validPackTypes = []PackType{
	PackTypeCase,
	PackTypeBottle,
	PackTypeBag,
	PackTypeBox,
	PackTypeEach,
	PackTypeKeg,
}

func (p PackType) String() string {
	return string(p)
}

// IsValid reports whether the value matches the canonical pack type enum.
func (p PackType) IsValid() bool {
	for _, candidate := range validPackTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePackType converts the raw string to PackType.
func ParsePackType(value string) (PackType, error) {
	for _, candidate := range validPackTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pack type %q", value)
}
