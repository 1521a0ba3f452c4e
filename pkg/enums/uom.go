package enums

import "fmt"

// UOM is the fixed unit-of-measure enumeration understood by the pack resolver.
type UOM string

const (
	UOMMilliliter UOM = "ml"
	UOMLiter      UOM = "l"
	UOMOunce      UOM = "oz"
	UOMFluidOunce UOM = "fl.oz"
	UOMGallon     UOM = "gal"
	UOMPound      UOM = "lb"
	UOMKilogram   UOM = "kg"
	UOMGram       UOM = "g"
	UOMEach       UOM = "each"
	UOMCase       UOM = "case"
	UOMPack       UOM = "pack"
	UOMQuart      UOM = "quart"
)

var validUOMs = []UOM{
	UOMMilliliter,
	UOMLiter,
	UOMOunce,
	UOMFluidOunce,
	UOMGallon,
	UOMPound,
	UOMKilogram,
	UOMGram,
	UOMEach,
	UOMCase,
	UOMPack,
	UOMQuart,
}

func (u UOM) String() string {
	return string(u)
}

// IsValid reports whether the value matches the canonical uom enum.
func (u UOM) IsValid() bool {
	for _, candidate := range validUOMs {
		if candidate == u {
			return true
		}
	}
	return false
}

// IsDiscrete reports whether the unit counts whole things rather than measuring
// a continuous quantity.
func (u UOM) IsDiscrete() bool {
	switch u {
	case UOMEach, UOMCase, UOMPack:
		return true
	}
	return false
}

// ParseUOM converts the raw string to UOM.
func ParseUOM(value string) (UOM, error) {
	for _, candidate := range validUOMs {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid unit of measure %q", value)
}
