package packs

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

type family int

const (
	familyUnknown family = iota
	familyVolume
	familyWeight
	familyCount
	familyContainer
)

func (f family) String() string {
	switch f {
	case familyVolume:
		return "volume"
	case familyWeight:
		return "weight"
	case familyCount:
		return "count"
	case familyContainer:
		return "container"
	}
	return "unknown"
}

// factors to the family base: ml for volume, g for weight
var (
	volumeFactors = map[enums.UOM]decimal.Decimal{
		enums.UOMMilliliter: decimal.NewFromInt(1),
		enums.UOMLiter:      decimal.NewFromInt(1000),
		enums.UOMFluidOunce: decimal.RequireFromString("29.5735"),
		enums.UOMGallon:     decimal.RequireFromString("3785.41"),
		enums.UOMQuart:      decimal.RequireFromString("946.353"),
	}
	weightFactors = map[enums.UOM]decimal.Decimal{
		enums.UOMGram:     decimal.NewFromInt(1),
		enums.UOMKilogram: decimal.NewFromInt(1000),
		enums.UOMPound:    decimal.RequireFromString("453.592"),
		enums.UOMOunce:    decimal.RequireFromString("28.3495"),
	}
)

// factorScale is the precision conversion factors are stored with.
const factorScale = 6

func familyOf(u enums.UOM) family {
	if _, ok := volumeFactors[u]; ok {
		return familyVolume
	}
	if _, ok := weightFactors[u]; ok {
		return familyWeight
	}
	switch u {
	case enums.UOMEach:
		return familyCount
	case enums.UOMCase, enums.UOMPack:
		return familyContainer
	}
	return familyUnknown
}

// Convert expresses qty in "from" as a quantity of "to". Plain "oz" is a
// weight unless the target is a volume, where vendors mean fluid ounces.
func Convert(qty decimal.Decimal, from, to enums.UOM) (decimal.Decimal, error) {
	if from == to {
		return qty, nil
	}
	if from == enums.UOMOunce && familyOf(to) == familyVolume {
		from = enums.UOMFluidOunce
	}
	if to == enums.UOMOunce && familyOf(from) == familyVolume {
		to = enums.UOMFluidOunce
	}

	ff, tf := familyOf(from), familyOf(to)
	if ff != tf || ff == familyUnknown {
		return decimal.Zero, fmt.Errorf("%w: %s (%s) to %s (%s)", ErrCrossFamily, from, ff, to, tf)
	}

	var table map[enums.UOM]decimal.Decimal
	switch ff {
	case familyVolume:
		table = volumeFactors
	case familyWeight:
		table = weightFactors
	default:
		// count and container units only convert to themselves
		return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrCrossFamily, from, to)
	}
	return qty.Mul(table[from]).Div(table[to]).Round(factorScale), nil
}
