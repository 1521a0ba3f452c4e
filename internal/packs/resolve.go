package packs

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

// ErrMeasureMismatch flags an item whose measure type disagrees with its base uom.
var ErrMeasureMismatch = errors.New("packs: measure type does not match base uom")

// Resolution is a parsed pack converted against an item's base uom.
type Resolution struct {
	Parsed
	BaseUOM       enums.UOM
	BaseFactor    decimal.Decimal
	Valid         bool
	InvalidReason string
}

// Resolve converts the pack to base. Items counted "each" take one base unit
// per container, so "6 x 750ml" of a bottle item is 6. Any other family
// mismatch returns ErrCrossFamily along with an invalid Resolution.
func Resolve(p Parsed, base enums.UOM) (Resolution, error) {
	res := Resolution{Parsed: p, BaseUOM: base}
	if base == "" {
		res.BaseUOM = p.UOM
		res.BaseFactor = p.ConversionFactor
		res.Valid = p.ConversionFactor.IsPositive()
		return res, nil
	}

	if base == enums.UOMEach && p.UOM != enums.UOMEach {
		res.BaseFactor = p.UnitsPerPack
		res.Valid = res.BaseFactor.IsPositive()
		return res, nil
	}

	factor, err := Convert(p.ConversionFactor, p.UOM, base)
	if err != nil {
		res.InvalidReason = err.Error()
		return res, err
	}
	if !factor.IsPositive() {
		res.InvalidReason = "conversion factor must be positive"
		return res, fmt.Errorf("%w: non-positive factor", ErrCrossFamily)
	}
	res.BaseFactor = factor
	res.Valid = true
	return res, nil
}

// ParseAndResolve runs ParsePack followed by Resolve.
func ParseAndResolve(text string, base enums.UOM) (Resolution, error) {
	p, err := ParsePack(text)
	if err != nil {
		return Resolution{}, err
	}
	return Resolve(p, base)
}

// CostPerBaseUnit divides a pack's unit cost by its base factor. Without a
// valid resolution the raw unit cost is returned and fallback is true.
func CostPerBaseUnit(unitCost decimal.Decimal, res *Resolution) (cost decimal.Decimal, fallback bool) {
	if res == nil || !res.Valid || !res.BaseFactor.IsPositive() {
		return unitCost, true
	}
	return unitCost.Div(res.BaseFactor).Round(factorScale), false
}

// ValidateMeasure reports ErrMeasureMismatch when an item's measure type and
// base uom disagree, e.g. an "Each" item recorded in liters. Callers surface it
// as a data-quality warning.
func ValidateMeasure(measure enums.MeasureType, base enums.UOM) error {
	var ok bool
	switch measure {
	case enums.MeasureTypeEach:
		ok = base.IsDiscrete()
	case enums.MeasureTypeWeight:
		ok = familyOf(base) == familyWeight
	case enums.MeasureTypeVolume:
		ok = familyOf(base) == familyVolume || base == enums.UOMOunce
	default:
		return nil
	}
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s item has base uom %s", ErrMeasureMismatch, measure, base)
}

// DefaultMeasure picks the measure type and base uom for a new item sold in
// unit u: milliliters for volumes, grams for weights, each otherwise.
func DefaultMeasure(u enums.UOM) (enums.MeasureType, enums.UOM) {
	switch familyOf(u) {
	case familyVolume:
		return enums.MeasureTypeVolume, enums.UOMMilliliter
	case familyWeight:
		return enums.MeasureTypeWeight, enums.UOMGram
	}
	return enums.MeasureTypeEach, enums.UOMEach
}
