// Package packs resolves vendor pack descriptions ("6 x 750ml") into
// structured quantities and conversion factors to an item's base unit.
package packs

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

var (
	// ErrPackParse is returned when no pack shape is recognized.
	ErrPackParse = errors.New("packs: unrecognized pack description")
	// ErrCrossFamily is returned when the pack unit cannot convert to the base uom.
	ErrCrossFamily = errors.New("packs: unit not convertible to base uom")
)

// longest spellings first so "fl oz" wins over "oz" and "lbs" over "lb"
const uomPattern = `fl\.?\s?oz|floz|ltrs?|liters?|litres?|ml|lbs?|kg|gal|quarts?|qt|oz|each|ea|ct|cases?|cs|packs?|pk|g|l`

// numbers may start with a dot (".75L") but never continue a longer number
const (
	numPattern     = `(\d+(?:\.\d+)?|\.\d+)`
	leadingPattern = `(?:^|[^\d.])`
)

var (
	multiRe  = regexp.MustCompile(leadingPattern + numPattern + `\s*(x|/|\*)\s*` + numPattern + `\s*(` + uomPattern + `)\b`)
	singleRe = regexp.MustCompile(leadingPattern + numPattern + `[\s-]*(` + uomPattern + `)\b`)
	kegRe    = regexp.MustCompile(`\b(?:keg|half\s?barrel|sixtel)\b`)
	bagRe    = regexp.MustCompile(`\b(?:bag|bags|sack)\b`)
	boxRe    = regexp.MustCompile(`\b(?:box|bx|carton)\b`)
)

var uomAliases = map[string]enums.UOM{
	"ml":     enums.UOMMilliliter,
	"l":      enums.UOMLiter,
	"ltr":    enums.UOMLiter,
	"ltrs":   enums.UOMLiter,
	"liter":  enums.UOMLiter,
	"liters": enums.UOMLiter,
	"litre":  enums.UOMLiter,
	"litres": enums.UOMLiter,
	"oz":     enums.UOMOunce,
	"floz":   enums.UOMFluidOunce,
	"fl.oz":  enums.UOMFluidOunce,
	"gal":    enums.UOMGallon,
	"lb":     enums.UOMPound,
	"lbs":    enums.UOMPound,
	"kg":     enums.UOMKilogram,
	"g":      enums.UOMGram,
	"each":   enums.UOMEach,
	"ea":     enums.UOMEach,
	"ct":     enums.UOMEach,
	"case":   enums.UOMCase,
	"cases":  enums.UOMCase,
	"cs":     enums.UOMCase,
	"pack":   enums.UOMPack,
	"packs":  enums.UOMPack,
	"pk":     enums.UOMPack,
	"qt":     enums.UOMQuart,
	"quart":  enums.UOMQuart,
	"quarts": enums.UOMQuart,
}

// Parsed is a recognized pack description. ConversionFactor is expressed in
// UOM until Resolve converts it to an item's base unit.
type Parsed struct {
	PackType         enums.PackType
	UnitsPerPack     decimal.Decimal
	UnitSize         decimal.Decimal
	UOM              enums.UOM
	ConversionFactor decimal.Decimal
	Source           string
}

// ParsePack recognizes "<count> x <size><uom>" (also "/" and "*") and
// "<size><uom>" anywhere in text. The first multi-unit match wins over any
// single-unit match. "1/2 gal" and "1/4 gal" are half and quarter sizes, not
// a pack of one.
func ParsePack(text string) (Parsed, error) {
	lower := strings.ToLower(text)

	if m, source, ok := match(multiRe, lower); ok {
		count, size, uom, ok := parseParts(m[1], m[3], m[4])
		if ok && count.IsPositive() && size.IsPositive() {
			p := Parsed{
				PackType:     enums.PackTypeCase,
				UnitsPerPack: count,
				UnitSize:     size,
				UOM:          uom,
				Source:       source,
			}
			if isFraction(m[2], count, size, uom) {
				p.PackType = singlePackType(uom)
				p.UnitsPerPack = decimal.NewFromInt(1)
				p.UnitSize = count.Div(size)
			}
			return finish(p, lower), nil
		}
	}

	if m, source, ok := match(singleRe, lower); ok {
		size, _, uom, ok := parseParts(m[1], "1", m[2])
		if ok && size.IsPositive() {
			p := Parsed{
				UnitsPerPack: decimal.NewFromInt(1),
				UnitSize:     size,
				UOM:          uom,
				PackType:     singlePackType(uom),
				Source:       source,
			}
			if uom.IsDiscrete() {
				// "12 ct" is twelve of one thing, not one thing of size twelve
				p.UnitsPerPack, p.UnitSize = size, decimal.NewFromInt(1)
				if uom == enums.UOMEach && !size.Equal(decimal.NewFromInt(1)) {
					p.PackType = enums.PackTypeCase
				}
			}
			return finish(p, lower), nil
		}
	}

	return Parsed{}, ErrPackParse
}

// match returns the capture groups and the matched text without the leading
// boundary character.
func match(re *regexp.Regexp, s string) ([]string, string, bool) {
	idx := re.FindStringSubmatchIndex(s)
	if idx == nil {
		return nil, "", false
	}
	groups := make([]string, len(idx)/2)
	for i := range groups {
		if idx[2*i] >= 0 {
			groups[i] = s[idx[2*i]:idx[2*i+1]]
		}
	}
	return groups, strings.TrimSpace(s[idx[2]:idx[1]]), true
}

func isFraction(sep string, count, size decimal.Decimal, uom enums.UOM) bool {
	if sep != "/" || !count.Equal(decimal.NewFromInt(1)) || familyOf(uom) != familyVolume {
		return false
	}
	return size.Equal(decimal.NewFromInt(2)) || size.Equal(decimal.NewFromInt(4))
}

func parseParts(first, second, rawUOM string) (decimal.Decimal, decimal.Decimal, enums.UOM, bool) {
	a, err := decimal.NewFromString(first)
	if err != nil {
		return decimal.Zero, decimal.Zero, "", false
	}
	b, err := decimal.NewFromString(second)
	if err != nil {
		return decimal.Zero, decimal.Zero, "", false
	}
	uom, ok := canonicalUOM(rawUOM)
	return a, b, uom, ok
}

func canonicalUOM(raw string) (enums.UOM, bool) {
	key := strings.Join(strings.Fields(raw), "")
	if strings.HasPrefix(key, "fl") && strings.HasSuffix(key, "oz") {
		key = "fl.oz"
	}
	uom, ok := uomAliases[key]
	return uom, ok
}

func singlePackType(uom enums.UOM) enums.PackType {
	switch {
	case uom == enums.UOMCase || uom == enums.UOMPack:
		return enums.PackTypeCase
	case uom.IsDiscrete():
		return enums.PackTypeEach
	case familyOf(uom) == familyVolume:
		return enums.PackTypeBottle
	default:
		return enums.PackTypeEach
	}
}

// finish applies container words and computes the in-uom conversion factor.
func finish(p Parsed, text string) Parsed {
	switch {
	case kegRe.MatchString(text):
		p.PackType = enums.PackTypeKeg
	case bagRe.MatchString(text):
		p.PackType = enums.PackTypeBag
	case boxRe.MatchString(text):
		p.PackType = enums.PackTypeBox
	}
	p.ConversionFactor = p.UnitsPerPack.Mul(p.UnitSize)
	return p
}
