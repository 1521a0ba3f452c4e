package glaccounts

import "strings"

type categoryCodes struct {
	defaultCode   string
	subcategories map[string]string
}

// chart is the deterministic category → subcategory → account-code table.
var chart = map[string]categoryCodes{
	"food": {
		defaultCode: "5100",
		subcategories: map[string]string{
			"meat":      "5110",
			"seafood":   "5120",
			"dairy":     "5130",
			"produce":   "5140",
			"bakery":    "5150",
			"dry goods": "5160",
		},
	},
	"beverage": {
		defaultCode: "5200",
		subcategories: map[string]string{
			"beer":          "5210",
			"wine":          "5220",
			"liquor":        "5230",
			"non alcoholic": "5240",
		},
	},
	"supplies": {
		defaultCode: "5300",
		subcategories: map[string]string{
			"paper":      "5310",
			"cleaning":   "5320",
			"smallwares": "5330",
		},
	},
}

var labelAliases = map[string]string{
	"beverages": "beverage",
	"drinks":    "beverage",
	"bev":       "beverage",
	"supply":    "supplies",
	"spirits":   "liquor",
	"na":        "non alcoholic",
	"nonalc":    "non alcoholic",
	"dry":       "dry goods",
	"drygoods":  "dry goods",
	"fish":      "seafood",
	"proteins":  "meat",
	"protein":   "meat",
	"bread":     "bakery",
	"chemicals": "cleaning",
}

func canonicalLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.Join(strings.FieldsFunc(v, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '/'
	}), " ")
	if alias, ok := labelAliases[v]; ok {
		return alias
	}
	return v
}

// Codes returns the subcategory code (empty when the subcategory is not
// recognized) and the category default code. ok is false for unknown
// categories.
func Codes(category, subcategory string) (specific, fallback string, ok bool) {
	codes, ok := chart[canonicalLabel(category)]
	if !ok {
		return "", "", false
	}
	return codes.subcategories[canonicalLabel(subcategory)], codes.defaultCode, true
}
