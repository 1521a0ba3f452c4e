package normalize

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeScenarios(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "case prefix and pack suffix", in: "CASE*DON JULIO ANEJO 6/750ML", want: "don julio anejo"},
		{name: "decimal liter size", in: "Patrón Silver Tequila 1.75L", want: "patron silver"},
		{name: "garbled whiskey fragment", in: "JOHNNIE WALKER BLACK WH 750 ML", want: "johnnie walker black"},
		{name: "nationality adjective", in: "Jameson Irish Whiskey 1L", want: "jameson"},
		{name: "bare number kept", in: "DON JULIO 1942 750ML", want: "don julio 1942"},
		{name: "punctuation noise", in: "ROMAINE_HEARTS | 3-CT \\ bag", want: "romaine hearts bag"},
		{name: "synonym abbreviation", in: "CASAMIGOS REPO 750ML", want: "casamigos reposado"},
		{name: "multi word synonym", in: "KJ CAB SAUV 750ML", want: "kj cabernet sauvignon"},
		{name: "flagged vendor synonyms", in: "JOSE CUERVO RESERVA DE LA FAMILY", want: "jose cuervo reposado de la familia"},
		{name: "trailing periods", in: "Herradura Anejo.", want: "herradura anejo"},
		{name: "whitespace only", in: "   \t ", want: ""},
		{name: "noise only", in: "***---", want: ""},
		{name: "keyword exposes size", in: "12 vodka oz", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"CASE*DON JULIO ANEJO 6/750ML",
		"Tito's Handmade Vodka 1.75 L",
		"12 vodka oz bottles",
		"CS 24/12OZ MODELO ESPECIAL",
		"EVOO 4/1 GAL",
		"Grey Goose - VDK - 6 x 1L",
		"AÑEJO REPO TEQ 750",
		"BUTTER UNSALTED 36/1 LB",
		"X X 6 X",
		"1 2 3 4 5 oz oz oz oz oz",
		"6 2 3 4 5 6 ml ml ml ml ml ml",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestAnalyzeFlagsLowQuality(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{in: "QWERTYUIOPASDFGHJKL12345 CASE", want: true},
		{in: "INV 123456789 LIME", want: true},
		{in: "DON JULIO ANEJO 6/750ML", want: false},
		{in: "SKU 1234567 LIMES", want: false},
	}
	for _, tc := range cases {
		if got := Analyze(tc.in).LowQuality; got != tc.want {
			t.Fatalf("Analyze(%q).LowQuality = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestResultErrOnEmpty(t *testing.T) {
	if err := Analyze(" CASE 6/750ML ").Err(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if err := Analyze("lime").Err(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestPipelineOrder(t *testing.T) {
	want := []string{
		"fold_case",
		"strip_pack_size",
		"strip_punctuation",
		"strip_pack_words",
		"strip_category_keywords",
		"strip_garbled_abbreviations",
		"collapse_whitespace",
		"apply_synonyms",
	}
	steps := New(nil).Steps()
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for i, step := range steps {
		if step.Name != want[i] {
			t.Fatalf("step %d: expected %s, got %s", i, want[i], step.Name)
		}
	}
}

func TestSteps(t *testing.T) {
	if got := foldCase("AÑEJO Crème"); got != "anejo creme" {
		t.Fatalf("foldCase: %q", got)
	}
	if got := stripPunctuation(`a*b-c_d/e\f|g`); got != "a b c d e f g" {
		t.Fatalf("stripPunctuation: %q", got)
	}
	if got := stripPackSize("limes 40 lb 6x750ml 12pk"); strings.Join(strings.Fields(got), " ") != "limes" {
		t.Fatalf("stripPackSize: %q", got)
	}
	if got := stripPackWords("case of limes cs"); got != "of limes" {
		t.Fatalf("stripPackWords: %q", got)
	}
	if got := stripCategoryKeywords("mexican tequila blanco"); got != "blanco" {
		t.Fatalf("stripCategoryKeywords: %q", got)
	}
	if got := stripGarbledAbbreviations("jack daniels whis"); got != "jack daniels" {
		t.Fatalf("stripGarbledAbbreviations: %q", got)
	}
	if got := collapseWhitespace("  a   b  "); got != "a b" {
		t.Fatalf("collapseWhitespace: %q", got)
	}
}

func TestLoadSynonymsRejectsChains(t *testing.T) {
	yaml := `
synonyms:
  - from: repo
    to: reposado
  - from: reposado
    to: rested
`
	if _, err := LoadSynonyms(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected chained synonym to be rejected")
	}
}

func TestLoadSynonymsRejectsStrippedTargets(t *testing.T) {
	yaml := `
synonyms:
  - from: teqa
    to: tequila
`
	if _, err := LoadSynonyms(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected synonym rewriting to a stripped keyword to be rejected")
	}
}

func TestSynonymApplyDoesNotCascade(t *testing.T) {
	table, err := LoadSynonyms(strings.NewReader(`
synonyms:
  - from: blco
    to: blanco
  - from: cab sauv
    to: cabernet sauvignon
`))
	if err != nil {
		t.Fatalf("LoadSynonyms: %v", err)
	}
	if got := table.Apply("blco cab sauv cab"); got != "blanco cabernet sauvignon cab" {
		t.Fatalf("unexpected rewrite %q", got)
	}
}

func TestDefaultTableFlagsVendorSpecificEntries(t *testing.T) {
	flagged := map[string]string{}
	for _, e := range defaultSynonyms.Entries() {
		if e.Unverified {
			flagged[e.From] = e.To
		}
	}
	if flagged["family"] != "familia" || flagged["reserva"] != "reposado" {
		t.Fatalf("expected family/reserva entries to be flagged, got %v", flagged)
	}
}
