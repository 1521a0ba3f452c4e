package enums

import "testing"

func TestParseMeasureTypeIgnoresCase(t *testing.T) {
	got, err := ParseMeasureType(" each ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != MeasureTypeEach {
		t.Fatalf("expected Each, got %q", got)
	}
	if _, err := ParseMeasureType("crate"); err == nil {
		t.Fatal("expected invalid measure type to fail")
	}
}

func TestUOMDiscrete(t *testing.T) {
	for _, u := range []UOM{UOMEach, UOMCase, UOMPack} {
		if !u.IsDiscrete() {
			t.Fatalf("expected %s to be discrete", u)
		}
	}
	for _, u := range []UOM{UOMMilliliter, UOMPound, UOMQuart} {
		if u.IsDiscrete() {
			t.Fatalf("expected %s to be continuous", u)
		}
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	if _, err := ParseUOM("cup"); err == nil {
		t.Fatal("expected unknown uom to fail")
	}
	if _, err := ParseLineStatus("archived"); err == nil {
		t.Fatal("expected unknown line status to fail")
	}
	if p, err := ParseProvenance("curated"); err != nil || p != ProvenanceCurated {
		t.Fatalf("expected curated provenance, got %q err=%v", p, err)
	}
	if !PackTypeKeg.IsValid() || PackType("crate").IsValid() {
		t.Fatal("unexpected pack type validity")
	}
}
