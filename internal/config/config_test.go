package config

import "testing"

func TestFeatureOrderNumericSort(t *testing.T) {
	d := Device{Features: map[string]RawFeature{
		"256": {Name: "b"},
		"10":  {Name: "a"},
		"3":   {Name: "c"},
	}}

	got := d.FeatureOrder()
	want := []string{"3", "10", "256"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIsHTTPVariant(t *testing.T) {
	withIV := Device{IV: "AAAAAAAAAAAAAAAAAAAAAA"}
	if !withIV.IsHTTPVariant() {
		t.Fatal("expected IsHTTPVariant true when iv is set")
	}

	withoutIV := Device{}
	if withoutIV.IsHTTPVariant() {
		t.Fatal("expected IsHTTPVariant false when iv is empty")
	}
}

// TestDecodeKeyRestoresPadding verifies base64url padding stripped from the
// device file (spec.md §3) is correctly restored before decoding.
func TestDecodeKeyRestoresPadding(t *testing.T) {
	d := Device{Key: "AAAAAAAAAAAAAAAAAAAAAA"} // 22 chars, needs "==" restored
	b, err := d.DecodeKey()
	if err != nil {
		t.Fatalf("DecodeKey: %v", err)
	}
	if len(b) != 16 {
		t.Fatalf("expected 16 decoded bytes, got %d", len(b))
	}
}

func TestDecodeIVEmptyIsNil(t *testing.T) {
	d := Device{}
	b, err := d.DecodeIV()
	if err != nil {
		t.Fatalf("DecodeIV: %v", err)
	}
	if b != nil {
		t.Fatalf("expected nil iv, got %v", b)
	}
}

func TestCatalogBuildsFromFeatures(t *testing.T) {
	min, max := 0, 100
	d := Device{Features: map[string]RawFeature{
		"42": {Name: "BSH.Common.Setting.Test", Access: "readWrite", Min: &min, Max: &max},
	}}

	cat := d.Catalog()
	f, ok := cat.Resolve("42")
	if !ok {
		t.Fatal("expected uid 42 to resolve")
	}
	if f.Name != "BSH.Common.Setting.Test" {
		t.Fatalf("got %+v", f)
	}
}
