package catalog

import (
	"errors"
	"testing"
)

func intPtr(n int) *int { return &n }

// S3: value decode.
func TestDecodeValuesDoorState(t *testing.T) {
	c := New([]string{"256"}, map[string]*Feature{
		"256": {
			Name:   "BSH.Common.Status.DoorState",
			RefCID: "03",
			RefDID: "80",
			Values: map[string]string{"0": "Open", "1": "Closed"},
		},
	})

	got := c.DecodeValues([]map[string]interface{}{
		{"uid": float64(256), "value": float64(1)},
	})

	if got["BSH.Common.Status.DoorState"] != "Closed" {
		t.Fatalf("got %v", got)
	}
}

// Property 7: decoding idempotence.
func TestDecodeValuesIdempotent(t *testing.T) {
	c := New([]string{"256"}, map[string]*Feature{
		"256": {Name: "BSH.Common.Status.DoorState", Values: map[string]string{"0": "Open", "1": "Closed"}},
	})

	payload := []map[string]interface{}{{"uid": float64(256), "value": float64(1)}}

	first := c.DecodeValues(payload)
	second := c.DecodeValues(payload)

	if first["BSH.Common.Status.DoorState"] != second["BSH.Common.Status.DoorState"] {
		t.Fatalf("not idempotent: %v vs %v", first, second)
	}
}

func TestDecodeBooleanFeature(t *testing.T) {
	c := New(nil, map[string]*Feature{
		"10": {Name: "Some.Bool.Feature", RefCID: "01", RefDID: "00"},
	})

	got := c.DecodeValues([]map[string]interface{}{{"uid": float64(10), "value": "On"}})
	if got["Some.Bool.Feature"] != true {
		t.Fatalf("got %v", got)
	}
}

func TestDecodeDropsMissingValue(t *testing.T) {
	c := New(nil, map[string]*Feature{"1": {Name: "X"}})
	got := c.DecodeValues([]map[string]interface{}{{"uid": float64(1)}})
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %v", got)
	}
}

// S4: write validation.
func TestValidateWriteRange(t *testing.T) {
	c := New([]string{"258"}, map[string]*Feature{
		"258": {Access: AccessReadWrite, Min: intPtr(30), Max: intPtr(250)},
	})

	if _, err := c.ValidateWrite(map[string]interface{}{"uid": float64(258), "value": float64(275)}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("out of range: got %v, want ErrInvalidValue", err)
	}

	normalized, err := c.ValidateWrite(map[string]interface{}{"uid": float64(258), "value": float64(180)})
	if err != nil {
		t.Fatalf("in range: unexpected error %v", err)
	}
	if normalized["value"] != 180 {
		t.Fatalf("got %v", normalized)
	}
}

func TestValidateWriteUnknownUID(t *testing.T) {
	c := New(nil, map[string]*Feature{})
	if _, err := c.ValidateWrite(map[string]interface{}{"uid": float64(1), "value": float64(1)}); !errors.Is(err, ErrInvalidUID) {
		t.Fatalf("got %v, want ErrInvalidUID", err)
	}
}

func TestValidateWriteEnumByDisplayString(t *testing.T) {
	c := New([]string{"5"}, map[string]*Feature{
		"5": {Access: AccessReadWrite, Values: map[string]string{"0": "Off", "1": "On"}},
	})

	normalized, err := c.ValidateWrite(map[string]interface{}{"uid": float64(5), "value": "On"})
	if err != nil {
		t.Fatal(err)
	}
	if normalized["value"] != 1 {
		t.Fatalf("got %v", normalized)
	}
}

func TestValidateWriteAllowsOnAccessMismatch(t *testing.T) {
	c := New([]string{"7"}, map[string]*Feature{"7": {Access: AccessRead}})
	if _, err := c.ValidateWrite(map[string]interface{}{"uid": float64(7), "value": float64(1)}); err != nil {
		t.Fatalf("expected write to be allowed with a warning, got %v", err)
	}
}

// S6: program name translation.
func TestValidateProgramByName(t *testing.T) {
	c := New([]string{"8195"}, map[string]*Feature{
		"8195": {Name: "LaundryCare.Washer.Program.Cotton"},
	})

	item := map[string]interface{}{"program": "Cotton", "options": []interface{}{}}
	if err := c.ValidateProgram(item); err != nil {
		t.Fatal(err)
	}
	if item["program"] != 8195 {
		t.Fatalf("got %v", item)
	}
}

func TestValidateProgramRejectsNonProgramUID(t *testing.T) {
	c := New([]string{"1"}, map[string]*Feature{"1": {Name: "BSH.Common.Status.DoorState"}})

	item := map[string]interface{}{"program": float64(1)}
	if err := c.ValidateProgram(item); !errors.Is(err, ErrInvalidProgram) {
		t.Fatalf("got %v, want ErrInvalidProgram", err)
	}
}

func TestApplyDescriptionChangeMergesAndCreates(t *testing.T) {
	c := New(nil, map[string]*Feature{})

	access := "readWrite"
	min, max := 0, 100
	c.ApplyDescriptionChange(DescriptionChange{UID: "42", Access: &access, Min: &min, Max: &max})

	f, ok := c.Resolve("42")
	if !ok {
		t.Fatal("expected uid 42 to be created")
	}
	if f.Access != AccessReadWrite || *f.Min != 0 || *f.Max != 100 {
		t.Fatalf("got %+v", f)
	}
}

func TestFindUIDByNameFirstMatchOrder(t *testing.T) {
	c := New([]string{"1", "2"}, map[string]*Feature{
		"1": {Name: "BSH.Common.Root.ActiveProgram"},
		"2": {Name: "LaundryCare.Washer.Program.Cotton"},
	})

	uid, ok := c.FindUIDByName("Program")
	if !ok || uid != "1" {
		t.Fatalf("got uid=%q ok=%v", uid, ok)
	}
}
