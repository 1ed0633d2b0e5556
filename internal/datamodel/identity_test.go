package datamodel

import (
	"testing"
)

func init() {
	InitSalt("sensapp tests")
}

func TestSortLabels(t *testing.T) {
	labels := []Label{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}
	sortLabels(labels)
	if labels[0].Key != "a" || labels[1].Key != "b" {
		t.Fatalf("unexpected order: %v", labels)
	}

	labels = append(labels, Label{Key: "b", Value: "1"})
	sortLabels(labels)
	if labels[1].Key != "b" || labels[1].Value != "1" || labels[2].Value != "2" {
		t.Fatalf("same-key tie-break failed: %v", labels)
	}
}

func TestContainsSpecialChars(t *testing.T) {
	if !ContainsSpecialChars("\x0Btest") {
		t.Fatal("expected VT to be detected")
	}
	if !ContainsSpecialChars("test\x1C") {
		t.Fatal("expected FS to be detected")
	}
	if ContainsSpecialChars("normal_string") {
		t.Fatal("did not expect special chars")
	}
}

func TestComputeIdentityBuffer(t *testing.T) {
	desc := "Celsius"
	unit := NewUnit("Celsius", nil)
	_ = desc
	labels := []Label{{Key: "location", Value: "office"}}

	buf1, err := computeIdentityBuffer("TestSensor", Numeric, &unit, labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf2, err := computeIdentityBuffer("TestSensor", Numeric, nil, labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf1) == string(buf2) {
		t.Fatal("expected different buffers when unit differs")
	}

	if _, err := computeIdentityBuffer("Test\x0BSensor", Numeric, nil, labels); err == nil {
		t.Fatal("expected error for special char in name")
	}
	badLabels := []Label{{Key: "location\x0B", Value: "office"}}
	if _, err := computeIdentityBuffer("TestSensor", Numeric, nil, badLabels); err == nil {
		t.Fatal("expected error for special char in label key")
	}
	badLabels2 := []Label{{Key: "location", Value: "office\x0B"}}
	if _, err := computeIdentityBuffer("TestSensor", Numeric, nil, badLabels2); err == nil {
		t.Fatal("expected error for special char in label value")
	}
}

// TestSensorNewWithoutUUIDDeterminism exercises P1/P2/S1. The literal
// UUID strings in the reference implementation were derived with
// Blake3; this implementation keys Blake2b instead (see SPEC_FULL.md
// §3.3), so the properties are checked directly rather than against
// the reference's hardcoded strings.
func TestSensorNewWithoutUUIDDeterminism(t *testing.T) {
	unit := NewUnit("WGS84", nil)

	a, err := NewSensorWithoutUUID("TestSensor", Location, &unit, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := NewSensorWithoutUUID("TestSensor", Location, &unit, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.UUID != b.UUID {
		t.Fatalf("expected deterministic UUID, got %s != %s", a.UUID, b.UUID)
	}

	withLabel, err := NewSensorWithoutUUID("TestSensor", Location, &unit, []Label{{Key: "location", Value: "office"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withLabel.UUID == a.UUID {
		t.Fatal("expected label to change the derived UUID")
	}

	reordered, err := NewSensorWithoutUUID("TestSensor", Location, &unit, []Label{{Key: "location", Value: "office"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reordered.UUID != withLabel.UUID {
		t.Fatal("expected identical label set to produce identical UUID")
	}

	changedType, err := NewSensorWithoutUUID("TestSensor", Float, &unit, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changedType.UUID == a.UUID {
		t.Fatal("expected sensor_type to change the derived UUID")
	}
}

func TestLabelPermutationInvariance(t *testing.T) {
	unit := NewUnit("Celsius", nil)
	s1, err := NewSensorWithoutUUID("TestSensor", Numeric, &unit, []Label{
		{Key: "a", Value: "1"}, {Key: "b", Value: "2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := NewSensorWithoutUUID("TestSensor", Numeric, &unit, []Label{
		{Key: "b", Value: "2"}, {Key: "a", Value: "1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s1.UUID != s2.UUID {
		t.Fatal("expected label permutation to not affect the derived UUID")
	}
}

func TestNameToUUIDAcceptsUUIDVerbatim(t *testing.T) {
	const lit = "20115fa5-aecd-8271-835d-07bfee981d6a"
	id, err := NameToUUID(lit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != lit {
		t.Fatalf("expected verbatim UUID, got %s", id)
	}
}

func TestNameToUUIDDerivesForNonUUID(t *testing.T) {
	id1, err := NameToUUID("some-free-form-name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := NameToUUID("some-free-form-name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Fatal("expected deterministic derivation for repeated calls")
	}
}
