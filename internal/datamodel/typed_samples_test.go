package datamodel

import (
	"testing"
	"time"
)

func TestIntegerSamplesIntoChunks(t *testing.T) {
	var samples IntegerSamples
	for i := int64(1); i <= 5; i++ {
		samples = append(samples, Sample[int64]{Time: time.Unix(i, 0), Value: i})
	}

	chunks, err := samples.IntoChunks(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	lens := []int{chunks[0].Len(), chunks[1].Len(), chunks[2].Len()}
	if lens[0] != 2 || lens[1] != 2 || lens[2] != 1 {
		t.Fatalf("unexpected chunk lengths: %v", lens)
	}

	total := 0
	for _, c := range chunks {
		total += c.Len()
		if c.Kind() != Integer {
			t.Fatalf("expected Integer kind, got %s", c.Kind())
		}
	}
	if total != samples.Len() {
		t.Fatalf("chunk lengths do not sum to original: %d != %d", total, samples.Len())
	}

	first := chunks[0].(IntegerSamples)
	if first[0].Value != 1 || first[1].Value != 2 {
		t.Fatalf("order not preserved: %v", first)
	}
}

func TestIntoChunksUnchangedWhenUnderLimit(t *testing.T) {
	samples := NewIntegerSamples(
		Sample[int64]{Time: time.Unix(1, 0), Value: 1},
		Sample[int64]{Time: time.Unix(2, 0), Value: 2},
	)
	chunks, err := samples.IntoChunks(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Len() != 2 {
		t.Fatalf("expected single unchanged chunk, got %v", chunks)
	}
}

func TestIntoChunksRejectsZero(t *testing.T) {
	samples := NewIntegerSamples(Sample[int64]{Value: 1})
	if _, err := samples.IntoChunks(0); err == nil {
		t.Fatal("expected error for chunk size 0")
	}
}

func TestMicrosRoundTrip(t *testing.T) {
	t1 := time.Date(2024, 1, 19, 10, 30, 0, 123000, time.UTC)
	us := ToMicros(t1)
	t2 := FromMicros(us)
	if !t1.Equal(t2) {
		t.Fatalf("round trip mismatch: %v != %v", t1, t2)
	}
}

func TestEmptyOfKind(t *testing.T) {
	for _, k := range []SensorType{Integer, Numeric, Float, String, Boolean, Location, Json, Blob} {
		ts := EmptyOfKind(k)
		if ts.Len() != 0 {
			t.Fatalf("expected empty for kind %s", k)
		}
		if ts.Kind() != k {
			t.Fatalf("expected kind %s, got %s", k, ts.Kind())
		}
	}
}
