package model

import (
	"reflect"
	"testing"
)

func TestFingerprintIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		fp   Fingerprint
		want bool
	}{
		{"zero value", Fingerprint{}, true},
		{"empty speakers map", Fingerprint{Speakers: map[string][]float64{}}, true},
		{"scalar", Fingerprint{Scalar: []float64{0.5}}, false},
		{"one speaker", Fingerprint{Speakers: map[string][]float64{"SPEAKER_00": {0.1}}}, false},
	}

	for _, tc := range tests {
		if got := tc.fp.IsEmpty(); got != tc.want {
			t.Fatalf("%s: IsEmpty() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanonicalSortsSpeakers(t *testing.T) {
	fp := Fingerprint{Speakers: map[string][]float64{
		"SPEAKER_01": {0.3, 0.4},
		"SPEAKER_00": {0.1, 0.2},
		"ALICE":      {0.9},
	}}

	got := fp.Canonical()
	want := []SpeakerVector{
		{Speaker: "ALICE", Fingerprint: []float64{0.9}},
		{Speaker: "SPEAKER_00", Fingerprint: []float64{0.1, 0.2}},
		{Speaker: "SPEAKER_01", Fingerprint: []float64{0.3, 0.4}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Canonical() = %v, want %v", got, want)
	}
}

func TestCanonicalIdempotent(t *testing.T) {
	fp := Fingerprint{Speakers: map[string][]float64{
		"B": {2},
		"A": {1},
	}}

	first := fp.Canonical()

	// Rebuild a fingerprint from the canonical form and canonicalize again;
	// the result must be identical (round-trip law).
	rebuilt := Fingerprint{Speakers: map[string][]float64{}}
	for _, p := range first {
		rebuilt.Speakers[p.Speaker] = p.Fingerprint
	}
	second := rebuilt.Canonical()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("canonicalization not idempotent: %v vs %v", first, second)
	}
}

func TestCanonicalScalar(t *testing.T) {
	fp := Fingerprint{Scalar: []float64{0.1, 0.2}}
	got := fp.Canonical()
	if len(got) != 1 || got[0].Speaker != "" {
		t.Fatalf("unexpected canonical form for scalar: %v", got)
	}
	if !reflect.DeepEqual(got[0].Fingerprint, []float64{0.1, 0.2}) {
		t.Fatalf("scalar vector lost: %v", got)
	}

	if (Fingerprint{}).Canonical() != nil {
		t.Fatal("expected nil canonical form for empty fingerprint")
	}
}

func TestAudioSampleIsEmpty(t *testing.T) {
	if !(AudioSample{}).IsEmpty() {
		t.Fatal("zero sample should be empty")
	}
	if (AudioSample{Data: []byte{1}}).IsEmpty() {
		t.Fatal("non-empty sample reported empty")
	}
}
