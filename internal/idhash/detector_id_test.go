package idhash

import (
	"math/big"
	"strings"
	"testing"
)

func TestComputeDetectorID(t *testing.T) {
	tests := []struct {
		name      string
		detector  string
		window    int64
		gap       int64
		minVictim *big.Int
	}{
		{
			name:      "defaults",
			detector:  "sandwich-scan",
			window:    100_000,
			gap:       2,
			minVictim: big.NewInt(0),
		},
		{
			name:      "nil threshold",
			detector:  "sandwich-scan",
			window:    100_000,
			gap:       2,
			minVictim: nil,
		},
		{
			name:      "custom",
			detector:  "backfill",
			window:    5_000,
			gap:       10,
			minVictim: big.NewInt(1_000_000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDetectorID(tt.detector, tt.window, tt.gap, tt.minVictim)

			prefix := tt.detector + "@"
			if !strings.HasPrefix(got, prefix) {
				t.Errorf("ComputeDetectorID() = %s, want prefix %s", got, prefix)
			}
			if len(got) != len(prefix)+FingerprintLen {
				t.Errorf("ComputeDetectorID() length = %d, want %d", len(got), len(prefix)+FingerprintLen)
			}

			got2 := ComputeDetectorID(tt.detector, tt.window, tt.gap, tt.minVictim)
			if got != got2 {
				t.Errorf("ComputeDetectorID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeDetectorID_NilIsZero(t *testing.T) {
	a := ComputeDetectorID("d", 100, 2, nil)
	b := ComputeDetectorID("d", 100, 2, big.NewInt(0))
	if a != b {
		t.Errorf("nil threshold should hash like zero: %s != %s", a, b)
	}
}

func TestComputeDetectorID_DifferentInputs(t *testing.T) {
	base := ComputeDetectorID("d", 100_000, 2, big.NewInt(0))

	if base == ComputeDetectorID("d", 50_000, 2, big.NewInt(0)) {
		t.Error("Different window should produce different hash")
	}
	if base == ComputeDetectorID("d", 100_000, 3, big.NewInt(0)) {
		t.Error("Different gap should produce different hash")
	}
	if base == ComputeDetectorID("d", 100_000, 2, big.NewInt(1)) {
		t.Error("Different min_victim should produce different hash")
	}
}
