package main

import (
	"testing"
	"time"
)

func TestPeriod(t *testing.T) {
	now := time.Date(2025, 6, 17, 8, 0, 0, 0, time.UTC)

	from, to, err := period("", "", now)
	if err != nil {
		t.Fatalf("period failed: %v", err)
	}
	if want := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC); !to.Equal(want) {
		t.Errorf("to = %s, want %s", to, want)
	}
	if want := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Errorf("from = %s, want %s", from, want)
	}

	from, to, err = period("2025-01", "2025-03", now)
	if err != nil {
		t.Fatalf("period failed: %v", err)
	}
	if from.Month() != time.January || to.Month() != time.March {
		t.Errorf("got %s to %s", from, to)
	}

	if _, _, err := period("2025-03", "2025-03", now); err == nil {
		t.Error("expected error for empty period")
	}
	if _, _, err := period("March", "", now); err == nil {
		t.Error("expected error for bad month")
	}
}

func TestFormatsFor(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"both", 2, true},
		{"", 2, true},
		{"csv", 1, true},
		{"markdown", 1, true},
		{"md", 1, true},
		{"xml", 0, false},
	}
	for _, tt := range tests {
		got, err := formatsFor(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("formatsFor(%q) err = %v", tt.in, err)
			continue
		}
		if len(got) != tt.want {
			t.Errorf("formatsFor(%q) = %v, want %d formats", tt.in, got, tt.want)
		}
	}
}
