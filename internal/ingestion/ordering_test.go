package ingestion

import (
	"errors"
	"testing"

	"sandwich-scan/internal/domain"
)

func TestSortLogs(t *testing.T) {
	// Intentionally unordered logs
	logs := []*domain.RawLog{
		{BlockNumber: 200, LogIndex: 0},
		{BlockNumber: 100, LogIndex: 7},
		{BlockNumber: 100, LogIndex: 2},
		{BlockNumber: 300, LogIndex: 1},
		{BlockNumber: 100, LogIndex: 3},
	}

	SortLogs(logs)

	expected := []struct {
		block    int64
		logIndex int
	}{
		{100, 2},
		{100, 3},
		{100, 7},
		{200, 0},
		{300, 1},
	}

	for i, exp := range expected {
		if logs[i].BlockNumber != exp.block || logs[i].LogIndex != exp.logIndex {
			t.Errorf("Index %d: got (%d, %d), want (%d, %d)",
				i, logs[i].BlockNumber, logs[i].LogIndex, exp.block, exp.logIndex)
		}
	}
}

func TestSortLogs_Empty(t *testing.T) {
	var logs []*domain.RawLog
	SortLogs(logs) // Should not panic
}

func TestValidateLogOrdering(t *testing.T) {
	valid := []*domain.RawLog{
		{BlockNumber: 100, LogIndex: 0},
		{BlockNumber: 100, LogIndex: 1},
		{BlockNumber: 101, LogIndex: 0},
	}
	if err := ValidateLogOrdering(valid); err != nil {
		t.Errorf("Expected nil error for valid ordering, got %v", err)
	}

	invalid := []*domain.RawLog{
		{BlockNumber: 101, LogIndex: 0},
		{BlockNumber: 100, LogIndex: 1},
	}
	if err := ValidateLogOrdering(invalid); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected ErrInvalidOrdering, got %v", err)
	}

	duplicate := []*domain.RawLog{
		{BlockNumber: 100, LogIndex: 1},
		{BlockNumber: 100, LogIndex: 1},
	}
	if err := ValidateLogOrdering(duplicate); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected ErrInvalidOrdering for duplicates, got %v", err)
	}
}

func TestDedupLogs(t *testing.T) {
	logs := []*domain.RawLog{
		{BlockNumber: 100, LogIndex: 1, Data: "0x01"},
		{BlockNumber: 100, LogIndex: 1, Data: "0x02"},
		{BlockNumber: 100, LogIndex: 2},
		{BlockNumber: 101, LogIndex: 2},
		{BlockNumber: 101, LogIndex: 2},
	}

	got := DedupLogs(logs)
	if len(got) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(got))
	}
	if got[0].Data != "0x01" {
		t.Errorf("expected first duplicate kept, got %s", got[0].Data)
	}
	if err := ValidateLogOrdering(got); err != nil {
		t.Errorf("deduped logs not strictly ordered: %v", err)
	}
}
