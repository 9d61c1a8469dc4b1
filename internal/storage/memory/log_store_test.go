package memory

import (
	"context"
	"errors"
	"testing"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

const (
	topicSync = "0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1"
	topicSwap = "0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822"
)

func TestLogStore_ListLogs(t *testing.T) {
	store := NewLogStore(NewDB())
	ctx := context.Background()

	logs := []*domain.RawLog{
		{Address: "0xPOOL", Topics: []string{topicSwap}, BlockNumber: 11, LogIndex: 0, TransactionHash: "0xB"},
		{Address: "0xpool", Topics: []string{topicSwap}, BlockNumber: 10, LogIndex: 5, TransactionHash: "0xA"},
		{Address: "0xpool", Topics: []string{topicSync}, BlockNumber: 10, LogIndex: 4, TransactionHash: "0xA"},
		{Address: "0xother", Topics: []string{topicSwap}, BlockNumber: 10, LogIndex: 1, TransactionHash: "0xC"},
		{Address: "0xpool", Topics: []string{topicSwap}, BlockNumber: 10, LogIndex: 2, TransactionHash: "0xD"},
	}
	if err := store.InsertBulk(ctx, logs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.ListLogs(ctx, storage.LogFilter{
		Topics0:   []string{topicSwap},
		Addresses: []string{"0xPool"},
		FromBlock: 10,
		ToBlock:   11,
	})
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(got))
	}
	if got[0].LogIndex != 2 || got[1].LogIndex != 5 || got[2].BlockNumber != 11 {
		t.Errorf("unexpected order: %+v %+v %+v", got[0], got[1], got[2])
	}

	_, err = store.ListLogs(ctx, storage.LogFilter{FromBlock: 0, ToBlock: 100})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLogStore_LatestBefore(t *testing.T) {
	store := NewLogStore(NewDB())
	ctx := context.Background()

	logs := []*domain.RawLog{
		{Address: "0xpool", Topics: []string{topicSync}, Data: "0x01", BlockNumber: 9, TransactionIndex: 3, LogIndex: 7, TransactionHash: "0xa"},
		{Address: "0xpool", Topics: []string{topicSync}, Data: "0x02", BlockNumber: 10, TransactionIndex: 0, LogIndex: 1, TransactionHash: "0xb"},
		{Address: "0xpool", Topics: []string{topicSync}, Data: "0x03", BlockNumber: 10, TransactionIndex: 2, LogIndex: 4, TransactionHash: "0xc"},
	}
	if err := store.InsertBulk(ctx, logs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	ref := domain.Position{BlockNumber: 10, TxIndex: 2, LogIndex: 5}

	// the reference transaction's own Sync is skipped
	got, err := store.LatestBefore(ctx, "0xPOOL", topicSync, ref, "0xC")
	if err != nil {
		t.Fatalf("LatestBefore failed: %v", err)
	}
	if got.Data != "0x02" {
		t.Errorf("got %s, want 0x02", got.Data)
	}

	_, err = store.LatestBefore(ctx, "0xpool", topicSync, domain.Position{BlockNumber: 9}, "")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLogStore_SwapActivity(t *testing.T) {
	store := NewLogStore(NewDB())
	ctx := context.Background()

	now := int64(1_700_000_000)
	logs := []*domain.RawLog{
		{Address: "0xa", Topics: []string{topicSwap}, BlockNumber: 1, BlockTimestamp: now - 8*86400},
		{Address: "0xa", Topics: []string{topicSwap}, BlockNumber: 2, BlockTimestamp: now - 3*86400},
		{Address: "0xa", Topics: []string{topicSwap}, BlockNumber: 3, BlockTimestamp: now - 3600},
		{Address: "0xa", Topics: []string{topicSync}, BlockNumber: 4, BlockTimestamp: now},
		{Address: "0xb", Topics: []string{topicSwap}, BlockNumber: 5, BlockTimestamp: now - 100},
	}
	if err := store.InsertBulk(ctx, logs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.SwapActivity(ctx, []string{topicSwap}, []string{"0xA"}, now-86400, now-7*86400)
	if err != nil {
		t.Fatalf("SwapActivity failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(got))
	}
	a := got[0]
	if a.Swaps24h != 1 || a.Swaps7d != 2 {
		t.Errorf("counts: got 24h=%d 7d=%d", a.Swaps24h, a.Swaps7d)
	}
	if a.LastSwapBlock == nil || *a.LastSwapBlock != 3 {
		t.Errorf("last block: got %v", a.LastSwapBlock)
	}
}

func TestRawTransactionStore_GetByHashes(t *testing.T) {
	store := NewRawTransactionStore(NewDB())
	ctx := context.Background()

	txs := []*domain.RawTransaction{
		{Hash: "0xAA", BlockNumber: 1, FromAddress: "0xF1"},
		{Hash: "0xbb", BlockNumber: 2, FromAddress: "0xf2"},
	}
	if err := store.InsertBulk(ctx, txs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByHashes(ctx, []string{"0xaa", "0xBB", "0xcc"})
	if err != nil {
		t.Fatalf("GetByHashes failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].FromAddress != "0xf1" {
		t.Errorf("from should be lowercased, got %s", got[0].FromAddress)
	}
}
