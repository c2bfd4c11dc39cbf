package storage

import (
	"context"
	"errors"
	"testing"

	"wbstorage/internal"
)

type fakeSink struct {
	chunks [][]internal.StorageRecord
	fail   bool
}

func (f *fakeSink) UpsertChunk(ctx context.Context, records []internal.StorageRecord) error {
	if f.fail {
		return errors.New("sink down")
	}
	chunk := make([]internal.StorageRecord, len(records))
	copy(chunk, records)
	f.chunks = append(f.chunks, chunk)
	return nil
}

func (f *fakeSink) SelectRange(ctx context.Context, from, to string) ([]internal.StorageRecord, error) {
	return nil, nil
}

func (f *fakeSink) RecordRun(ctx context.Context, run internal.RunRecord) error { return nil }

func (f *fakeSink) SetMetadata(ctx context.Context, key, value string) error { return nil }

func (f *fakeSink) Close() error { return nil }

func rec(date string, nmID, chrtID, officeID int64, price float64) internal.StorageRecord {
	return internal.StorageRecord{
		Date:           date,
		NmID:           &nmID,
		ChrtID:         &chrtID,
		OfficeID:       &officeID,
		WarehousePrice: &price,
	}
}

func TestWriterDeduplicatesByNaturalKey(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, 1000)

	batch := []internal.StorageRecord{
		rec("2024-03-01", 1, 10, 100, 0.10),
		rec("2024-03-01", 2, 20, 100, 0.20),
		rec("2024-03-01", 1, 10, 100, 0.99), // same key as the first, later wins
	}

	n, err := w.Write(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records written, got %d", n)
	}
	if len(sink.chunks) != 1 || len(sink.chunks[0]) != 2 {
		t.Fatalf("unexpected chunking: %v", sink.chunks)
	}
	for _, got := range sink.chunks[0] {
		if *got.NmID == 1 && *got.WarehousePrice != 0.99 {
			t.Fatalf("last write did not win: price=%v", *got.WarehousePrice)
		}
	}
}

func TestWriterChunksBatches(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, 2)

	var batch []internal.StorageRecord
	for i := int64(0); i < 5; i++ {
		batch = append(batch, rec("2024-03-01", i, i, i, 1))
	}

	n, err := w.Write(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 written, got %d", n)
	}
	if len(sink.chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(sink.chunks))
	}
	if len(sink.chunks[2]) != 1 {
		t.Fatalf("expected trailing chunk of 1, got %d", len(sink.chunks[2]))
	}
}

func TestWriterSurfacesChunkFailure(t *testing.T) {
	sink := &fakeSink{fail: true}
	w := NewWriter(sink, 10)

	_, err := w.Write(context.Background(), []internal.StorageRecord{rec("2024-03-01", 1, 1, 1, 1)})
	if err == nil {
		t.Fatal("expected chunk failure to surface")
	}
}

func TestWriterNilKeyFieldsCollapseToZero(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, 10)

	a := internal.StorageRecord{Date: "2024-03-01"}
	nm := int64(0)
	b := internal.StorageRecord{Date: "2024-03-01", NmID: &nm}

	n, err := w.Write(context.Background(), []internal.StorageRecord{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("absent and zero key fields must collide, wrote %d", n)
	}
}
