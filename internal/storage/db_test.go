package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wbstorage/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertChunkOverwritesOnNaturalKey(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := rec("2024-03-01", 1, 10, 100, 0.10)
	first.Fingerprint = "fp-1"
	second := rec("2024-03-01", 1, 10, 100, 0.99)
	second.Fingerprint = "fp-2"

	if err := db.UpsertChunk(ctx, []internal.StorageRecord{first}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := db.UpsertChunk(ctx, []internal.StorageRecord{second}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := db.SelectRange(ctx, "2024-03-01", "2024-03-01")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after re-delivery, got %d", len(rows))
	}
	if rows[0].Fingerprint != "fp-2" {
		t.Fatalf("expected overwrite, got fingerprint %s", rows[0].Fingerprint)
	}
	if rows[0].WarehousePrice == nil || *rows[0].WarehousePrice != 0.99 {
		t.Fatalf("warehouse_price not updated: %v", rows[0].WarehousePrice)
	}
}

func TestSelectRangeFiltersAndOrders(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var batch []internal.StorageRecord
	for _, date := range []string{"2024-03-03", "2024-03-01", "2024-03-09"} {
		r := rec(date, 1, 1, 1, 1)
		r.Fingerprint = "fp"
		batch = append(batch, r)
	}
	if err := db.UpsertChunk(ctx, batch); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := db.SelectRange(ctx, "2024-03-01", "2024-03-08")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows in range, got %d", len(rows))
	}
	if rows[0].Date != "2024-03-01" || rows[1].Date != "2024-03-03" {
		t.Fatalf("rows out of order: %s, %s", rows[0].Date, rows[1].Date)
	}
}

func TestNullableColumnsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r := rec("2024-03-01", 1, 1, 1, 1)
	r.Fingerprint = "fp"
	// Everything else left absent.
	if err := db.UpsertChunk(ctx, []internal.StorageRecord{r}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := db.SelectRange(ctx, "2024-03-01", "2024-03-01")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	got := rows[0]
	if got.Warehouse != nil || got.GiID != nil || got.TariffFixDate != nil {
		t.Fatalf("absent columns came back present: %+v", got)
	}
	if got.WarehousePrice == nil || *got.WarehousePrice != 1 {
		t.Fatalf("present column lost: %v", got.WarehousePrice)
	}
}

func TestRunBookkeeping(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run := internal.RunRecord{
		TraceID:    "trace-1",
		Mode:       "sync",
		Windows:    2,
		Succeeded:  1,
		Deferred:   1,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}
	if err := db.RecordRun(ctx, run); err != nil {
		t.Fatalf("record run: %v", err)
	}

	if err := db.SetMetadata(ctx, "report.last_sync.sync", "2024-03-01T00:00:00Z"); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	if err := db.SetMetadata(ctx, "report.last_sync.sync", "2024-03-02T00:00:00Z"); err != nil {
		t.Fatalf("overwrite metadata: %v", err)
	}
	value, err := db.GetMetadata(ctx, "report.last_sync.sync")
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if value == nil || *value != "2024-03-02T00:00:00Z" {
		t.Fatalf("unexpected metadata value: %v", value)
	}

	missing, err := db.GetMetadata(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing metadata: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing key, got %q", *missing)
	}
}
