package storage

import (
	"context"

	"wbstorage/internal"
)

// Sink is the single write surface of the persistence layer: upsert a chunk
// of records keyed by (date, nm_id, chrt_id, office_id). Both backends also
// carry run bookkeeping and a small metadata key/value store.
type Sink interface {
	UpsertChunk(ctx context.Context, records []internal.StorageRecord) error
	SelectRange(ctx context.Context, from, to string) ([]internal.StorageRecord, error)
	RecordRun(ctx context.Context, run internal.RunRecord) error
	SetMetadata(ctx context.Context, key, value string) error
	Close() error
}

// Writer deduplicates a batch by natural key (last write wins) and pushes it
// to the sink in bounded-size chunks, so re-delivering the same logical row
// within one batch or across runs never duplicates storage rows.
type Writer struct {
	sink      Sink
	chunkSize int
}

func NewWriter(sink Sink, chunkSize int) *Writer {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &Writer{sink: sink, chunkSize: chunkSize}
}

func (w *Writer) Sink() Sink { return w.sink }

// Write upserts a batch and returns the number of records handed to the
// sink after dedupe. A chunk failure is returned as-is; the caller decides
// whether to retry the whole window.
func (w *Writer) Write(ctx context.Context, records []internal.StorageRecord) (int, error) {
	clean := dedupeByKey(records)

	for i := 0; i < len(clean); i += w.chunkSize {
		j := i + w.chunkSize
		if j > len(clean) {
			j = len(clean)
		}
		if err := w.sink.UpsertChunk(ctx, clean[i:j]); err != nil {
			return i, err
		}
	}
	return len(clean), nil
}

func dedupeByKey(records []internal.StorageRecord) []internal.StorageRecord {
	out := make([]internal.StorageRecord, 0, len(records))
	pos := make(map[internal.RecordKey]int, len(records))
	for _, rec := range records {
		key := rec.Key()
		if i, ok := pos[key]; ok {
			out[i] = rec
			continue
		}
		pos[key] = len(out)
		out = append(out, rec)
	}
	return out
}
