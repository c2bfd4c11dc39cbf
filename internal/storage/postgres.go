package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wbstorage/internal"
)

// Postgres is the production sink: the original deployment wrote to a
// managed Postgres, so this backend is selected whenever PG_DSN is set.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := &Postgres{pool: pool}
	if err := p.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// init runs each DDL statement separately: the extended query protocol does
// not accept multi-statement strings.
func (p *Postgres) init(ctx context.Context) error {
	statements := []string{`
CREATE TABLE IF NOT EXISTS paid_storage (
  date text NOT NULL,
  nm_id bigint NOT NULL DEFAULT 0,
  chrt_id bigint NOT NULL DEFAULT 0,
  office_id bigint NOT NULL DEFAULT 0,
  log_warehouse_coef double precision,
  warehouse text,
  warehouse_coef double precision,
  gi_id bigint,
  size text,
  barcode text,
  subject text,
  brand text,
  vendor_code text,
  volume double precision,
  calc_type text,
  warehouse_price double precision,
  barcodes_count bigint,
  pallet_place_code bigint,
  pallet_count double precision,
  original_date text,
  loyalty_discount double precision,
  tariff_fix_date text,
  tariff_lower_date text,
  fingerprint text NOT NULL,
  task_id text,
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY(date, nm_id, chrt_id, office_id)
)`, `
CREATE TABLE IF NOT EXISTS metadata (
  key text PRIMARY KEY,
  value text NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
)`, `
CREATE TABLE IF NOT EXISTS sync_runs (
  id bigserial PRIMARY KEY,
  trace_id text NOT NULL,
  mode text NOT NULL,
  windows int NOT NULL,
  succeeded int NOT NULL,
  skipped int NOT NULL,
  deferred int NOT NULL,
  row_count int NOT NULL,
  started_at timestamptz NOT NULL,
  finished_at timestamptz NOT NULL
)`}

	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) UpsertChunk(ctx context.Context, records []internal.StorageRecord) error {
	if len(records) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, rec := range records {
		key := rec.Key()
		b.Queue(`
INSERT INTO paid_storage (
  date, nm_id, chrt_id, office_id,
  log_warehouse_coef, warehouse, warehouse_coef, gi_id,
  size, barcode, subject, brand, vendor_code, volume, calc_type,
  warehouse_price, barcodes_count, pallet_place_code, pallet_count,
  original_date, loyalty_discount, tariff_fix_date, tariff_lower_date,
  fingerprint, task_id, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,now())
ON CONFLICT (date, nm_id, chrt_id, office_id) DO UPDATE SET
  log_warehouse_coef=excluded.log_warehouse_coef,
  warehouse=excluded.warehouse,
  warehouse_coef=excluded.warehouse_coef,
  gi_id=excluded.gi_id,
  size=excluded.size,
  barcode=excluded.barcode,
  subject=excluded.subject,
  brand=excluded.brand,
  vendor_code=excluded.vendor_code,
  volume=excluded.volume,
  calc_type=excluded.calc_type,
  warehouse_price=excluded.warehouse_price,
  barcodes_count=excluded.barcodes_count,
  pallet_place_code=excluded.pallet_place_code,
  pallet_count=excluded.pallet_count,
  original_date=excluded.original_date,
  loyalty_discount=excluded.loyalty_discount,
  tariff_fix_date=excluded.tariff_fix_date,
  tariff_lower_date=excluded.tariff_lower_date,
  fingerprint=excluded.fingerprint,
  task_id=excluded.task_id,
  updated_at=now()`,
			key.Date, key.NmID, key.ChrtID, key.OfficeID,
			rec.LogWarehouseCoef, rec.Warehouse, rec.WarehouseCoef, rec.GiID,
			rec.Size, rec.Barcode, rec.Subject, rec.Brand, rec.VendorCode, rec.Volume, rec.CalcType,
			rec.WarehousePrice, rec.BarcodesCount, rec.PalletPlaceCode, rec.PalletCount,
			rec.OriginalDate, rec.LoyaltyDiscount, rec.TariffFixDate, rec.TariffLowerDate,
			rec.Fingerprint, rec.TaskID,
		)
	}

	br := p.pool.SendBatch(ctx, b)
	for range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func (p *Postgres) SelectRange(ctx context.Context, from, to string) ([]internal.StorageRecord, error) {
	rows, err := p.pool.Query(ctx, `
SELECT date, nm_id, chrt_id, office_id,
  log_warehouse_coef, warehouse, warehouse_coef, gi_id,
  size, barcode, subject, brand, vendor_code, volume, calc_type,
  warehouse_price, barcodes_count, pallet_place_code, pallet_count,
  original_date, loyalty_discount, tariff_fix_date, tariff_lower_date,
  fingerprint, task_id
FROM paid_storage
WHERE date >= $1 AND date <= $2
ORDER BY date, nm_id, chrt_id, office_id
`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.StorageRecord
	for rows.Next() {
		var (
			rec                    internal.StorageRecord
			nmID, chrtID, officeID int64
			taskID                 *string
		)
		if err := rows.Scan(
			&rec.Date, &nmID, &chrtID, &officeID,
			&rec.LogWarehouseCoef, &rec.Warehouse, &rec.WarehouseCoef, &rec.GiID,
			&rec.Size, &rec.Barcode, &rec.Subject, &rec.Brand, &rec.VendorCode, &rec.Volume, &rec.CalcType,
			&rec.WarehousePrice, &rec.BarcodesCount, &rec.PalletPlaceCode, &rec.PalletCount,
			&rec.OriginalDate, &rec.LoyaltyDiscount, &rec.TariffFixDate, &rec.TariffLowerDate,
			&rec.Fingerprint, &taskID,
		); err != nil {
			return nil, err
		}
		rec.NmID = &nmID
		rec.ChrtID = &chrtID
		rec.OfficeID = &officeID
		if taskID != nil {
			rec.TaskID = *taskID
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) RecordRun(ctx context.Context, run internal.RunRecord) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO sync_runs (trace_id, mode, windows, succeeded, skipped, deferred, row_count, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, run.TraceID, run.Mode, run.Windows, run.Succeeded, run.Skipped, run.Deferred, run.Rows,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	return err
}

func (p *Postgres) SetMetadata(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO metadata (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()
`, key, value)
	return err
}

func (p *Postgres) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
