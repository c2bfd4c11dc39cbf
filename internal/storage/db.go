package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"wbstorage/internal"
)

// DB is the sqlite sink, used when no Postgres DSN is configured.
type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS paid_storage (
  date TEXT NOT NULL,
  nm_id INTEGER NOT NULL DEFAULT 0,
  chrt_id INTEGER NOT NULL DEFAULT 0,
  office_id INTEGER NOT NULL DEFAULT 0,
  log_warehouse_coef REAL,
  warehouse TEXT,
  warehouse_coef REAL,
  gi_id INTEGER,
  size TEXT,
  barcode TEXT,
  subject TEXT,
  brand TEXT,
  vendor_code TEXT,
  volume REAL,
  calc_type TEXT,
  warehouse_price REAL,
  barcodes_count INTEGER,
  pallet_place_code INTEGER,
  pallet_count REAL,
  original_date TEXT,
  loyalty_discount REAL,
  tariff_fix_date TEXT,
  tariff_lower_date TEXT,
  fingerprint TEXT NOT NULL,
  task_id TEXT,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(date, nm_id, chrt_id, office_id)
);
CREATE INDEX IF NOT EXISTS idx_paid_storage_date ON paid_storage(date);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  mode TEXT NOT NULL,
  windows INTEGER NOT NULL,
  succeeded INTEGER NOT NULL,
  skipped INTEGER NOT NULL,
  deferred INTEGER NOT NULL,
  rowCount INTEGER NOT NULL,
  startedAt TEXT NOT NULL,
  finishedAt TEXT NOT NULL
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertChunk(ctx context.Context, records []internal.StorageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO paid_storage (
  date, nm_id, chrt_id, office_id,
  log_warehouse_coef, warehouse, warehouse_coef, gi_id,
  size, barcode, subject, brand, vendor_code, volume, calc_type,
  warehouse_price, barcodes_count, pallet_place_code, pallet_count,
  original_date, loyalty_discount, tariff_fix_date, tariff_lower_date,
  fingerprint, task_id, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(date, nm_id, chrt_id, office_id) DO UPDATE SET
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
  updated_at=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		key := rec.Key()
		if _, err := stmt.ExecContext(ctx,
			key.Date, key.NmID, key.ChrtID, key.OfficeID,
			rec.LogWarehouseCoef, rec.Warehouse, rec.WarehouseCoef, rec.GiID,
			rec.Size, rec.Barcode, rec.Subject, rec.Brand, rec.VendorCode, rec.Volume, rec.CalcType,
			rec.WarehousePrice, rec.BarcodesCount, rec.PalletPlaceCode, rec.PalletCount,
			rec.OriginalDate, rec.LoyaltyDiscount, rec.TariffFixDate, rec.TariffLowerDate,
			rec.Fingerprint, rec.TaskID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) SelectRange(ctx context.Context, from, to string) ([]internal.StorageRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT date, nm_id, chrt_id, office_id,
  log_warehouse_coef, warehouse, warehouse_coef, gi_id,
  size, barcode, subject, brand, vendor_code, volume, calc_type,
  warehouse_price, barcodes_count, pallet_place_code, pallet_count,
  original_date, loyalty_discount, tariff_fix_date, tariff_lower_date,
  fingerprint, task_id
FROM paid_storage
WHERE date >= ? AND date <= ?
ORDER BY date, nm_id, chrt_id, office_id
`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.StorageRecord
	for rows.Next() {
		var (
			rec              internal.StorageRecord
			nmID, chrtID     int64
			officeID         int64
			logCoef          sql.NullFloat64
			warehouse        sql.NullString
			warehouseCoef    sql.NullFloat64
			giID             sql.NullInt64
			size             sql.NullString
			barcode          sql.NullString
			subject          sql.NullString
			brand            sql.NullString
			vendorCode       sql.NullString
			volume           sql.NullFloat64
			calcType         sql.NullString
			warehousePrice   sql.NullFloat64
			barcodesCount    sql.NullInt64
			palletPlaceCode  sql.NullInt64
			palletCount      sql.NullFloat64
			originalDate     sql.NullString
			loyaltyDiscount  sql.NullFloat64
			tariffFixDate    sql.NullString
			tariffLowerDate  sql.NullString
			taskID           sql.NullString
		)
		if err := rows.Scan(
			&rec.Date, &nmID, &chrtID, &officeID,
			&logCoef, &warehouse, &warehouseCoef, &giID,
			&size, &barcode, &subject, &brand, &vendorCode, &volume, &calcType,
			&warehousePrice, &barcodesCount, &palletPlaceCode, &palletCount,
			&originalDate, &loyaltyDiscount, &tariffFixDate, &tariffLowerDate,
			&rec.Fingerprint, &taskID,
		); err != nil {
			return nil, err
		}
		rec.NmID = &nmID
		rec.ChrtID = &chrtID
		rec.OfficeID = &officeID
		rec.LogWarehouseCoef = nullFloat(logCoef)
		rec.Warehouse = nullString(warehouse)
		rec.WarehouseCoef = nullFloat(warehouseCoef)
		rec.GiID = nullInt(giID)
		rec.Size = nullString(size)
		rec.Barcode = nullString(barcode)
		rec.Subject = nullString(subject)
		rec.Brand = nullString(brand)
		rec.VendorCode = nullString(vendorCode)
		rec.Volume = nullFloat(volume)
		rec.CalcType = nullString(calcType)
		rec.WarehousePrice = nullFloat(warehousePrice)
		rec.BarcodesCount = nullInt(barcodesCount)
		rec.PalletPlaceCode = nullInt(palletPlaceCode)
		rec.PalletCount = nullFloat(palletCount)
		rec.OriginalDate = nullString(originalDate)
		rec.LoyaltyDiscount = nullFloat(loyaltyDiscount)
		rec.TariffFixDate = nullString(tariffFixDate)
		rec.TariffLowerDate = nullString(tariffLowerDate)
		if taskID.Valid {
			rec.TaskID = taskID.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) RecordRun(ctx context.Context, run internal.RunRecord) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO sync_runs (traceId, mode, windows, succeeded, skipped, deferred, rowCount, startedAt, finishedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, run.Mode, run.Windows, run.Succeeded, run.Skipped, run.Deferred, run.Rows,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339))
	return err
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (*string, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &value, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
