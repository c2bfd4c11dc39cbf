package internal

import "time"

// Window is one closed date interval submitted as a single report request.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) String() string {
	return w.From.Format("2006-01-02") + ".." + w.To.Format("2006-01-02")
}

// RecordKey is the natural key of one paid-storage billing line: one
// item/size/warehouse on one calendar day. Nil numeric fields collapse to
// zero so that in-memory dedupe and the storage conflict target agree.
type RecordKey struct {
	Date     string
	NmID     int64
	ChrtID   int64
	OfficeID int64
}

// StorageRecord is the canonical snake_case projection of one raw report row
// plus a content fingerprint. Optional fields are pointers; absent stays
// absent, never zero.
type StorageRecord struct {
	Date             string
	LogWarehouseCoef *float64
	OfficeID         *int64
	Warehouse        *string
	WarehouseCoef    *float64
	GiID             *int64
	ChrtID           *int64
	Size             *string
	Barcode          *string
	Subject          *string
	Brand            *string
	VendorCode       *string
	NmID             *int64
	Volume           *float64
	CalcType         *string
	WarehousePrice   *float64
	BarcodesCount    *int64
	PalletPlaceCode  *int64
	PalletCount      *float64
	OriginalDate     *string
	LoyaltyDiscount  *float64
	TariffFixDate    *string
	TariffLowerDate  *string

	Fingerprint string
	TaskID      string
}

func (r StorageRecord) Key() RecordKey {
	key := RecordKey{Date: r.Date}
	if r.NmID != nil {
		key.NmID = *r.NmID
	}
	if r.ChrtID != nil {
		key.ChrtID = *r.ChrtID
	}
	if r.OfficeID != nil {
		key.OfficeID = *r.OfficeID
	}
	return key
}

// RunRecord summarizes one orchestrator invocation for bookkeeping.
type RunRecord struct {
	TraceID    string
	Mode       string
	Windows    int
	Succeeded  int
	Skipped    int
	Deferred   int
	Rows       int
	StartedAt  time.Time
	FinishedAt time.Time
}
