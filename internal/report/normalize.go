package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"wbstorage/internal"
)

// NormalizeRow maps one raw camelCase report row to its canonical snake_case
// record and stamps a content fingerprint: sha256 over the canonical fields
// serialized as JSON with lexicographically sorted keys. The same row always
// produces the same fingerprint regardless of the order the raw map was
// built in.
func NormalizeRow(raw map[string]any, taskID string) internal.StorageRecord {
	date := normDate(raw["date"])

	rec := internal.StorageRecord{
		LogWarehouseCoef: toFloatPtr(raw["logWarehouseCoef"]),
		OfficeID:         toInt64Ptr(raw["officeId"]),
		Warehouse:        toStringPtr(raw["warehouse"]),
		WarehouseCoef:    toFloatPtr(raw["warehouseCoef"]),
		GiID:             toInt64Ptr(raw["giId"]),
		ChrtID:           toInt64Ptr(raw["chrtId"]),
		Size:             toStringPtr(raw["size"]),
		Barcode:          toStringPtr(raw["barcode"]),
		Subject:          toStringPtr(raw["subject"]),
		Brand:            toStringPtr(raw["brand"]),
		VendorCode:       toStringPtr(raw["vendorCode"]),
		NmID:             toInt64Ptr(raw["nmId"]),
		Volume:           toFloatPtr(raw["volume"]),
		CalcType:         toStringPtr(raw["calcType"]),
		WarehousePrice:   toFloatPtr(raw["warehousePrice"]),
		BarcodesCount:    toInt64Ptr(raw["barcodesCount"]),
		PalletPlaceCode:  toInt64Ptr(raw["palletPlaceCode"]),
		PalletCount:      toFloatPtr(raw["palletCount"]),
		OriginalDate:     normDate(raw["originalDate"]),
		LoyaltyDiscount:  toFloatPtr(raw["loyaltyDiscount"]),
		TariffFixDate:    normDate(raw["tariffFixDate"]),
		TariffLowerDate:  normDate(raw["tariffLowerDate"]),
	}
	if date != nil {
		rec.Date = *date
	}

	canonical := map[string]any{
		"date":               date,
		"log_warehouse_coef": rec.LogWarehouseCoef,
		"office_id":          rec.OfficeID,
		"warehouse":          rec.Warehouse,
		"warehouse_coef":     rec.WarehouseCoef,
		"gi_id":              rec.GiID,
		"chrt_id":            rec.ChrtID,
		"size":               rec.Size,
		"barcode":            rec.Barcode,
		"subject":            rec.Subject,
		"brand":              rec.Brand,
		"vendor_code":        rec.VendorCode,
		"nm_id":              rec.NmID,
		"volume":             rec.Volume,
		"calc_type":          rec.CalcType,
		"warehouse_price":    rec.WarehousePrice,
		"barcodes_count":     rec.BarcodesCount,
		"pallet_place_code":  rec.PalletPlaceCode,
		"pallet_count":       rec.PalletCount,
		"original_date":      rec.OriginalDate,
		"loyalty_discount":   rec.LoyaltyDiscount,
		"tariff_fix_date":    rec.TariffFixDate,
		"tariff_lower_date":  rec.TariffLowerDate,
	}

	// encoding/json sorts map keys, so the serialization is canonical.
	blob, _ := json.Marshal(canonical)
	sum := sha256.Sum256(blob)
	rec.Fingerprint = hex.EncodeToString(sum[:])
	rec.TaskID = taskID

	return rec
}

// normDate truncates a date-like value to its 10-character calendar-date
// prefix; nil and empty pass through as absent.
func normDate(v any) *string {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if len(s) > 10 {
		s = s[:10]
	}
	return &s
}

func toStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func toInt64Ptr(v any) *int64 {
	switch t := v.(type) {
	case int:
		n := int64(t)
		return &n
	case int64:
		return &t
	case float64:
		n := int64(t)
		return &n
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return &n
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

func toFloatPtr(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}
