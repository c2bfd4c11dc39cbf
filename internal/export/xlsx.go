package export

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"wbstorage/internal"
)

func RowsToXLSX(rows []internal.StorageRecord, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"date", "nm_id", "chrt_id", "office_id",
		"warehouse", "warehouse_coef", "log_warehouse_coef", "gi_id",
		"size", "barcode", "subject", "brand", "vendor_code",
		"volume", "calc_type", "warehouse_price", "barcodes_count",
		"pallet_place_code", "pallet_count", "original_date",
		"loyalty_discount", "tariff_fix_date", "tariff_lower_date",
		"fingerprint", "task_id",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.Date)
		set(2, derefInt(row.NmID))
		set(3, derefInt(row.ChrtID))
		set(4, derefInt(row.OfficeID))
		set(5, derefString(row.Warehouse))
		set(6, derefFloat(row.WarehouseCoef))
		set(7, derefFloat(row.LogWarehouseCoef))
		set(8, derefInt(row.GiID))
		set(9, derefString(row.Size))
		set(10, derefString(row.Barcode))
		set(11, derefString(row.Subject))
		set(12, derefString(row.Brand))
		set(13, derefString(row.VendorCode))
		set(14, derefFloat(row.Volume))
		set(15, derefString(row.CalcType))
		set(16, derefFloat(row.WarehousePrice))
		set(17, derefInt(row.BarcodesCount))
		set(18, derefInt(row.PalletPlaceCode))
		set(19, derefFloat(row.PalletCount))
		set(20, derefString(row.OriginalDate))
		set(21, derefFloat(row.LoyaltyDiscount))
		set(22, derefString(row.TariffFixDate))
		set(23, derefString(row.TariffLowerDate))
		set(24, row.Fingerprint)
		set(25, row.TaskID)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}
