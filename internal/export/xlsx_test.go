package export

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"wbstorage/internal"
)

func TestRowsToXLSX(t *testing.T) {
	nm := int64(123456)
	chrt := int64(789)
	office := int64(507)
	warehouse := "Koledino"
	price := 0.42

	rows := []internal.StorageRecord{
		{
			Date:           "2024-03-01",
			NmID:           &nm,
			ChrtID:         &chrt,
			OfficeID:       &office,
			Warehouse:      &warehouse,
			WarehousePrice: &price,
			Fingerprint:    "fp-1",
			TaskID:         "t1",
		},
		{
			Date:        "2024-03-02",
			NmID:        &nm,
			Fingerprint: "fp-2",
		},
	}

	out := filepath.Join(t.TempDir(), "report.xlsx")
	if err := RowsToXLSX(rows, out); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open exported file: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	got, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(got))
	}
	if got[0][0] != "date" || got[0][1] != "nm_id" {
		t.Fatalf("unexpected header: %v", got[0][:2])
	}
	if got[1][0] != "2024-03-01" {
		t.Fatalf("unexpected first row date: %q", got[1][0])
	}
	if got[1][4] != "Koledino" {
		t.Fatalf("unexpected warehouse cell: %q", got[1][4])
	}
}
