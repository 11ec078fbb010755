package reports

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

const summarySheet = "Sucursales"

var summaryHeadings = []string{"Sucursal", "Caja abierta", "Saldo inicial", "Ingresos", "Egresos", "Saldo"}

// ExportXLSX renders the consolidation as a single-sheet workbook with a totals row.
func ExportXLSX(c *Consolidation) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	for i, h := range summaryHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(summarySheet, cell, h); err != nil {
			return nil, err
		}
	}

	row := 2
	for _, b := range c.Branches {
		register := "-"
		if b.OpenRegisterId != nil {
			register = fmt.Sprint(*b.OpenRegisterId)
		}
		values := []interface{}{
			b.BranchName,
			register,
			b.OpeningBalance.InexactFloat64(),
			b.TotalIncome.InexactFloat64(),
			b.TotalExpenses.InexactFloat64(),
			b.TotalBalance.InexactFloat64(),
		}
		if err := f.SetSheetRow(summarySheet, "A"+fmt.Sprint(row), &values); err != nil {
			return nil, err
		}
		row++
	}

	totals := []interface{}{"Total", "", "", c.TotalIncome.InexactFloat64(), c.TotalExpenses.InexactFloat64(), c.TotalBalance.InexactFloat64()}
	if err := f.SetSheetRow(summarySheet, "A"+fmt.Sprint(row), &totals); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UploadReport exports the consolidation and stores it in the report bucket.
func UploadReport(ctx context.Context, c *Consolidation) (string, error) {
	content, err := ExportXLSX(c)
	if err != nil {
		return "", err
	}
	objectName := fmt.Sprintf("reports/branches-%s.xlsx", c.GeneratedAt.Format("20060102-150405"))
	return utils.UploadReportToGCS(ctx, objectName, content)
}
