// Package export renders normalized field operations as spreadsheets.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agricapture/fieldsync/internal/domain"
)

const (
	// ContentType is the MIME type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	OperationsSheet = "Operations"
	SummarySheet    = "Summary"

	dateLayout = "2006-01-02T15:04:05Z07:00"
)

var operationHeader = []any{
	"Operation ID", "Organization ID", "Organization", "Field ID", "Field", "Type", "Date",
	"Crop", "Product", "Product Category", "Rate", "Rate Unit",
	"Total Amount", "Total Amount Unit", "Area", "Area Unit", "Equipment", "Notes",
}

// WriteOperations writes ops as an XLSX workbook with one row per operation
// and a per-type summary sheet.
func WriteOperations(w io.Writer, ops []domain.NormalizedOperation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", OperationsSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(OperationsSheet, "A1", &operationHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(OperationsSheet, 1, 1, bold); err != nil {
		return err
	}
	for i, op := range ops {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := operationRow(op)
		if err := f.SetSheetRow(OperationsSheet, cell, &row); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(operationHeader), 1)
	if err != nil {
		return err
	}
	if err := f.AutoFilter(OperationsSheet, "A1:"+last, nil); err != nil {
		return err
	}
	if err := f.SetPanes(OperationsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	if err := writeSummary(f, ops, bold); err != nil {
		return err
	}
	return f.Write(w)
}

func operationRow(op domain.NormalizedOperation) []any {
	return []any{
		op.OperationID, op.OrgID, op.OrgName, op.FieldID, op.FieldName, string(op.OperationType),
		op.OperationDate.UTC().Format(dateLayout),
		str(op.CropName), str(op.ProductName), str(op.ProductCategory),
		num(op.RateValue), str(op.RateUnit),
		num(op.TotalAmount), str(op.TotalAmountUnit),
		num(op.Area), str(op.AreaUnit),
		str(op.EquipmentName), str(op.Notes),
	}
}

func writeSummary(f *excelize.File, ops []domain.NormalizedOperation, style int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	counts := map[domain.OperationType]int{}
	for _, op := range ops {
		counts[op.OperationType]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	if err := f.SetSheetRow(SummarySheet, "A1", &[]any{"Operation Type", "Label", "Count"}); err != nil {
		return err
	}
	if err := f.SetRowStyle(SummarySheet, 1, 1, style); err != nil {
		return err
	}
	for i, t := range types {
		if err := f.SetSheetRow(SummarySheet, fmt.Sprintf("A%d", i+2), &[]any{t, Label(t), counts[domain.OperationType(t)]}); err != nil {
			return err
		}
	}
	return f.SetSheetRow(SummarySheet, fmt.Sprintf("A%d", len(types)+2), &[]any{"Total", nil, len(ops)})
}

// Label turns an upper snake-case code such as CROP_PROTECTION into a display
// label ("Crop Protection").
func Label(code string) string {
	return cases.Title(language.English).String(strings.ToLower(strings.ReplaceAll(code, "_", " ")))
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func num(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
