package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/xuri/excelize/v2"
)

// BomExportContentType is the response content type for workbook downloads.
const BomExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"366092"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
}

func boldStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
}

// ExportBomForErp writes the BOM in the flat column layout the ERP's order
// line table expects, one row per line with the library description layers,
// followed by the cost summary.
func ExportBomForErp(ctx context.Context, w io.Writer, projectId int, companyName string) error {
	project, err := utils.FetchModel[models.Project](ctx, projectId)
	if err != nil {
		return err
	}
	items, err := models.GetProjectBom(ctx, projectId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, "BOM for ERP Entry"); err != nil {
		return err
	}
	sheet = "BOM for ERP Entry"

	headStyle, err := headerStyle(f)
	if err != nil {
		return err
	}
	bold, err := boldStyle(f)
	if err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", companyName)
	f.SetCellStyle(sheet, "A1", "A1", bold)
	f.MergeCell(sheet, "A1", "K1")
	f.SetCellValue(sheet, "A2", "BILL OF MATERIALS - ERP ENTRY FORMAT")
	f.MergeCell(sheet, "A2", "K2")

	f.SetCellValue(sheet, "A4", "Project Code:")
	f.SetCellValue(sheet, "B4", project.ProjectCode)
	f.SetCellValue(sheet, "A5", "Project Name:")
	f.SetCellValue(sheet, "B5", project.ProjectName)
	f.SetCellValue(sheet, "A6", "Client:")
	f.SetCellValue(sheet, "B6", project.ClientName)
	f.SetCellValue(sheet, "A7", "Date:")
	f.SetCellValue(sheet, "B7", time.Now().Format("2006-01-02"))

	headers := []string{"SEQ", "ITEMNAME", "ITEMDESC", "ITDESC2", "ITDESC3", "ITDESC4", "ITCLASS", "QTY", "UNITPRC", "MARKUP%", "NOTES"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 9)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headStyle)
	}

	row := 9
	for _, item := range items {
		row++
		comp := item.Component
		if comp == nil {
			comp = &models.Component{ItemName: item.Description}
		}
		values := []interface{}{
			item.LineSequence,
			comp.ItemName,
			comp.ItemDesc,
			comp.ItDesc2,
			comp.ItDesc3,
			comp.ItDesc4,
			item.ItClass,
			item.Quantity.InexactFloat64(),
			item.UnitPrice.InexactFloat64(),
			item.MarkupPct.InexactFloat64(),
			item.Notes,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(sheet, cell, v)
		}
	}

	row += 2
	subtotal := project.TotalMaterialsCost.Add(project.TotalLaborCost)
	summary := []struct {
		label string
		value interface{}
	}{
		{"Materials Total:", project.TotalMaterialsCost.InexactFloat64()},
		{"Labor Cost:", project.TotalLaborCost.InexactFloat64()},
		{"Subtotal:", subtotal.InexactFloat64()},
		{"Markup:", project.TotalMarkup.InexactFloat64()},
		{"GRAND TOTAL:", project.GrandTotal.InexactFloat64()},
	}
	for _, s := range summary {
		f.SetCellValue(sheet, "I"+fmt.Sprint(row), s.label)
		f.SetCellValue(sheet, "J"+fmt.Sprint(row), s.value)
		row++
	}
	grandRow := fmt.Sprint(row - 1)
	f.SetCellStyle(sheet, "I"+grandRow, "J"+grandRow, bold)

	return f.Write(w)
}

// ExportBomDetailed writes the two-sheet estimate workbook: the costed BOM
// with the rollup summary, and a specifications sheet with the full
// description layers.
func ExportBomDetailed(ctx context.Context, w io.Writer, projectId int, companyName string) error {
	project, err := utils.FetchModel[models.Project](ctx, projectId)
	if err != nil {
		return err
	}
	items, err := models.GetProjectBom(ctx, projectId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, "Bill of Materials"); err != nil {
		return err
	}
	sheet = "Bill of Materials"

	headStyle, err := headerStyle(f)
	if err != nil {
		return err
	}
	bold, err := boldStyle(f)
	if err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", companyName)
	f.SetCellStyle(sheet, "A1", "A1", bold)
	f.MergeCell(sheet, "A1", "H1")
	f.SetCellValue(sheet, "A3", "DETAILED BILL OF MATERIALS")
	f.SetCellStyle(sheet, "A3", "A3", bold)
	f.MergeCell(sheet, "A3", "H3")

	info := []struct {
		label string
		value string
	}{
		{"Project Code:", project.ProjectCode},
		{"Project Name:", project.ProjectName},
		{"Client:", project.ClientName},
		{"Date:", time.Now().Format("2006-01-02")},
		{"Status:", string(project.Status)},
	}
	row := 5
	for _, line := range info {
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), line.label)
		f.SetCellStyle(sheet, "A"+fmt.Sprint(row), "A"+fmt.Sprint(row), bold)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), line.value)
		row++
	}

	row += 2
	headers := []string{"Line", "Item Name", "Class", "Manufacturer", "Model", "Qty", "Unit Price", "Line Total"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headStyle)
	}

	for _, item := range items {
		row++
		manufacturer, model := "", ""
		itemName := item.Description
		if item.Component != nil {
			manufacturer = item.Component.Manufacturer
			model = item.Component.ModelNumber
			itemName = item.Component.ItemName
		}
		values := []interface{}{
			item.LineSequence,
			itemName,
			item.ItClass,
			manufacturer,
			model,
			item.Quantity.InexactFloat64(),
			item.UnitPrice.InexactFloat64(),
			item.LineTotal.InexactFloat64(),
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(sheet, cell, v)
		}
	}

	row += 2
	summary := []struct {
		label string
		value float64
	}{
		{"Materials:", project.TotalMaterialsCost.InexactFloat64()},
		{fmt.Sprintf("Labor (%s hours):", project.TotalLaborHours.StringFixed(1)), project.TotalLaborCost.InexactFloat64()},
		{"Markup:", project.TotalMarkup.InexactFloat64()},
		{"GRAND TOTAL:", project.GrandTotal.InexactFloat64()},
	}
	for _, s := range summary {
		f.SetCellValue(sheet, "F"+fmt.Sprint(row), s.label)
		f.SetCellStyle(sheet, "F"+fmt.Sprint(row), "F"+fmt.Sprint(row), bold)
		f.SetCellValue(sheet, "H"+fmt.Sprint(row), s.value)
		row++
	}

	detailSheet := "Component Details"
	if _, err := f.NewSheet(detailSheet); err != nil {
		return err
	}
	f.SetCellValue(detailSheet, "A1", "COMPONENT SPECIFICATIONS")
	f.SetCellStyle(detailSheet, "A1", "A1", bold)
	f.MergeCell(detailSheet, "A1", "F1")

	detailHeaders := []string{"Item Name", "Description 1", "Description 2", "Description 3", "Description 4", "Notes"}
	for i, h := range detailHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(detailSheet, cell, h)
		f.SetCellStyle(detailSheet, cell, cell, headStyle)
	}
	detailRow := 3
	for _, item := range items {
		detailRow++
		comp := item.Component
		if comp == nil {
			comp = &models.Component{ItemName: item.Description}
		}
		values := []interface{}{comp.ItemName, comp.ItemDesc, comp.ItDesc2, comp.ItDesc3, comp.ItDesc4, item.Notes}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, detailRow)
			f.SetCellValue(detailSheet, cell, v)
		}
	}

	return f.Write(w)
}
