package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"coffeefarm/models"
	"coffeefarm/utils"
	"coffeefarm/views"
)

const productionSheet = "Produção"

// ProductionXLSX writes the harvest rows and the production summary as a
// spreadsheet. It does not need Prepare.
func (e *Exporter) ProductionXLSX(w io.Writer, records []models.HarvestRecord, totals views.ProductionTotals) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", productionSheet); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"34D399"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	titles := []any{"Data", "Talhão", "Funcionário", "Alqueires", "Litros", "Preço"}
	if err := f.SetSheetRow(productionSheet, "A1", &titles); err != nil {
		return err
	}
	if err := f.SetCellStyle(productionSheet, "A1", "F1", header); err != nil {
		return err
	}

	for i, h := range records {
		row := []any{
			utils.DisplayDate(h.Date, e.opts.Loc, ""),
			h.PlotName,
			h.EmployeeName,
			h.BushelsAlqueires,
			h.Liters,
			h.PricePerUnit,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(productionSheet, cell, &row); err != nil {
			return err
		}
	}

	summary := [][]any{
		{"Total de Litros", totals.TotalLiters},
		{"Total de Alqueires (Litros convertidos)", totals.LitersAsBushels},
		{"Produção Total (Alqueires Consolidados)", totals.TotalBushels},
		{"Valor Total da Produção", totals.TotalValue},
	}
	start := len(records) + 3
	for i, line := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, start+i)
		if err := f.SetSheetRow(productionSheet, cell, &line); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(productionSheet, "A", "A", 40); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("render xlsx: %w", err)
	}
	return nil
}
