package patient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Patients"

// ExportHeader lists the columns of the registry workbook.
var ExportHeader = []string{
	"ID",
	"Name",
	"Age",
	"Gender",
	"Status",
	"Phone",
	"Email",
	"Emergency Contact",
	"Address",
	"Supervisor",
	"Last Visit",
	"Active Treatments",
}

var exportWidths = []float64{10, 24, 8, 10, 10, 16, 28, 20, 32, 20, 14, 18}

// ExportWorkbook renders the records as an xlsx workbook, one row each.
func ExportWorkbook(patients []*Patient) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("export: header style: %w", err)
	}

	for col, header := range ExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return nil, fmt.Errorf("export: header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("export: header style %s: %w", cell, err)
		}
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(exportSheet, name, name, exportWidths[col]); err != nil {
			return nil, err
		}
	}

	for i, p := range patients {
		row := []any{
			p.ID,
			p.Name,
			p.Age,
			string(p.Gender),
			string(p.Status),
			p.Phone,
			p.Email,
			p.EmergencyContact,
			p.Address,
			p.Supervisor,
			p.LastVisit,
			activeTreatments(p),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("export: row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: write: %w", err)
	}
	return buf.Bytes(), nil
}

func activeTreatments(p *Patient) int {
	n := 0
	for _, t := range p.Treatments {
		if t.Status == TreatmentActive {
			n++
		}
	}
	return n
}

// ExportPatients downloads the records matching ?q as a workbook.
func (h *Handler) ExportPatients(c echo.Context) error {
	items, _, err := h.svc.List(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return err
	}
	data, err := ExportWorkbook(items)
	if err != nil {
		return err
	}
	h.logger.Info().Int("rows", len(items)).Str("by", actor(c)).Msg("patient registry exported")

	name := "patients-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+strconv.Quote(name))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
