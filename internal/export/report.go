package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName  = "Bookings"
	timeLayout = "2006-01-02 15:04"
)

var headers = []string{"Booking ID", "Item", "Booker", "Email", "Start (UTC)", "End (UTC)", "Status"}

var statusColors = map[models.Status]string{
	models.StatusWaiting:  "#FFF2CC",
	models.StatusApproved: "#E2EFDA",
	models.StatusRejected: "#F8CBAD",
}

// OwnerReport renders an owner's bookings of one category as an XLSX workbook.
type OwnerReport struct {
	bookings domain.BookingService
	maxRows  int
	logger   *zerolog.Logger
}

func NewOwnerReport(bookings domain.BookingService, maxRows int, logger *zerolog.Logger) *OwnerReport {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &OwnerReport{bookings: bookings, maxRows: maxRows, logger: logger}
}

// FileName is the suggested attachment name for a report generated at now.
func FileName(ownerID int64, state string, now time.Time) string {
	if state == "" {
		state = string(domain.CategoryAll)
	}
	return fmt.Sprintf("bookings_owner_%d_%s_%s.xlsx", ownerID, state, now.UTC().Format("20060102_150405"))
}

// Write streams the workbook to w. Errors from the classification engine are returned unchanged.
func (r *OwnerReport) Write(ctx context.Context, w io.Writer, ownerID int64, state string) error {
	rows, err := r.collect(ctx, ownerID, state)
	if err != nil {
		return err
	}

	f, err := r.build(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	r.logger.Info().
		Int64("owner_id", ownerID).
		Str("state", state).
		Int("rows", len(rows)).
		Msg("Owner booking report exported")
	return nil
}

func (r *OwnerReport) collect(ctx context.Context, ownerID int64, state string) ([]*models.BookingDetails, error) {
	var rows []*models.BookingDetails
	page := models.Page{From: 0, Size: models.MaxPageSize}
	for len(rows) < r.maxRows {
		batch, err := r.bookings.ListForOwner(ctx, ownerID, state, page)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if len(batch) < page.Size {
			break
		}
		page.From += page.Size
	}
	if len(rows) > r.maxRows {
		rows = rows[:r.maxRows]
	}
	return rows, nil
}

func (r *OwnerReport) build(rows []*models.BookingDetails) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for col, title := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheetName, cell, title)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle)

	styles := make(map[models.Status]int, len(statusColors))
	for status, color := range statusColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err == nil {
			styles[status] = id
		}
	}

	for i, b := range rows {
		row := i + 2
		values := []interface{}{
			b.ID,
			b.Item.Name,
			b.Booker.Name,
			b.Booker.Email,
			b.Start.UTC().Format(timeLayout),
			b.End.UTC().Format(timeLayout),
			string(b.Status),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		if style, ok := styles[b.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(len(headers), row)
			_ = f.SetCellStyle(sheetName, cell, cell, style)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 12)
	_ = f.SetColWidth(sheetName, "B", "D", 25)
	_ = f.SetColWidth(sheetName, "E", lastCol, 18)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	return f, nil
}
