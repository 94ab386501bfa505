// Package export renders a restaurant's bookings for a day into an xlsx
// day sheet for front-of-house staff.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"tablio/internal/models"
)

// BookingSource lists a restaurant's bookings for a date.
type BookingSource interface {
	GetRestaurantBookings(ctx context.Context, restaurantID int64, date time.Time) ([]models.Booking, error)
	GetTable(ctx context.Context, tableID int64) (*models.Table, error)
}

var sheetColumns = []string{"Time", "Table", "Guests", "Status", "Notes"}

// DaySheet builds xlsx day sheets from the booking store.
type DaySheet struct {
	source BookingSource
	logger zerolog.Logger
}

// NewDaySheet creates the exporter.
func NewDaySheet(source BookingSource, logger zerolog.Logger) *DaySheet {
	return &DaySheet{
		source: source,
		logger: logger.With().Str("component", "export").Logger(),
	}
}

// Filename returns the download name for a day sheet.
func Filename(restaurantID int64, date time.Time) string {
	return fmt.Sprintf("bookings_%d_%s.xlsx", restaurantID, date.Format("2006-01-02"))
}

// Write renders the day sheet for the restaurant and date to w. Cancelled
// and no-show bookings are included so staff see the full picture; rows are
// ordered by start time.
func (d *DaySheet) Write(ctx context.Context, w io.Writer, restaurantID int64, date time.Time) error {
	bookings, err := d.source.GetRestaurantBookings(ctx, restaurantID, date)
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].StartTime != bookings[j].StartTime {
			return bookings[i].StartTime < bookings[j].StartTime
		}
		return bookings[i].ID < bookings[j].ID
	})

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("close xlsx file")
		}
	}()

	sheet := date.Format("2006-01-02")
	f.SetSheetName("Sheet1", sheet)

	if err := d.writeHeader(f, sheet); err != nil {
		return err
	}

	tableNames := map[int64]string{}
	for i, b := range bookings {
		name := ""
		if b.TableID != nil {
			var ok bool
			if name, ok = tableNames[*b.TableID]; !ok {
				name = d.tableName(ctx, *b.TableID)
				tableNames[*b.TableID] = name
			}
		}
		row := []interface{}{
			fmt.Sprintf("%s-%s", b.StartTime, b.EndTime),
			name,
			b.Guests,
			b.Status,
			b.Notes,
		}
		for col, val := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}

	d.logger.Info().
		Int64("restaurant_id", restaurantID).
		Str("date", sheet).
		Int("bookings", len(bookings)).
		Msg("day sheet exported")
	return nil
}

func (d *DaySheet) writeHeader(f *excelize.File, sheet string) error {
	for i, col := range sheetColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(sheetColumns), 1)
		_ = f.SetCellStyle(sheet, "A1", endCell, style)
	}
	return nil
}

// tableName resolves a table's display name, falling back to its ID when
// the lookup fails so the export still completes.
func (d *DaySheet) tableName(ctx context.Context, tableID int64) string {
	table, err := d.source.GetTable(ctx, tableID)
	if err != nil || table == nil {
		return fmt.Sprintf("#%d", tableID)
	}
	return table.Name
}
