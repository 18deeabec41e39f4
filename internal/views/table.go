package views

import (
	"fmt"
	"strconv"

	"github.com/kjstillabower/weather-history-dashboard/internal/models"
	"github.com/kjstillabower/weather-history-dashboard/internal/paginate"
)

// Column describes one metric column of the table.
type Column struct {
	Metric models.Metric `json:"metric"`
	Title  string        `json:"title"`
}

// Columns lists the metric columns in display order, after the date column.
var Columns = []Column{
	{models.TemperatureMax, "Max Temp (°C)"},
	{models.TemperatureMin, "Min Temp (°C)"},
	{models.TemperatureMean, "Mean Temp (°C)"},
	{models.ApparentTemperatureMax, "Max Apparent (°C)"},
	{models.ApparentTemperatureMin, "Min Apparent (°C)"},
	{models.ApparentTemperatureMean, "Mean Apparent (°C)"},
}

// Cell is one metric value of a row. Value is nil when missing and Display is then "N/A".
type Cell struct {
	Value   *float64 `json:"value"`
	Display string   `json:"display"`
}

// Row is one day of the table.
type Row struct {
	Date        string `json:"date"`
	DisplayDate string `json:"displayDate"`
	Cells       []Cell `json:"cells"`
}

// Table is the visible page of the daily table.
type Table struct {
	Columns    []Column        `json:"columns"`
	Rows       []Row           `json:"rows"`
	TotalRows  int             `json:"totalRows"`
	Pagination paginate.State  `json:"pagination"`
	Window     paginate.Window `json:"window"`
	Caption    string          `json:"caption"`
	PageLabel  string          `json:"pageLabel"`
}

// NewTable renders the rows of resp visible under state.
func NewTable(resp models.WeatherResponse, state paginate.State) Table {
	total := resp.Len()
	w := state.Window(total)
	state.CurrentPage = currentPage(w, state.RowsPerPage)

	series := make([][]*float64, len(Columns))
	for i, col := range Columns {
		series[i] = resp.Daily.Series(col.Metric)
	}

	rows := make([]Row, 0, w.EndIndex-w.StartIndex)
	for i := w.StartIndex; i < w.EndIndex; i++ {
		row := Row{
			Date:        resp.Daily.Time[i],
			DisplayDate: FormatDate(resp.Daily.Time[i]),
			Cells:       make([]Cell, len(Columns)),
		}
		for c, values := range series {
			row.Cells[c] = newCell(values, i)
		}
		rows = append(rows, row)
	}
	return Table{
		Columns:    Columns,
		Rows:       rows,
		TotalRows:  total,
		Pagination: state,
		Window:     w,
		Caption:    Caption(w, total),
		PageLabel:  fmt.Sprintf("Page %d of %d", state.CurrentPage, w.TotalPages),
	}
}

// Caption renders "Showing X to Y of N days" for the window.
func Caption(w paginate.Window, totalRows int) string {
	if totalRows == 0 {
		return "No data available to display"
	}
	return fmt.Sprintf("Showing %d to %d of %d days", w.StartIndex+1, w.EndIndex, totalRows)
}

func newCell(values []*float64, i int) Cell {
	if i >= len(values) || !numeric(values[i]) {
		return Cell{Display: NotAvailable}
	}
	v := *values[i]
	return Cell{Value: &v, Display: strconv.FormatFloat(v, 'f', 1, 64)}
}

func currentPage(w paginate.Window, rowsPerPage int) int {
	if rowsPerPage <= 0 {
		return 1
	}
	return w.StartIndex/rowsPerPage + 1
}
