package chart

import (
	"fmt"
	"strings"

	"hoopsight/models"
)

// Synthesize derives a chart specification from a query result. Returns nil
// when the result is empty or has no numeric column to plot — a designed
// "no chart" outcome, not an error.
//
// Kind selection: one categorical column + one numeric column produces a bar
// chart; a datetime column plus a numeric column produces a line chart; two
// numeric columns with no categorical axis produce a scatter plot; several
// numeric columns sharing one categorical axis produce a grouped bar chart.
// The optional hint overrides the default only when compatible with the
// shape of the data.
func Synthesize(result *models.QueryResult, hint string) *models.ChartSpec {
	if result == nil || result.RowCount == 0 {
		return nil
	}

	shape := analyze(result)
	if len(shape.numeric) == 0 {
		return nil
	}

	kind := pickKind(shape)
	if h := hintKind(hint, shape); h != "" {
		kind = h
	}

	spec := build(result, shape, kind)
	if result.Truncated {
		spec.Layout.Note = fmt.Sprintf("showing first %d rows (result truncated)", result.RowCount)
	}
	return spec
}

type resultShape struct {
	numeric     []int // column indexes by semantic type
	categorical []int
	temporal    []int
}

func analyze(result *models.QueryResult) resultShape {
	var shape resultShape
	for i, t := range result.Types {
		switch t {
		case models.ColNumber:
			shape.numeric = append(shape.numeric, i)
		case models.ColDatetime:
			shape.temporal = append(shape.temporal, i)
		default:
			shape.categorical = append(shape.categorical, i)
		}
	}
	return shape
}

func pickKind(shape resultShape) string {
	switch {
	case len(shape.temporal) > 0:
		return models.ChartLine
	case len(shape.categorical) > 0:
		return models.ChartBar
	case len(shape.numeric) >= 2:
		return models.ChartScatter
	default:
		return models.ChartBar
	}
}

// hintKind maps a caller hint onto a chart kind, or "" when the hint is
// absent or incompatible with the data shape.
func hintKind(hint string, shape resultShape) string {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return ""
	}

	wantsLine := strings.Contains(h, "line") || strings.Contains(h, "trend") || strings.Contains(h, "over time")
	wantsBar := strings.Contains(h, "bar") || strings.Contains(h, "comparison") || strings.Contains(h, "compare") || strings.Contains(h, "ranking")
	wantsScatter := strings.Contains(h, "scatter") || strings.Contains(h, "relationship") || strings.Contains(h, "correlation")

	switch {
	case wantsLine && (len(shape.temporal) > 0 || len(shape.numeric) >= 2 || len(shape.categorical) > 0):
		return models.ChartLine
	case wantsBar && (len(shape.categorical) > 0 || len(shape.temporal) > 0):
		return models.ChartBar
	case wantsScatter && len(shape.numeric) >= 2:
		return models.ChartScatter
	}
	return ""
}

func build(result *models.QueryResult, shape resultShape, kind string) *models.ChartSpec {
	xIdx, yIdxs := pickAxes(shape, kind)

	xName := "row"
	var x []interface{}
	if xIdx >= 0 {
		xName = result.Columns[xIdx]
		x = columnValues(result, xIdx)
	} else {
		// Single numeric column with nothing to plot it against: use the
		// row ordinal as the x axis.
		x = make([]interface{}, len(result.Rows))
		for i := range result.Rows {
			x[i] = i + 1
		}
	}

	series := make([]models.ChartSeries, 0, len(yIdxs))
	for _, yIdx := range yIdxs {
		series = append(series, models.ChartSeries{
			Type: kind,
			X:    x,
			Y:    columnValues(result, yIdx),
			Name: result.Columns[yIdx],
		})
	}

	yTitle := result.Columns[yIdxs[0]]
	if len(yIdxs) > 1 {
		yTitle = "value"
	}

	layout := models.ChartLayout{
		Title:    models.TitleText{Text: fmt.Sprintf("%s by %s", yTitle, xName)},
		XAxis:    models.AxisSpec{Title: xName},
		YAxis:    models.AxisSpec{Title: yTitle},
		Template: "plotly_white",
	}
	if kind == models.ChartBar && len(series) > 1 {
		layout.BarMode = "group"
	}

	return &models.ChartSpec{Data: series, Layout: layout}
}

// pickAxes chooses the x column and the y columns for a kind. Scatter plots
// use the first numeric column as x and the second as y; everything else
// uses the first temporal or categorical column as x and every numeric
// column as a series.
func pickAxes(shape resultShape, kind string) (int, []int) {
	if kind == models.ChartScatter && len(shape.numeric) >= 2 {
		return shape.numeric[0], shape.numeric[1:2]
	}

	xIdx := -1
	if len(shape.temporal) > 0 {
		xIdx = shape.temporal[0]
	} else if len(shape.categorical) > 0 {
		xIdx = shape.categorical[0]
	}
	if xIdx < 0 {
		if len(shape.numeric) >= 2 {
			// All-numeric result plotted against the first column.
			return shape.numeric[0], shape.numeric[1:]
		}
		// Lone numeric column: x becomes the row ordinal.
		return -1, shape.numeric
	}
	return xIdx, shape.numeric
}

func columnValues(result *models.QueryResult, idx int) []interface{} {
	values := make([]interface{}, 0, len(result.Rows))
	for _, row := range result.Rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, nil)
		}
	}
	return values
}
