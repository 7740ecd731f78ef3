package commands

import (
	"bond-alert-bot/internal/types"
	"bond-alert-bot/lib/helpers"
	"bond-alert-bot/lib/translation"
	"bytes"
	"context"
	"math"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	gridColor       = drawing.Color{R: 100, G: 100, B: 100, A: 128}
	seriesColor     = drawing.Color{R: 0, G: 122, B: 255, A: 255}
	seriesFill      = drawing.Color{R: 0, G: 122, B: 255, A: 25}
)

var (
	chartFont     *truetype.Font
	chartFontErr  error
	chartFontOnce sync.Once
)

func loadChartFont() (*truetype.Font, error) {
	chartFontOnce.Do(func() {
		chartFont, chartFontErr = truetype.Parse(goregular.TTF)
	})
	return chartFont, chartFontErr
}

// Chart answers /chart <ISIN> with the intraday price series as PNG
func (h *Handler) Chart(ctx context.Context, args string) (Reply, error) {
	log.Debugf("processing command /chart with argument: %s", args)

	isin, err := requireISIN("chart", args)
	if err != nil {
		return Reply{}, err
	}

	if item, found := h.charts.get(isin); found {
		log.Debugf("returning cached chart for %s", isin)
		return Reply{Text: item.Caption, Photo: item.ChartData}, nil
	}

	quote, err := h.prices.FetchPrice(ctx, isin)
	if err != nil {
		return Reply{}, err
	}

	points := chartPoints(quote.Points)
	if len(points) < 2 {
		return Reply{Text: translation.Markdown("chart_no_data", isin)}, nil
	}

	png, err := renderChart(quote, points)
	if err != nil {
		return Reply{}, errors.Wrapf(err, "could not render chart for %s", isin)
	}

	caption := priceText(quote)
	h.charts.set(isin, png, caption)

	return Reply{Text: caption, Photo: png}, nil
}

// chartPoints drops points without a timestamp and repeated timestamps
func chartPoints(points []types.PricePoint) []types.PricePoint {
	timed := lo.Filter(points, func(p types.PricePoint, _ int) bool { return !p.Time.IsZero() })
	return lo.UniqBy(timed, func(p types.PricePoint) int64 { return p.Time.UnixNano() })
}

func priceRange(points []types.PricePoint) *chart.ContinuousRange {
	prices := lo.Map(points, func(p types.PricePoint, _ int) float64 { return p.Price })
	minPrice, maxPrice := lo.Min(prices), lo.Max(prices)

	padding := (maxPrice - minPrice) * 0.1
	if padding == 0 {
		padding = math.Max(math.Abs(minPrice)*0.001, 0.01)
	}
	return &chart.ContinuousRange{Min: minPrice - padding, Max: maxPrice + padding}
}

func renderChart(q *types.PriceQuote, points []types.PricePoint) ([]byte, error) {
	font, err := loadChartFont()
	if err != nil {
		return nil, errors.Wrap(err, "could not load chart font")
	}

	series := chart.TimeSeries{
		Name: q.ISIN,
		Style: chart.Style{
			StrokeColor: seriesColor,
			StrokeWidth: 2,
			FillColor:   seriesFill,
		},
	}
	for _, p := range points {
		series.XValues = append(series.XValues, p.Time)
		series.YValues = append(series.YValues, p.Price)
	}

	title := q.Label
	if title == "" {
		title = q.ISIN
	}

	axisStyle := chart.Style{FontColor: textColor, StrokeColor: textColor, FontSize: 10}

	graph := chart.Chart{
		Title: title + " (" + q.ISIN + ")",
		TitleStyle: chart.Style{
			FontColor: textColor,
			FontSize:  14,
		},
		Width:  1200,
		Height: 600,
		Font:   font,
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{FillColor: backgroundColor},
		XAxis: chart.XAxis{
			Style:          axisStyle,
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04"),
		},
		YAxis: chart.YAxis{
			Style: axisStyle,
			Range: priceRange(points),
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return helpers.FormatPrice(f)
				}
				return ""
			},
			GridMajorStyle: chart.Style{StrokeColor: gridColor, StrokeWidth: 1},
		},
		Series: []chart.Series{series},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
