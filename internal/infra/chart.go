package infra

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
)

const (
	chartWidth  = 240
	chartHeight = 120
	chartScale  = 3 // upscale factor for readable Telegram previews
)

var (
	chartBackground = color.NRGBA{R: 18, G: 20, B: 26, A: 255}
	chartFill       = color.NRGBA{R: 38, G: 92, B: 66, A: 255}
	chartLine       = color.NRGBA{R: 96, G: 220, B: 128, A: 255}
)

// RenderPriceChart draws the recent price history of a symbol as a
// filled line chart and returns it PNG-encoded. Oldest price first.
func RenderPriceChart(prices []decimal.Decimal) ([]byte, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("need at least 2 prices, got %d", len(prices))
	}

	lo, hi := prices[0].InexactFloat64(), prices[0].InexactFloat64()
	values := make([]float64, len(prices))
	for i, p := range prices {
		v := p.InexactFloat64()
		values[i] = v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 {
		span = 1 // flat series renders as a mid-height line
	}

	img := image.NewNRGBA(image.Rect(0, 0, chartWidth, chartHeight))
	for y := 0; y < chartHeight; y++ {
		for x := 0; x < chartWidth; x++ {
			img.SetNRGBA(x, y, chartBackground)
		}
	}

	// One column per x pixel, sampled from the series
	for x := 0; x < chartWidth; x++ {
		idx := x * (len(values) - 1) / (chartWidth - 1)
		norm := (values[idx] - lo) / span
		// 4px margin top and bottom
		y := chartHeight - 4 - int(norm*float64(chartHeight-8))
		for fy := y + 1; fy < chartHeight-2; fy++ {
			img.SetNRGBA(x, fy, chartFill)
		}
		img.SetNRGBA(x, y, chartLine)
		img.SetNRGBA(x, y+1, chartLine)
	}

	scaled := imaging.Resize(img, chartWidth*chartScale, chartHeight*chartScale, imaging.NearestNeighbor)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	return buf.Bytes(), nil
}
