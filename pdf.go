package cdptab

import (
	"context"
	"encoding/base64"
	"os"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/page"
)

// paperFormat is a named paper size in inches.
type paperFormat struct {
	width  float64
	height float64
}

var paperFormats = map[string]paperFormat{
	"letter":  {8.5, 11},
	"legal":   {8.5, 14},
	"tabloid": {11, 17},
	"ledger":  {17, 11},
	"a0":      {33.1, 46.8},
	"a1":      {23.4, 33.1},
	"a2":      {16.5, 23.4},
	"a3":      {11.7, 16.5},
	"a4":      {8.27, 11.7},
	"a5":      {5.83, 8.27},
}

// unitToPixels maps a CSS length unit to its size in pixels at 96 DPI.
var unitToPixels = map[string]float64{
	"px": 1,
	"in": 96,
	"cm": 37.8,
	"mm": 3.78,
}

// convertPrintParameterToInches parses a print length like "10cm", "200px"
// or "8.5in" and returns its value in inches. A bare number is pixels. An
// empty string reports ok=false with no error.
func convertPrintParameterToInches(param string) (value float64, ok bool, err error) {
	if param == "" {
		return 0, false, nil
	}
	pixels := unitToPixels["px"]
	text := param
	if len(param) > 2 {
		if perUnit, known := unitToPixels[strings.ToLower(param[len(param)-2:])]; known {
			pixels = perUnit
			text = param[:len(param)-2]
		}
	}
	valuePx, perr := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if perr != nil {
		return 0, false, usagef("failed to parse parameter value: %s", param)
	}
	return valuePx * pixels / 96, true, nil
}

// PDFOptions controls PrintToPDF. Lengths (Width, Height, margins) are CSS
// length strings such as "10cm" or "200px"; a bare number is pixels.
type PDFOptions struct {
	// Path is a file to write the document to. Empty means return-only.
	Path string

	// Scale is the rendering scale. Zero means 1.
	Scale float64

	// DisplayHeaderFooter prints the header and footer.
	DisplayHeaderFooter bool

	// HeaderTemplate and FooterTemplate are HTML templates for the printed
	// header and footer.
	HeaderTemplate string
	FooterTemplate string

	// PrintBackground includes background graphics.
	PrintBackground bool

	// Landscape prints in landscape orientation.
	Landscape bool

	// PageRanges restricts printing, e.g. "1-5, 8".
	PageRanges string

	// Format is a named paper size such as "a4" or "letter". It takes
	// precedence over Width and Height.
	Format string

	// Width and Height set the paper size directly.
	Width  string
	Height string

	// Margins of the printed pages. Default is about 1cm on each side.
	MarginTop    string
	MarginBottom string
	MarginLeft   string
	MarginRight  string

	// PreferCSSPageSize honors any CSS-declared page size over the paper
	// size options above.
	PreferCSSPageSize bool
}

// PDF renders the page as a PDF document and returns its bytes. When
// opts.Path is set the document is also written there.
func (p *Page) PDF(ctx context.Context, opts PDFOptions) ([]byte, error) {
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	paperWidth := 8.5
	paperHeight := 11.0
	if opts.Format != "" {
		format, ok := paperFormats[strings.ToLower(opts.Format)]
		if !ok {
			return nil, usagef("unknown paper format: %s", opts.Format)
		}
		paperWidth = format.width
		paperHeight = format.height
	} else {
		if w, ok, err := convertPrintParameterToInches(opts.Width); err != nil {
			return nil, err
		} else if ok {
			paperWidth = w
		}
		if h, ok, err := convertPrintParameterToInches(opts.Height); err != nil {
			return nil, err
		} else if ok {
			paperHeight = h
		}
	}

	margins := [4]float64{} // top, bottom, left, right
	for i, m := range []string{opts.MarginTop, opts.MarginBottom, opts.MarginLeft, opts.MarginRight} {
		v, ok, err := convertPrintParameterToInches(m)
		if err != nil {
			return nil, err
		}
		if ok {
			margins[i] = v
		}
	}

	params := &page.PrintToPDFParams{
		Landscape:           opts.Landscape,
		DisplayHeaderFooter: opts.DisplayHeaderFooter,
		PrintBackground:     opts.PrintBackground,
		Scale:               scale,
		PaperWidth:          paperWidth,
		PaperHeight:         paperHeight,
		MarginTop:           margins[0],
		MarginBottom:        margins[1],
		MarginLeft:          margins[2],
		MarginRight:         margins[3],
		PageRanges:          opts.PageRanges,
		HeaderTemplate:      opts.HeaderTemplate,
		FooterTemplate:      opts.FooterTemplate,
		PreferCSSPageSize:   opts.PreferCSSPageSize,
	}
	res := new(page.PrintToPDFReturns)
	if err := p.sess.Execute(ctx, page.CommandPrintToPDF, params, res); err != nil {
		return nil, err
	}
	buf, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		return nil, err
	}
	if opts.Path != "" {
		if err := os.WriteFile(opts.Path, buf, 0o644); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
