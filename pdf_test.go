package cdptab

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromedp/cdproto/page"
)

func TestConvertPrintParameterToInches(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		in   string
		want float64
		ok   bool
	}{
		{"", 0, false},
		{"96", 1, true},
		{"96px", 1, true},
		{"1in", 1, true},
		{"10cm", 10 * 37.8 / 96, true},
		{"100mm", 100 * 3.78 / 96, true},
		{"48PX", 0.5, true},
		{"2.5in", 2.5, true},
	} {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, ok, err := convertPrintParameterToInches(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestConvertPrintParameterToInchesInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"10em", "abcpx", "in"} {
		_, _, err := convertPrintParameterToInches(in)
		var usage *UsageError
		assert.ErrorAs(t, err, &usage, "input %q", in)
	}
}

func TestPDFPaperFormat(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)
	doc := []byte("%PDF-1.4 fake")

	var printed *page.PrintToPDFParams
	s.mu.Lock()
	s.handler = func(method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
		if method == page.CommandPrintToPDF {
			printed = params.(*page.PrintToPDFParams)
			if r, ok := res.(*page.PrintToPDFReturns); ok {
				r.Data = base64.StdEncoding.EncodeToString(doc)
			}
		}
		return nil
	}
	s.mu.Unlock()

	buf, err := p.PDF(context.Background(), PDFOptions{Format: "A4", Landscape: true})
	require.NoError(t, err)
	assert.Equal(t, doc, buf)

	require.NotNil(t, printed)
	assert.InDelta(t, 8.27, printed.PaperWidth, 1e-9)
	assert.InDelta(t, 11.7, printed.PaperHeight, 1e-9)
	assert.True(t, printed.Landscape)
	assert.Equal(t, 1.0, printed.Scale)
}

func TestPDFUnknownFormat(t *testing.T) {
	t.Parallel()

	p, _ := newTestPage(t)
	_, err := p.PDF(context.Background(), PDFOptions{Format: "a9"})
	var usage *UsageError
	require.ErrorAs(t, err, &usage)
	assert.Contains(t, usage.Error(), "a9")
}

func TestPDFExplicitSizeAndMargins(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)

	var printed *page.PrintToPDFParams
	s.mu.Lock()
	s.handler = func(method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
		if method == page.CommandPrintToPDF {
			printed = params.(*page.PrintToPDFParams)
		}
		return nil
	}
	s.mu.Unlock()

	_, err := p.PDF(context.Background(), PDFOptions{
		Width:      "10in",
		Height:     "960px",
		MarginTop:  "96px",
		MarginLeft: "1in",
	})
	require.NoError(t, err)
	require.NotNil(t, printed)
	assert.InDelta(t, 10, printed.PaperWidth, 1e-9)
	assert.InDelta(t, 10, printed.PaperHeight, 1e-9)
	assert.InDelta(t, 1, printed.MarginTop, 1e-9)
	assert.InDelta(t, 1, printed.MarginLeft, 1e-9)
	assert.Zero(t, printed.MarginBottom)
}

func TestPDFWritesFile(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)
	doc := []byte("%PDF-1.4 on disk")

	s.mu.Lock()
	s.handler = func(method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
		if r, ok := res.(*page.PrintToPDFReturns); ok {
			r.Data = base64.StdEncoding.EncodeToString(doc)
		}
		return nil
	}
	s.mu.Unlock()

	path := filepath.Join(t.TempDir(), "out.pdf")
	buf, err := p.PDF(context.Background(), PDFOptions{Path: path})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf, onDisk)
}
