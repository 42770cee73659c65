package cdptab

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/mailru/easyjson"
	"github.com/orisano/pixelmatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
)

func TestResolveScreenshotFormat(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		opts ScreenshotOptions
		want ScreenshotFormat
		err  bool
	}{
		{"default png", ScreenshotOptions{}, FormatPNG, false},
		{"explicit jpeg", ScreenshotOptions{Format: FormatJPEG}, FormatJPEG, false},
		{"from jpg path", ScreenshotOptions{Path: "shot.jpg"}, FormatJPEG, false},
		{"from jpeg path", ScreenshotOptions{Path: "shot.jpeg"}, FormatJPEG, false},
		{"from png path", ScreenshotOptions{Path: "shot.png"}, FormatPNG, false},
		{"unknown ext is png", ScreenshotOptions{Path: "shot.bmp"}, FormatPNG, false},
		{"bad explicit", ScreenshotOptions{Format: "webp"}, "", true},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.resolveFormat()
			if tt.err {
				var usage *UsageError
				require.ErrorAs(t, err, &usage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// testImage renders a small deterministic gradient.
func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 17), uint8(y * 31), 128, 255})
		}
	}
	return img
}

func TestScreenshotRoundTrip(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)

	want := testImage(24, 16)
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, want))

	s.mu.Lock()
	s.handler = func(method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
		if method == page.CommandCaptureScreenshot {
			capture := params.(*page.CaptureScreenshotParams)
			assert.Equal(t, page.CaptureScreenshotFormatPng, capture.Format)
			assert.True(t, capture.FromSurface)
			if r, ok := res.(*page.CaptureScreenshotReturns); ok {
				r.Data = base64.StdEncoding.EncodeToString(encoded.Bytes())
			}
		}
		return nil
	}
	s.mu.Unlock()

	buf, err := p.Screenshot(context.Background(), ScreenshotOptions{})
	require.NoError(t, err)

	got, err := png.Decode(bytes.NewReader(buf))
	require.NoError(t, err)
	mismatched, err := pixelmatch.MatchPixel(want, got, pixelmatch.Threshold(0.1))
	require.NoError(t, err)
	assert.Zero(t, mismatched)

	// The tab is activated before capture.
	assert.Equal(t, 1, s.callCount(target.CommandActivateTarget))
}

func TestScreenshotWritesFile(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)

	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, testImage(4, 4)))
	s.mu.Lock()
	s.handler = func(method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
		if r, ok := res.(*page.CaptureScreenshotReturns); ok {
			r.Data = base64.StdEncoding.EncodeToString(encoded.Bytes())
		}
		return nil
	}
	s.mu.Unlock()

	path := filepath.Join(t.TempDir(), "shot.png")
	buf, err := p.Screenshot(context.Background(), ScreenshotOptions{Path: path})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf, onDisk)
}

func TestScreenshotFullPageOverridesAndRestores(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)

	var overrides []*emulation.SetDeviceMetricsOverrideParams
	s.mu.Lock()
	s.handler = func(method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
		switch method {
		case emulation.CommandSetDeviceMetricsOverride:
			overrides = append(overrides, params.(*emulation.SetDeviceMetricsOverrideParams))
		case page.CommandGetLayoutMetrics:
			if r, ok := res.(*page.GetLayoutMetricsReturns); ok {
				r.CSSContentSize = &dom.Rect{Width: 1234.4, Height: 4000.2}
			}
		case page.CommandCaptureScreenshot:
			if r, ok := res.(*page.CaptureScreenshotReturns); ok {
				r.Data = base64.StdEncoding.EncodeToString([]byte{0x89})
			}
		}
		return nil
	}
	s.mu.Unlock()

	_, err := p.Screenshot(context.Background(), ScreenshotOptions{FullPage: true})
	require.NoError(t, err)

	// One override sized to the full content, one restoring the 800x600
	// default applied at construction.
	require.Len(t, overrides, 2)
	assert.EqualValues(t, 1235, overrides[0].Width)
	assert.EqualValues(t, 4001, overrides[0].Height)
	assert.EqualValues(t, 800, overrides[1].Width)
	assert.EqualValues(t, 600, overrides[1].Height)
}

func TestScreenshotFullPageRestoresOnFailure(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)
	captureErr := errors.New("capture blew up")

	s.mu.Lock()
	s.handler = func(method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
		switch method {
		case page.CommandGetLayoutMetrics:
			if r, ok := res.(*page.GetLayoutMetricsReturns); ok {
				r.ContentSize = &dom.Rect{Width: 100, Height: 100}
			}
		case page.CommandCaptureScreenshot:
			return captureErr
		}
		return nil
	}
	s.mu.Unlock()

	before := s.callCount(emulation.CommandSetDeviceMetricsOverride)
	_, err := p.Screenshot(context.Background(), ScreenshotOptions{FullPage: true})
	require.ErrorIs(t, err, captureErr)
	// The full-page override and its restore both ran despite the failure.
	assert.Equal(t, before+2, s.callCount(emulation.CommandSetDeviceMetricsOverride))
}

func TestScreenshotOmitBackground(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)

	var colors []*emulation.SetDefaultBackgroundColorOverrideParams
	s.mu.Lock()
	s.handler = func(method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
		switch method {
		case emulation.CommandSetDefaultBackgroundColorOverride:
			colors = append(colors, params.(*emulation.SetDefaultBackgroundColorOverrideParams))
		case page.CommandCaptureScreenshot:
			if r, ok := res.(*page.CaptureScreenshotReturns); ok {
				r.Data = base64.StdEncoding.EncodeToString([]byte{0x89})
			}
		}
		return nil
	}
	s.mu.Unlock()

	_, err := p.Screenshot(context.Background(), ScreenshotOptions{OmitBackground: true})
	require.NoError(t, err)

	// Transparent override first, cleared afterwards.
	require.Len(t, colors, 2)
	require.NotNil(t, colors[0].Color)
	assert.Zero(t, colors[0].Color.A)
	assert.Nil(t, colors[1].Color)
}

func TestScreenshotQueueSerializes(t *testing.T) {
	t.Parallel()

	q := new(ScreenshotQueue)
	release := q.acquire()
	locked := make(chan struct{})
	go func() {
		r := q.acquire()
		close(locked)
		r()
	}()

	select {
	case <-locked:
		t.Fatal("second acquire succeeded while the queue was held")
	default:
	}
	release()
	<-locked
}
