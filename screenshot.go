package cdptab

import (
	"context"
	"encoding/base64"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
)

// ScreenshotFormat is a capture encoding.
type ScreenshotFormat string

// Screenshot formats.
const (
	FormatPNG  ScreenshotFormat = "png"
	FormatJPEG ScreenshotFormat = "jpeg"
)

// ScreenshotQueue serializes screenshot captures across pages sharing one
// browser. Captures briefly activate their target, so two concurrent
// captures on different tabs can steal each other's foreground; pages
// handed the same queue take screenshots one at a time.
type ScreenshotQueue struct {
	mu sync.Mutex
}

func (q *ScreenshotQueue) acquire() func() {
	q.mu.Lock()
	return q.mu.Unlock
}

// ScreenshotOptions controls a Screenshot capture. The zero value captures
// the current viewport as PNG.
type ScreenshotOptions struct {
	// Path is a file to write the image to. Empty means return-only.
	Path string

	// Format selects the encoding. When empty it is inferred from Path's
	// extension, falling back to PNG.
	Format ScreenshotFormat

	// Quality is the JPEG compression quality (0-100). Ignored for PNG.
	Quality int64

	// FullPage captures the entire scrollable page rather than the
	// viewport, by temporarily overriding device metrics.
	FullPage bool

	// Clip restricts the capture to a region of the page.
	Clip *page.Viewport

	// OmitBackground makes the default white background transparent, for
	// PNG captures of pages without their own background.
	OmitBackground bool
}

// resolveFormat picks the capture encoding: the explicit option wins, then
// the path extension, then PNG.
func (o *ScreenshotOptions) resolveFormat() (ScreenshotFormat, error) {
	format := o.Format
	if format == "" {
		switch filepath.Ext(o.Path) {
		case ".jpg", ".jpeg":
			format = FormatJPEG
		default:
			format = FormatPNG
		}
	}
	switch format {
	case FormatPNG, FormatJPEG:
		return format, nil
	}
	return "", usagef("unsupported screenshot format: %s", format)
}

// Screenshot captures an image of the page and returns the encoded bytes.
// When opts.Path is set the image is also written there.
func (p *Page) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	format, err := opts.resolveFormat()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	queue := p.screenshotQueue
	p.mu.Unlock()
	if queue != nil {
		release := queue.acquire()
		defer release()
	}

	buf, err := p.captureScreenshot(ctx, format, opts)
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

func (p *Page) captureScreenshot(ctx context.Context, format ScreenshotFormat, opts ScreenshotOptions) ([]byte, error) {
	activate := &target.ActivateTargetParams{TargetID: p.sess.TargetID()}
	if err := p.sess.Execute(ctx, target.CommandActivateTarget, activate, nil); err != nil {
		return nil, err
	}

	if opts.FullPage {
		restore, err := p.overrideMetricsForFullPage(ctx)
		if err != nil {
			return nil, err
		}
		defer restore()
	}

	if opts.OmitBackground {
		transparent := &emulation.SetDefaultBackgroundColorOverrideParams{
			Color: &cdp.RGBA{R: 0, G: 0, B: 0, A: 0},
		}
		if err := p.sess.Execute(ctx, emulation.CommandSetDefaultBackgroundColorOverride, transparent, nil); err != nil {
			return nil, err
		}
		defer func() {
			reset := new(emulation.SetDefaultBackgroundColorOverrideParams)
			if err := p.sess.Execute(ctx, emulation.CommandSetDefaultBackgroundColorOverride, reset, nil); err != nil {
				p.errf("could not clear background override: %v", err)
			}
		}()
	}

	params := &page.CaptureScreenshotParams{
		Format:      page.CaptureScreenshotFormat(format),
		Clip:        opts.Clip,
		FromSurface: true,
	}
	if format == FormatJPEG && opts.Quality > 0 {
		params.Quality = opts.Quality
	}
	res := new(page.CaptureScreenshotReturns)
	if err := p.sess.Execute(ctx, page.CommandCaptureScreenshot, params, res); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(res.Data)
}

// overrideMetricsForFullPage resizes the emulated device to the page's full
// content size and returns a func restoring the previous viewport. The
// restore runs even when the capture itself fails.
func (p *Page) overrideMetricsForFullPage(ctx context.Context) (func(), error) {
	res := new(page.GetLayoutMetricsReturns)
	if err := p.sess.Execute(ctx, page.CommandGetLayoutMetrics, nil, res); err != nil {
		return nil, err
	}
	content := res.CSSContentSize
	if content == nil {
		content = res.ContentSize
	}
	if content == nil {
		return nil, usagef("layout metrics reported no content size")
	}
	width := int64(math.Ceil(content.Width))
	height := int64(math.Ceil(content.Height))

	prev := p.Viewport()

	override := &emulation.SetDeviceMetricsOverrideParams{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		ScreenOrientation: &emulation.ScreenOrientation{
			Type:  emulation.OrientationTypePortraitPrimary,
			Angle: 0,
		},
	}
	if prev != nil {
		if prev.DeviceScaleFactor != 0 {
			override.DeviceScaleFactor = prev.DeviceScaleFactor
		}
		override.Mobile = prev.Mobile
		if prev.Landscape {
			override.ScreenOrientation = &emulation.ScreenOrientation{
				Type:  emulation.OrientationTypeLandscapePrimary,
				Angle: 90,
			}
		}
	}
	if err := p.sess.Execute(ctx, emulation.CommandSetDeviceMetricsOverride, override, nil); err != nil {
		return nil, err
	}

	restore := func() {
		if prev == nil {
			reset := new(emulation.ClearDeviceMetricsOverrideParams)
			if err := p.sess.Execute(ctx, emulation.CommandClearDeviceMetricsOverride, reset, nil); err != nil {
				p.errf("could not clear device metrics override: %v", err)
			}
			return
		}
		if err := p.SetViewport(ctx, *prev); err != nil {
			p.errf("could not restore viewport after screenshot: %v", err)
		}
	}
	return restore, nil
}
