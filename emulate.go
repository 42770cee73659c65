package cdptab

import (
	"context"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"golang.org/x/exp/slices"
)

// Viewport describes the emulated viewport applied to the page.
type Viewport struct {
	// Width and Height are the viewport dimensions in CSS pixels.
	Width  int64
	Height int64

	// DeviceScaleFactor is the device pixel ratio. Zero means 1.
	DeviceScaleFactor float64

	// Mobile enables mobile emulation (meta viewport, overlay scrollbars).
	Mobile bool

	// Landscape rotates the emulated screen orientation.
	Landscape bool

	// Touch enables touch event emulation.
	Touch bool
}

// SetViewport applies the given viewport emulation and remembers it as the
// page's current viewport. Content that depends on viewport size is only
// guaranteed to see the new dimensions after the next navigation.
func (p *Page) SetViewport(ctx context.Context, vp Viewport) error {
	scale := vp.DeviceScaleFactor
	if scale == 0 {
		scale = 1
	}
	orientation := &emulation.ScreenOrientation{
		Type:  emulation.OrientationTypePortraitPrimary,
		Angle: 0,
	}
	if vp.Landscape {
		orientation.Type = emulation.OrientationTypeLandscapePrimary
		orientation.Angle = 90
	}
	metrics := &emulation.SetDeviceMetricsOverrideParams{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: scale,
		Mobile:            vp.Mobile,
		ScreenOrientation: orientation,
	}
	if err := p.sess.Execute(ctx, emulation.CommandSetDeviceMetricsOverride, metrics, nil); err != nil {
		return err
	}
	touch := &emulation.SetTouchEmulationEnabledParams{Enabled: vp.Touch}
	if err := p.sess.Execute(ctx, emulation.CommandSetTouchEmulationEnabled, touch, nil); err != nil {
		return err
	}
	p.mu.Lock()
	p.viewport = &vp
	p.mu.Unlock()
	return nil
}

// Viewport returns the last viewport applied with SetViewport, or nil when
// none has been applied.
func (p *Page) Viewport() *Viewport {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.viewport == nil {
		return nil
	}
	vp := *p.viewport
	return &vp
}

// SetUserAgent overrides the user agent sent with page requests.
func (p *Page) SetUserAgent(ctx context.Context, userAgent string) error {
	params := &emulation.SetUserAgentOverrideParams{UserAgent: userAgent}
	return p.sess.Execute(ctx, emulation.CommandSetUserAgentOverride, params, nil)
}

// SetExtraHTTPHeaders sets additional headers sent with every request the
// page makes. The header set replaces any previously configured one.
func (p *Page) SetExtraHTTPHeaders(ctx context.Context, headers map[string]string) error {
	p.mu.Lock()
	p.extraHeaders = make(map[string]string, len(headers))
	for k, v := range headers {
		p.extraHeaders[k] = v
	}
	p.mu.Unlock()

	h := make(network.Headers, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	params := &network.SetExtraHTTPHeadersParams{Headers: h}
	return p.sess.Execute(ctx, network.CommandSetExtraHTTPHeaders, params, nil)
}

// extraHeader returns the configured extra header value for name, or ""
// when not set.
func (p *Page) extraHeader(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extraHeaders[name]
}

// SetJavaScriptEnabled toggles script execution in the page.
func (p *Page) SetJavaScriptEnabled(ctx context.Context, enabled bool) error {
	params := &emulation.SetScriptExecutionDisabledParams{Value: !enabled}
	return p.sess.Execute(ctx, emulation.CommandSetScriptExecutionDisabled, params, nil)
}

var mediaTypes = []string{"screen", "print", ""}

// EmulateMedia overrides the page's CSS media type. Valid values are
// "screen", "print", and "" to clear the override.
func (p *Page) EmulateMedia(ctx context.Context, mediaType string) error {
	if !slices.Contains(mediaTypes, mediaType) {
		return usagef("unsupported media type: %s", mediaType)
	}
	params := &emulation.SetEmulatedMediaParams{Media: mediaType}
	return p.sess.Execute(ctx, emulation.CommandSetEmulatedMedia, params, nil)
}

// SetOfflineMode emulates the network being unreachable when enabled is
// true, and restores normal conditions when false.
func (p *Page) SetOfflineMode(ctx context.Context, enabled bool) error {
	params := &network.EmulateNetworkConditionsParams{
		Offline:            enabled,
		Latency:            0,
		DownloadThroughput: -1,
		UploadThroughput:   -1,
	}
	return p.sess.Execute(ctx, network.CommandEmulateNetworkConditions, params, nil)
}
