package cdptab

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/mailru/easyjson"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/performance"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/security"
	"golang.org/x/exp/slices"
)

// Page is the controller for a single browser tab. It owns the session for
// its lifetime, translates low-level protocol notifications into the public
// event vocabulary, and layers the navigation and function-exposure
// machinery on top.
//
// A Page is safe for concurrent use by multiple goroutines, but command
// issuance order across goroutines is caller-determined.
type Page struct {
	sess Session
	emitter

	// mu guards the hub state below.
	mu           sync.Mutex
	frames       map[cdp.FrameID]*Frame
	mainFrame    cdp.FrameID
	execContexts map[cdp.FrameID]runtime.ExecutionContextID
	requests     map[network.RequestID]*Request
	bindings     map[string]BindingFunc
	extraHeaders map[string]string
	viewport     *Viewport

	ignoreHTTPSErrors bool
	appMode           bool
	screenshotQueue   *ScreenshotQueue

	closed    chan struct{}
	closeOnce sync.Once
	detach    context.CancelFunc

	// logging funcs
	logf, debugf, errf func(string, ...any)
}

// PageOption is a Page constructor option.
type PageOption func(*Page)

// WithLogf sets the func to receive general logging.
func WithLogf(f func(string, ...any)) PageOption {
	return func(p *Page) { p.logf = f }
}

// WithDebugf sets the func to receive debug logging.
func WithDebugf(f func(string, ...any)) PageOption {
	return func(p *Page) { p.debugf = f }
}

// WithErrorf sets the func to receive error logging.
func WithErrorf(f func(string, ...any)) PageOption {
	return func(p *Page) { p.errf = f }
}

// WithIgnoreHTTPSErrors makes the browser ignore certificate errors on this
// tab instead of blocking the load.
func WithIgnoreHTTPSErrors() PageOption {
	return func(p *Page) { p.ignoreHTTPSErrors = true }
}

// WithAppMode skips the default 800x600 viewport override at construction.
func WithAppMode() PageOption {
	return func(p *Page) { p.appMode = true }
}

// WithScreenshotQueue hands the page a capture lock shared with other tab
// controllers on the same browser, so their screenshots never interleave
// target activation.
func WithScreenshotQueue(q *ScreenshotQueue) PageOption {
	return func(p *Page) { p.screenshotQueue = q }
}

// NewPage attaches a controller to the tab behind sess. It enables the
// protocol domains the controller consumes, loads the initial frame tree,
// and installs the event listeners that live for the page's lifetime.
func NewPage(ctx context.Context, sess Session, opts ...PageOption) (*Page, error) {
	p := &Page{
		sess:         sess,
		frames:       make(map[cdp.FrameID]*Frame),
		execContexts: make(map[cdp.FrameID]runtime.ExecutionContextID),
		requests:     make(map[network.RequestID]*Request),
		bindings:     make(map[string]BindingFunc),
		extraHeaders: make(map[string]string),
		closed:       make(chan struct{}),
		logf:         log.Printf,
	}
	for _, o := range opts {
		o(p)
	}
	if p.errf == nil {
		p.errf = func(format string, v ...any) { p.logf("ERROR: "+format, v...) }
	}
	if p.debugf == nil {
		p.debugf = func(string, ...any) {}
	}

	// Listeners live as long as the page, not as long as the constructor's
	// ctx.
	lctx, cancel := context.WithCancel(context.Background())
	p.detach = cancel
	sess.Listen(lctx, p.dispatch)

	if err := p.sess.Execute(ctx, page.CommandEnable, nil, nil); err != nil {
		p.fail()
		return nil, err
	}
	tree := new(page.GetFrameTreeReturns)
	if err := p.sess.Execute(ctx, page.CommandGetFrameTree, &page.GetFrameTreeParams{}, tree); err != nil {
		p.fail()
		return nil, err
	}
	p.seedFrameTree(tree.FrameTree)

	for _, enable := range []struct {
		method string
		params easyjson.Marshaler
	}{
		{page.CommandSetLifecycleEventsEnabled, &page.SetLifecycleEventsEnabledParams{Enabled: true}},
		{network.CommandEnable, &network.EnableParams{}},
		{runtime.CommandEnable, &runtime.EnableParams{}},
		{security.CommandEnable, &security.EnableParams{}},
		{performance.CommandEnable, &performance.EnableParams{}},
	} {
		if err := p.sess.Execute(ctx, enable.method, enable.params, nil); err != nil {
			p.fail()
			return nil, err
		}
	}
	if p.ignoreHTTPSErrors {
		params := &security.SetIgnoreCertificateErrorsParams{Ignore: true}
		if err := p.sess.Execute(ctx, security.CommandSetIgnoreCertificateErrors, params, nil); err != nil {
			p.fail()
			return nil, err
		}
	}
	if !p.appMode {
		if err := p.SetViewport(ctx, Viewport{Width: 800, Height: 600}); err != nil {
			p.fail()
			return nil, err
		}
	}
	return p, nil
}

// fail tears down a half-constructed page.
func (p *Page) fail() {
	p.closeOnce.Do(func() { close(p.closed) })
	p.detach()
}

// On registers a handler for one public event kind and returns its removal
// func. Handlers run synchronously on the session's dispatch goroutine and
// must not register or remove handlers from within a handler.
func (p *Page) On(kind EventKind, fn Handler) (off func()) {
	return p.on(kind, fn)
}

// Session returns the page's session.
func (p *Page) Session() Session {
	return p.sess
}

// Queue returns the shared screenshot queue handed to the page at
// construction, or nil.
func (p *Page) Queue() *ScreenshotQueue {
	return p.screenshotQueue
}

// Close detaches the page's event listeners and closes the session. The
// page is unusable afterwards.
func (p *Page) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	p.detach()
	return p.sess.Close()
}

// dispatch routes one decoded protocol event. It runs on the session's
// dispatch goroutine; everything here must stay non-blocking, so commands
// issued from event handling are fire-and-forget.
func (p *Page) dispatch(ev any) {
	switch e := ev.(type) {
	case *page.EventLoadEventFired:
		p.emit(EventLoad, nil)
	case *page.EventLifecycleEvent:
		p.onLifecycleEvent(e)
	case *page.EventFrameAttached:
		p.onFrameAttached(e)
	case *page.EventFrameDetached:
		p.onFrameDetached(e)
	case *page.EventFrameNavigated:
		p.onFrameNavigated(e)
	case *page.EventNavigatedWithinDocument:
		p.onNavigatedWithinDocument(e)
	case *page.EventJavascriptDialogOpening:
		p.onDialog(e)
	case *runtime.EventConsoleAPICalled:
		if err := p.onConsoleAPI(e); err != nil {
			p.errf("could not handle console API call: %v", err)
		}
	case *runtime.EventExceptionThrown:
		p.emit(EventPageError, exceptionError(e.ExceptionDetails))
	case *runtime.EventExecutionContextCreated,
		*runtime.EventExecutionContextDestroyed,
		*runtime.EventExecutionContextsCleared:
		p.runtimeEvent(ev)
	case *inspector.EventTargetCrashed:
		p.emit(EventError, ErrPageCrashed)
	case *performance.EventMetrics:
		p.emit(EventMetrics, &MetricsSample{
			Title:   e.Title,
			Metrics: buildMetrics(e.Metrics),
		})
	case *network.EventRequestWillBeSent:
		p.onRequestWillBeSent(e)
	case *network.EventResponseReceived:
		p.onResponseReceived(e)
	case *network.EventLoadingFailed:
		p.onLoadingFailed(e)
	case *network.EventLoadingFinished:
		p.onLoadingFinished(e)
	}
}

// onConsoleAPI handles a console API call: binding invocations are routed
// to the exposure bridge, everything else becomes a console event — unless
// nobody listens, in which case the argument handles are released unseen.
func (p *Page) onConsoleAPI(ev *runtime.EventConsoleAPICalled) error {
	if isBindingCall(ev) {
		return p.handleBindingCall(ev)
	}

	if p.listenerCount(EventConsole) == 0 {
		for _, arg := range ev.Args {
			p.releaseObject(arg)
		}
		return nil
	}

	values := make([]json.RawMessage, len(ev.Args))
	parts := make([]string, len(ev.Args))
	for i, arg := range ev.Args {
		values[i] = valueFromRemoteObject(arg)
		parts[i] = remoteObjectText(arg)
	}
	p.emit(EventConsole, &ConsoleMessage{
		Kind: string(ev.Type),
		Text: strings.Join(parts, " "),
		Args: values,
	})
	return nil
}

// releaseObject asks the browser to drop a remote object handle,
// fire-and-forget.
func (p *Page) releaseObject(obj *runtime.RemoteObject) {
	if obj == nil || obj.ObjectID == "" {
		return
	}
	params := &runtime.ReleaseObjectParams{ObjectID: obj.ObjectID}
	go func() {
		if err := p.sess.Execute(context.Background(), runtime.CommandReleaseObject, params, nil); err != nil {
			p.debugf("could not release object %s: %v", obj.ObjectID, err)
		}
	}()
}

// supportedMetrics is the allowlist of metric names passed through from
// performance samples.
var supportedMetrics = []string{
	"Timestamp",
	"Documents",
	"Frames",
	"JSEventListeners",
	"Nodes",
	"LayoutCount",
	"RecalcStyleCount",
	"LayoutDuration",
	"RecalcStyleDuration",
	"ScriptDuration",
	"TaskDuration",
	"JSHeapUsedSize",
	"JSHeapTotalSize",
}

func buildMetrics(metrics []*performance.Metric) map[string]float64 {
	result := make(map[string]float64)
	for _, m := range metrics {
		if slices.Contains(supportedMetrics, m.Name) {
			result[m.Name] = m.Value
		}
	}
	return result
}

// Metrics returns the page's current performance metrics, filtered to the
// supported names.
func (p *Page) Metrics(ctx context.Context) (map[string]float64, error) {
	res := new(performance.GetMetricsReturns)
	if err := p.sess.Execute(ctx, performance.CommandGetMetrics, &performance.GetMetricsParams{}, res); err != nil {
		return nil, err
	}
	return buildMetrics(res.Metrics), nil
}

// BringToFront activates the tab.
func (p *Page) BringToFront(ctx context.Context) error {
	return p.sess.Execute(ctx, page.CommandBringToFront, nil, nil)
}

// Content returns the whole HTML contents of the page, including the
// doctype.
func (p *Page) Content(ctx context.Context) (string, error) {
	expr, err := evaluationString(contentJS)
	if err != nil {
		return "", err
	}
	var html string
	if err := p.Evaluate(ctx, expr, &html); err != nil {
		return "", err
	}
	return html, nil
}

// SetContent replaces the current document with the given HTML.
func (p *Page) SetContent(ctx context.Context, html string) error {
	expr, err := evaluationString(setContentJS, html)
	if err != nil {
		return err
	}
	return p.Evaluate(ctx, expr, nil)
}

// Title returns the page title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.Evaluate(ctx, "document.title", &title); err != nil {
		return "", err
	}
	return title, nil
}
