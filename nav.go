package cdptab

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/page"
)

// NavigateOption configures one navigation-triggering call.
type NavigateOption func(*navOptions)

type navOptions struct {
	waitUntil []LifecycleCondition
	referrer  string
}

// WithWaitUntil sets the lifecycle milestones the navigation waits for.
// The default is WaitLoad.
func WithWaitUntil(conditions ...LifecycleCondition) NavigateOption {
	return func(o *navOptions) { o.waitUntil = conditions }
}

// WithReferrer sets the referer for the navigation request, overriding any
// referer configured via SetExtraHTTPHeaders.
func WithReferrer(referrer string) NavigateOption {
	return func(o *navOptions) { o.referrer = referrer }
}

func makeNavOptions(opts []NavigateOption) navOptions {
	var o navOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// pendingNavigation is the transient state of one navigation-triggering
// call: the most recently observed in-flight request per URL. Each call
// gets a fresh, unshared instance.
type pendingNavigation struct {
	mu       sync.Mutex
	requests map[string]*Request
}

func newPendingNavigation() *pendingNavigation {
	return &pendingNavigation{requests: make(map[string]*Request)}
}

func (pn *pendingNavigation) track(v any) {
	req := v.(*Request)
	pn.mu.Lock()
	pn.requests[req.URL()] = req
	pn.mu.Unlock()
}

func (pn *pendingNavigation) request(url string) *Request {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	return pn.requests[url]
}

// Navigate navigates the main frame to the given URL and waits for the
// requested lifecycle milestones. It returns the network response received
// for the final document URL, or nil if that URL was never observed as a
// request (e.g. a same-document navigation).
//
// Exactly one of the response and the error is non-nil, except for the
// documented nil, nil cases. An error text returned by the navigate command
// itself settles the call immediately, without waiting for the watcher.
func (p *Page) Navigate(ctx context.Context, urlstr string, opts ...NavigateOption) (*Response, error) {
	o := makeNavOptions(opts)
	f := p.MainFrame()
	if f == nil {
		return nil, ErrNoMainFrame
	}

	pn := newPendingNavigation()
	off := p.on(EventRequest, pn.track)
	w := newLifecycleWatcher(p, f, o.waitUntil)
	defer func() {
		w.cancel()
		off()
	}()

	referrer := o.referrer
	if referrer == "" {
		referrer = p.extraHeader("referer")
	}
	params := &page.NavigateParams{URL: urlstr, Referrer: referrer}
	res := new(page.NavigateReturns)
	if err := p.sess.Execute(ctx, page.CommandNavigate, params, res); err != nil {
		return nil, err
	}
	if res.ErrorText != "" {
		return nil, &NavigationError{URL: urlstr, Reason: res.ErrorText}
	}

	if err := w.wait(ctx, p.closed); err != nil {
		return nil, err
	}
	if req := pn.request(f.URL()); req != nil {
		return req.Response(), nil
	}
	return nil, nil
}

// navWait is an armed navigation wait: a lifecycle watcher plus a response
// map keyed by URL, resolved against the main frame's final URL.
type navWait struct {
	p *Page
	w *lifecycleWatcher

	mu        sync.Mutex
	responses map[string]*Response

	off func()
}

// armNavigationWait installs the listeners for one navigation wait. It must
// be armed before the command that triggers the navigation is issued, so no
// early response events are missed.
func (p *Page) armNavigationWait(o navOptions) (*navWait, error) {
	f := p.MainFrame()
	if f == nil {
		return nil, ErrNoMainFrame
	}
	nw := &navWait{
		p:         p,
		responses: make(map[string]*Response),
	}
	nw.off = p.on(EventResponse, func(v any) {
		resp := v.(*Response)
		nw.mu.Lock()
		nw.responses[resp.URL()] = resp
		nw.mu.Unlock()
	})
	nw.w = newLifecycleWatcher(p, f, o.waitUntil)
	return nw, nil
}

func (nw *navWait) wait(ctx context.Context) error {
	return nw.w.wait(ctx, nw.p.closed)
}

// resolve returns the response recorded for the main frame's final URL.
func (nw *navWait) resolve() *Response {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	return nw.responses[nw.p.URL()]
}

func (nw *navWait) cleanup() {
	nw.w.cancel()
	nw.off()
}

// WaitForNavigation waits for the next navigation of the main frame to
// reach the requested milestones and returns the response received for the
// final document URL, or nil if none was observed.
func (p *Page) WaitForNavigation(ctx context.Context, opts ...NavigateOption) (*Response, error) {
	nw, err := p.armNavigationWait(makeNavOptions(opts))
	if err != nil {
		return nil, err
	}
	defer nw.cleanup()
	if err := nw.wait(ctx); err != nil {
		return nil, err
	}
	return nw.resolve(), nil
}

// Reload reloads the page. Both the reload command and the navigation wait
// must complete: the command's own completion is no evidence that the
// navigation finished.
func (p *Page) Reload(ctx context.Context, opts ...NavigateOption) (*Response, error) {
	nw, err := p.armNavigationWait(makeNavOptions(opts))
	if err != nil {
		return nil, err
	}
	defer nw.cleanup()
	if err := p.sess.Execute(ctx, page.CommandReload, &page.ReloadParams{}, nil); err != nil {
		return nil, err
	}
	if err := nw.wait(ctx); err != nil {
		return nil, err
	}
	return nw.resolve(), nil
}

// NavigateBack navigates one entry back in the tab's history. When there is
// no previous entry it returns nil, nil without issuing any navigation
// command.
func (p *Page) NavigateBack(ctx context.Context, opts ...NavigateOption) (*Response, error) {
	return p.navigateHistory(ctx, -1, makeNavOptions(opts))
}

// NavigateForward navigates one entry forward in the tab's history. When
// there is no next entry it returns nil, nil without issuing any navigation
// command.
func (p *Page) NavigateForward(ctx context.Context, opts ...NavigateOption) (*Response, error) {
	return p.navigateHistory(ctx, +1, makeNavOptions(opts))
}

func (p *Page) navigateHistory(ctx context.Context, delta int64, o navOptions) (*Response, error) {
	history := new(page.GetNavigationHistoryReturns)
	if err := p.sess.Execute(ctx, page.CommandGetNavigationHistory, &page.GetNavigationHistoryParams{}, history); err != nil {
		return nil, err
	}
	idx := history.CurrentIndex + delta
	if idx < 0 || idx >= int64(len(history.Entries)) {
		return nil, nil
	}
	nw, err := p.armNavigationWait(o)
	if err != nil {
		return nil, err
	}
	defer nw.cleanup()
	params := &page.NavigateToHistoryEntryParams{EntryID: history.Entries[idx].ID}
	if err := p.sess.Execute(ctx, page.CommandNavigateToHistoryEntry, params, nil); err != nil {
		return nil, err
	}
	if err := nw.wait(ctx); err != nil {
		return nil, err
	}
	return nw.resolve(), nil
}

// StopLoading stops all navigation and pending resource retrieval.
func (p *Page) StopLoading(ctx context.Context) error {
	return p.sess.Execute(ctx, page.CommandStopLoading, nil, nil)
}
