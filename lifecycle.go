package cdptab

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
)

// LifecycleCondition names a document load milestone used as a navigation
// wait condition. The names match the protocol's lifecycle event names.
type LifecycleCondition string

// Wait conditions accepted by the navigation operations.
const (
	WaitLoad              LifecycleCondition = "load"
	WaitDOMContentLoaded  LifecycleCondition = "DOMContentLoaded"
	WaitNetworkIdle       LifecycleCondition = "networkIdle"
	WaitNetworkAlmostIdle LifecycleCondition = "networkAlmostIdle"
)

// lifecycleWatcher produces a single completion signal once the watched
// frame's next navigation reaches every requested milestone, or an error if
// the frame is detached mid-navigation. A same-document navigation
// completes the watcher immediately: no new document loads, so there are no
// milestones to wait for.
//
// The watcher owns the listeners it installs; cancel removes them and is
// idempotent. There is no implicit timeout: callers bound the wait with the
// context they pass to wait.
type lifecycleWatcher struct {
	frameID    cdp.FrameID
	conditions []LifecycleCondition

	// loader of the document current when the watcher was armed. Completion
	// requires a new loader, so a stale "load" milestone from the previous
	// document never satisfies the watcher.
	initialLoader cdp.LoaderID

	done         chan struct{}
	err          error
	completeOnce sync.Once
	cancelOnce   sync.Once
	offs         []func()
}

func newLifecycleWatcher(p *Page, f *Frame, conditions []LifecycleCondition) *lifecycleWatcher {
	if len(conditions) == 0 {
		conditions = []LifecycleCondition{WaitLoad}
	}
	w := &lifecycleWatcher{
		frameID:       f.ID(),
		conditions:    conditions,
		initialLoader: f.loader(),
		done:          make(chan struct{}),
	}
	w.offs = []func(){
		p.on(eventLifecycle, w.onLifecycle),
		p.on(eventSameDocNav, w.onSameDocNav),
		p.on(EventFrameDetached, w.onFrameDetached),
	}
	return w
}

func (w *lifecycleWatcher) onLifecycle(v any) {
	f := v.(*Frame)
	if f.ID() != w.frameID {
		return
	}
	if f.loader() == w.initialLoader {
		return
	}
	if f.hasLifecycle(w.conditions...) {
		w.complete(nil)
	}
}

func (w *lifecycleWatcher) onSameDocNav(v any) {
	if f := v.(*Frame); f.ID() == w.frameID {
		w.complete(nil)
	}
}

func (w *lifecycleWatcher) onFrameDetached(v any) {
	if f := v.(*Frame); f.ID() == w.frameID {
		w.complete(&NavigationError{Reason: "navigating frame was detached"})
	}
}

func (w *lifecycleWatcher) complete(err error) {
	w.completeOnce.Do(func() {
		w.err = err
		close(w.done)
	})
}

// wait blocks until the watcher completes, ctx is done, or the page closes.
func (w *lifecycleWatcher) wait(ctx context.Context, closed <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-closed:
		return ErrPageClosed
	case <-w.done:
		return w.err
	}
}

// cancel removes the watcher's listeners. Idempotent.
func (w *lifecycleWatcher) cancel() {
	w.cancelOnce.Do(func() {
		for _, off := range w.offs {
			off()
		}
	})
}
