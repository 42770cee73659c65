package cdptab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
)

func TestLifecycleWatcherWaitsForAllConditions(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)
	w := newLifecycleWatcher(p, p.MainFrame(), []LifecycleCondition{WaitLoad, WaitNetworkIdle})
	defer w.cancel()

	s.emit(&page.EventLifecycleEvent{FrameID: "F1", LoaderID: "L2", Name: "init"})
	s.emit(&page.EventLifecycleEvent{FrameID: "F1", Name: "load"})

	select {
	case <-w.done:
		t.Fatal("watcher completed before networkIdle")
	default:
	}

	s.emit(&page.EventLifecycleEvent{FrameID: "F1", Name: "networkIdle"})
	require.NoError(t, w.wait(context.Background(), p.closed))
}

func TestLifecycleWatcherIgnoresOtherFrames(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)
	w := newLifecycleWatcher(p, p.MainFrame(), nil)
	defer w.cancel()

	s.emit(&page.EventFrameAttached{FrameID: "F2", ParentFrameID: "F1"})
	s.emit(&page.EventLifecycleEvent{FrameID: "F2", LoaderID: "L9", Name: "init"})
	s.emit(&page.EventLifecycleEvent{FrameID: "F2", Name: "load"})

	select {
	case <-w.done:
		t.Fatal("watcher completed on a subframe's milestones")
	default:
	}
}

func TestLifecycleWatcherFrameDetached(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)
	w := newLifecycleWatcher(p, p.MainFrame(), nil)
	defer w.cancel()

	s.emit(&page.EventFrameDetached{FrameID: "F1"})

	err := w.wait(context.Background(), p.closed)
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Contains(t, navErr.Reason, "detached")
}

func TestLifecycleWatcherPageClosed(t *testing.T) {
	t.Parallel()

	p, _ := newTestPage(t)
	w := newLifecycleWatcher(p, p.MainFrame(), nil)
	defer w.cancel()

	require.NoError(t, p.Close())
	err := w.wait(context.Background(), p.closed)
	assert.ErrorIs(t, err, ErrPageClosed)
}

func TestLifecycleWatcherCancelIdempotent(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)
	w := newLifecycleWatcher(p, p.MainFrame(), nil)

	w.cancel()
	w.cancel()

	// A completed navigation after cancel must not reach the watcher.
	s.emit(&page.EventLifecycleEvent{FrameID: "F1", LoaderID: "L2", Name: "init"})
	s.emit(&page.EventLifecycleEvent{FrameID: "F1", Name: "load"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.wait(ctx, p.closed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFrameTracking(t *testing.T) {
	t.Parallel()

	p, s := newTestPage(t)

	var attached, detached *Frame
	p.On(EventFrameAttached, func(v any) { attached = v.(*Frame) })
	p.On(EventFrameDetached, func(v any) { detached = v.(*Frame) })

	s.emit(&page.EventFrameAttached{FrameID: "F2", ParentFrameID: "F1"})
	require.NotNil(t, attached)
	assert.Equal(t, cdp.FrameID("F2"), attached.ID())
	assert.Equal(t, cdp.FrameID("F1"), attached.ParentID())

	s.emit(&page.EventFrameNavigated{
		Frame: &cdp.Frame{ID: "F2", ParentID: "F1", LoaderID: "L5", URL: "https://example.com/frame", Name: "inner"},
	})
	assert.Equal(t, "https://example.com/frame", attached.URL())
	assert.Equal(t, "inner", attached.Name())
	// A subframe navigation never steals the main frame.
	assert.Equal(t, cdp.FrameID("F1"), p.MainFrame().ID())

	s.emit(&page.EventFrameDetached{FrameID: "F2"})
	require.NotNil(t, detached)
	assert.Equal(t, cdp.FrameID("F2"), detached.ID())

	// Detaching an unknown frame is a no-op.
	detached = nil
	s.emit(&page.EventFrameDetached{FrameID: "F404"})
	assert.Nil(t, detached)
}
