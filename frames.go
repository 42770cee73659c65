package cdptab

import (
	"encoding/json"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
)

// Frame is one frame of the tab's frame tree. Fields are updated from the
// protocol's frame lifecycle events; accessors take a snapshot under the
// frame's lock.
type Frame struct {
	id cdp.FrameID

	mu        sync.Mutex
	parentID  cdp.FrameID
	loaderID  cdp.LoaderID
	url       string
	name      string
	lifecycle map[string]bool
}

func newFrame(id cdp.FrameID) *Frame {
	return &Frame{
		id:        id,
		lifecycle: make(map[string]bool),
	}
}

// ID returns the frame's id.
func (f *Frame) ID() cdp.FrameID {
	return f.id
}

// ParentID returns the id of the frame's parent, or "" for the main frame.
func (f *Frame) ParentID() cdp.FrameID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parentID
}

// URL returns the frame's current document URL.
func (f *Frame) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// Name returns the frame's name attribute, if any.
func (f *Frame) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

func (f *Frame) loader() cdp.LoaderID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaderID
}

// hasLifecycle reports whether every one of the given milestones has fired
// for the frame's current document.
func (f *Frame) hasLifecycle(conds ...LifecycleCondition) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range conds {
		if !f.lifecycle[string(c)] {
			return false
		}
	}
	return true
}

// navigated applies a frameNavigated payload.
func (f *Frame) navigated(cf *cdp.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parentID = cf.ParentID
	f.loaderID = cf.LoaderID
	f.url = cf.URL
	f.name = cf.Name
}

// onFrameAttached handles a frame attach notification, re-emitting it under
// the public vocabulary.
func (p *Page) onFrameAttached(ev *page.EventFrameAttached) {
	f := p.frameByID(ev.FrameID, true)
	f.mu.Lock()
	f.parentID = ev.ParentFrameID
	f.mu.Unlock()
	p.emit(EventFrameAttached, f)
}

// onFrameDetached handles a frame detach notification.
func (p *Page) onFrameDetached(ev *page.EventFrameDetached) {
	p.mu.Lock()
	f := p.frames[ev.FrameID]
	delete(p.frames, ev.FrameID)
	p.mu.Unlock()
	if f == nil {
		return
	}
	p.emit(EventFrameDetached, f)
}

// onFrameNavigated handles a cross-document navigation of a frame. A frame
// with no parent becomes the new main frame.
func (p *Page) onFrameNavigated(ev *page.EventFrameNavigated) {
	f := p.frameByID(ev.Frame.ID, true)
	f.navigated(ev.Frame)
	if ev.Frame.ParentID == "" {
		p.mu.Lock()
		p.mainFrame = ev.Frame.ID
		p.mu.Unlock()
	}
	p.emit(EventFrameNavigated, f)
}

// onNavigatedWithinDocument handles a same-document navigation (anchor
// jumps, history.pushState). No new document loads, so the navigation is
// complete as soon as it is observed.
func (p *Page) onNavigatedWithinDocument(ev *page.EventNavigatedWithinDocument) {
	f := p.frameByID(ev.FrameID, false)
	if f == nil {
		return
	}
	f.mu.Lock()
	f.url = ev.URL
	f.mu.Unlock()
	p.emit(EventFrameNavigated, f)
	p.emit(eventSameDocNav, f)
}

// onLifecycleEvent records a frame lifecycle milestone. The "init" milestone
// marks the start of a new document load and resets the milestone set.
func (p *Page) onLifecycleEvent(ev *page.EventLifecycleEvent) {
	f := p.frameByID(ev.FrameID, true)
	f.mu.Lock()
	if ev.Name == "init" {
		f.loaderID = ev.LoaderID
		f.lifecycle = make(map[string]bool)
	} else {
		f.lifecycle[ev.Name] = true
	}
	f.mu.Unlock()
	p.emit(eventLifecycle, f)
}

// runtimeEvent tracks which execution context belongs to which frame, so
// that results can be delivered back to the context a call originated from.
func (p *Page) runtimeEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventExecutionContextCreated:
		var aux struct {
			FrameID cdp.FrameID
		}
		if len(ev.Context.AuxData) == 0 {
			break
		}
		if err := json.Unmarshal(ev.Context.AuxData, &aux); err != nil {
			p.errf("could not decode executionContextCreated auxData %q: %v", ev.Context.AuxData, err)
			break
		}
		if aux.FrameID != "" {
			p.mu.Lock()
			p.execContexts[aux.FrameID] = ev.Context.ID
			p.mu.Unlock()
		}
	case *runtime.EventExecutionContextDestroyed:
		p.mu.Lock()
		for frameID, ctxID := range p.execContexts {
			if ctxID == ev.ExecutionContextID {
				delete(p.execContexts, frameID)
			}
		}
		p.mu.Unlock()
	case *runtime.EventExecutionContextsCleared:
		p.mu.Lock()
		for frameID := range p.execContexts {
			delete(p.execContexts, frameID)
		}
		p.mu.Unlock()
	}
}

// frameByID returns the frame with the given id, creating a placeholder
// when create is set. Placeholders happen when a frame attaches or starts
// loading before it is ever navigated; the details arrive later.
func (p *Page) frameByID(id cdp.FrameID, create bool) *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.frames[id]
	if f == nil && create {
		f = newFrame(id)
		p.frames[id] = f
	}
	return f
}

// MainFrame returns the tab's current top-level frame, or nil if the frame
// tree has not loaded yet.
func (p *Page) MainFrame() *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[p.mainFrame]
}

// URL returns the main frame's current document URL, or "" if there is no
// main frame.
func (p *Page) URL() string {
	f := p.MainFrame()
	if f == nil {
		return ""
	}
	return f.URL()
}

// seedFrameTree loads the initial frame tree fetched at construction.
func (p *Page) seedFrameTree(tree *page.FrameTree) {
	if tree == nil || tree.Frame == nil {
		return
	}
	f := p.frameByID(tree.Frame.ID, true)
	f.navigated(tree.Frame)
	if tree.Frame.ParentID == "" {
		p.mu.Lock()
		p.mainFrame = tree.Frame.ID
		p.mu.Unlock()
	}
	for _, child := range tree.ChildFrames {
		p.seedFrameTree(child)
	}
}
