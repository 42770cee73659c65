package cdptab

import (
	"encoding/json"
	"sync"

	"golang.org/x/exp/slices"
)

// EventKind names one of the page's public events. The payload delivered to
// handlers depends on the kind:
//
//	EventConsole         *ConsoleMessage
//	EventDialog          *Dialog
//	EventError           error (fatal; the page crashed)
//	EventPageError       error (an uncaught exception in page script)
//	EventRequest         *Request
//	EventResponse        *Response
//	EventRequestFailed   *Request
//	EventRequestFinished *Request
//	EventFrameAttached   *Frame
//	EventFrameDetached   *Frame
//	EventFrameNavigated  *Frame
//	EventLoad            nil
//	EventMetrics         *MetricsSample
type EventKind string

// The public event vocabulary.
const (
	EventConsole         EventKind = "console"
	EventDialog          EventKind = "dialog"
	EventError           EventKind = "error"
	EventPageError       EventKind = "pageerror"
	EventRequest         EventKind = "request"
	EventResponse        EventKind = "response"
	EventRequestFailed   EventKind = "requestfailed"
	EventRequestFinished EventKind = "requestfinished"
	EventFrameAttached   EventKind = "frameattached"
	EventFrameDetached   EventKind = "framedetached"
	EventFrameNavigated  EventKind = "framenavigated"
	EventLoad            EventKind = "load"
	EventMetrics         EventKind = "metrics"
)

// Internal bus kinds, never delivered to external handlers.
const (
	eventLifecycle  EventKind = "internal:lifecycle"
	eventSameDocNav EventKind = "internal:samedocnav"
)

// Handler receives one event payload.
type Handler func(v any)

type handlerRef struct {
	kind EventKind
	fn   Handler
}

// emitter is the page's event registry. Handlers run synchronously on the
// session's dispatch goroutine, in registration order.
type emitter struct {
	mu       sync.Mutex
	handlers map[EventKind][]*handlerRef
}

func (e *emitter) on(kind EventKind, fn Handler) (off func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[EventKind][]*handlerRef)
	}
	ref := &handlerRef{kind: kind, fn: fn}
	e.handlers[kind] = append(e.handlers[kind], ref)

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(ref) })
	}
}

func (e *emitter) remove(ref *handlerRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.handlers[ref.kind]
	if i := slices.Index(list, ref); i != -1 {
		e.handlers[ref.kind] = append(list[:i], list[i+1:]...)
	}
}

func (e *emitter) emit(kind EventKind, v any) {
	e.mu.Lock()
	list := slices.Clone(e.handlers[kind])
	e.mu.Unlock()
	for _, ref := range list {
		ref.fn(v)
	}
}

func (e *emitter) listenerCount(kind EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[kind])
}

// ConsoleMessage is an immutable value describing one console API call.
// Args holds the call's argument values, materialized in original call
// order.
type ConsoleMessage struct {
	Kind string
	Text string
	Args []json.RawMessage
}

// MetricsSample is a metrics event payload: the page title and the sampled
// metric values, filtered to the supported metric names.
type MetricsSample struct {
	Title   string
	Metrics map[string]float64
}
