package cdptab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
)

// bindingSentinel is the reserved first console argument that marks a
// console.debug call as a binding invocation rather than page output.
const bindingSentinel = "driver:page-binding"

// BindingFunc is a Go function exposed to the remote page. It is invoked
// with the call's arguments as raw JSON; its return value is serialized and
// delivered to the matching pending call on the remote side. A returned
// error is delivered as a rejection instead.
type BindingFunc func(args []json.RawMessage) (any, error)

// bindingPayload is the invocation record the remote stub emits over the
// logging channel: binding name, per-name sequence number, argument list.
type bindingPayload struct {
	Name string            `json:"name"`
	Seq  int64             `json:"seq"`
	Args []json.RawMessage `json:"args"`
}

// ExposeFunction installs fn under the given name in the remote page's
// global scope, on the current documents and every future one. Script in
// the page calls it like an async function; the returned promise resolves
// with fn's result.
//
// Names are unique per page: registering a duplicate name fails with a
// UsageError and leaves the first registration intact. Bindings live for
// the page's lifetime; there is no unregister.
//
// The remote promise never resolves if its execution context is destroyed
// before delivery, so remote callers should guard with their own timeout.
func (p *Page) ExposeFunction(ctx context.Context, name string, fn BindingFunc) error {
	p.mu.Lock()
	if _, ok := p.bindings[name]; ok {
		p.mu.Unlock()
		return usagef("failed to add page binding with name %s: window[%q] already exists", name, name)
	}
	p.bindings[name] = fn
	p.mu.Unlock()

	expression, err := evaluationString(addPageBindingJS, name)
	if err != nil {
		return err
	}
	if err := p.EvaluateOnNewDocument(ctx, expression); err != nil {
		return err
	}

	// Install on every current document with a known execution context.
	p.mu.Lock()
	contexts := make([]runtime.ExecutionContextID, 0, len(p.execContexts))
	for _, id := range p.execContexts {
		contexts = append(contexts, id)
	}
	p.mu.Unlock()
	if len(contexts) == 0 {
		// No context tracked yet; evaluate in the default context.
		return p.Evaluate(ctx, expression, nil)
	}
	for _, id := range contexts {
		if err := p.evaluate(ctx, expression, id, nil); err != nil {
			return err
		}
	}
	return nil
}

// isBindingCall reports whether a console API call is a disguised binding
// invocation: a debug-level call whose first argument is the reserved
// sentinel.
func isBindingCall(ev *runtime.EventConsoleAPICalled) bool {
	if ev.Type != runtime.APITypeDebug || len(ev.Args) < 2 {
		return false
	}
	var first string
	if err := json.Unmarshal(ev.Args[0].Value, &first); err != nil {
		return false
	}
	return first == bindingSentinel
}

// handleBindingCall decodes a binding invocation, runs the bound function,
// and injects the delivery script into the execution context the call
// originated from. The delivery is an independent command dispatch, not
// awaited before returning control to the event hub.
//
// A missing binding name is a programming error (a stale bootstrap script
// racing a new controller) and propagates as a failure of the event
// handling path.
func (p *Page) handleBindingCall(ev *runtime.EventConsoleAPICalled) error {
	var encoded string
	if err := json.Unmarshal(ev.Args[1].Value, &encoded); err != nil {
		return fmt.Errorf("could not decode binding payload: %w", err)
	}
	var payload bindingPayload
	if err := json.Unmarshal([]byte(encoded), &payload); err != nil {
		return fmt.Errorf("could not decode binding payload: %w", err)
	}

	p.mu.Lock()
	fn, ok := p.bindings[payload.Name]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no binding registered with name %q", payload.Name)
	}

	result, err := fn(payload.Args)

	var expression string
	if err != nil {
		expression, err = evaluationString(deliverErrorJS, payload.Name, payload.Seq, err.Error())
	} else {
		expression, err = evaluationString(deliverResultJS, payload.Name, payload.Seq, result)
	}
	if err != nil {
		return fmt.Errorf("could not encode binding result for %q: %w", payload.Name, err)
	}

	contextID := ev.ExecutionContextID
	go func() {
		if err := p.evaluate(context.Background(), expression, contextID, nil); err != nil {
			p.errf("could not deliver result to exposed func %s: %v", payload.Name, err)
		}
	}()
	return nil
}
