package cdptab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
)

// Evaluate evaluates the JavaScript expression in the main frame,
// unmarshaling the result into res.
//
// When res is nil, the result is ignored. When res is a *[]byte, the raw
// JSON-encoded value of the result is placed in res. For all other cases
// the result is returned by value and json.Unmarshal-ed into res; an
// "undefined" result is an error then.
//
// An exception thrown by the expression is returned as an error.
func (p *Page) Evaluate(ctx context.Context, expression string, res any) error {
	return p.evaluate(ctx, expression, 0, res)
}

func (p *Page) evaluate(ctx context.Context, expression string, contextID runtime.ExecutionContextID, res any) error {
	params := &runtime.EvaluateParams{
		Expression:    expression,
		ContextID:     contextID,
		ReturnByValue: true,
		AwaitPromise:  true,
	}
	ret := new(runtime.EvaluateReturns)
	if err := p.sess.Execute(ctx, runtime.CommandEvaluate, params, ret); err != nil {
		return err
	}
	if ret.ExceptionDetails != nil {
		return exceptionError(ret.ExceptionDetails)
	}
	return parseRemoteObject(ret.Result, res)
}

// EvaluateOnNewDocument registers a script to evaluate on every future
// document of the tab, before any of the document's own scripts run.
func (p *Page) EvaluateOnNewDocument(ctx context.Context, source string) error {
	params := &page.AddScriptToEvaluateOnNewDocumentParams{Source: source}
	res := new(page.AddScriptToEvaluateOnNewDocumentReturns)
	return p.sess.Execute(ctx, page.CommandAddScriptToEvaluateOnNewDocument, params, res)
}

func parseRemoteObject(v *runtime.RemoteObject, res any) error {
	if res == nil || v == nil {
		return nil
	}
	if x, ok := res.(*[]byte); ok {
		*x = v.Value
		return nil
	}
	if v.Type == "undefined" {
		// The unmarshal below would fail with a cryptic "unexpected end
		// of JSON input", so give a better error here.
		return fmt.Errorf("encountered an undefined value")
	}
	return json.Unmarshal(v.Value, res)
}

// evaluationString builds the expression that calls fn with the given
// arguments, each JSON-encoded in place.
func evaluationString(fn string, args ...any) (string, error) {
	encoded := make([]string, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return "", err
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf("(%s)(%s)", fn, strings.Join(encoded, ", ")), nil
}

// valueFromRemoteObject materializes a remote object as a JSON value as of
// a snapshot. Values the protocol cannot serialize (NaN, infinities,
// negative zero) and handle-only objects fall back to their description.
func valueFromRemoteObject(obj *runtime.RemoteObject) json.RawMessage {
	if obj == nil {
		return json.RawMessage("null")
	}
	if obj.UnserializableValue != "" {
		quoted, _ := json.Marshal(string(obj.UnserializableValue))
		return quoted
	}
	if len(obj.Value) > 0 {
		return json.RawMessage(obj.Value)
	}
	quoted, _ := json.Marshal(obj.Description)
	return quoted
}

// remoteObjectText renders one console argument for the message text.
func remoteObjectText(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}
	if len(obj.Value) > 0 {
		var s string
		if err := json.Unmarshal(obj.Value, &s); err == nil {
			return s
		}
		return string(obj.Value)
	}
	return obj.Description
}

// exceptionError translates exception details into the error emitted as a
// pageerror event or returned from an evaluation.
func exceptionError(details *runtime.ExceptionDetails) error {
	if details == nil {
		return nil
	}
	msg := details.Text
	if details.Exception != nil && details.Exception.Description != "" {
		msg = details.Exception.Description
	}
	if details.URL != "" {
		msg = fmt.Sprintf("%s (%s:%d:%d)", msg, details.URL, details.LineNumber, details.ColumnNumber)
	}
	return fmt.Errorf("%s", msg)
}
