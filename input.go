package cdptab

import (
	"context"

	"github.com/chromedp/cdproto/input"
)

// clickPoint is the center of a matched element's bounding box, resolved in
// the page.
type clickPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// targetPoint finds the first element matching selector and returns the
// center of its bounding box in viewport coordinates.
func (p *Page) targetPoint(ctx context.Context, selector string) (*clickPoint, error) {
	expression, err := evaluationString(clickTargetJS, selector)
	if err != nil {
		return nil, err
	}
	var pt *clickPoint
	if err := p.Evaluate(ctx, expression, &pt); err != nil {
		return nil, err
	}
	if pt == nil {
		return nil, usagef("no node found for selector: %s", selector)
	}
	return pt, nil
}

func (p *Page) dispatchMouse(ctx context.Context, typ input.MouseType, pt *clickPoint, button input.MouseButton, clickCount int64) error {
	params := &input.DispatchMouseEventParams{
		Type:       typ,
		X:          pt.X,
		Y:          pt.Y,
		Button:     button,
		ClickCount: clickCount,
	}
	return p.sess.Execute(ctx, input.CommandDispatchMouseEvent, params, nil)
}

// Click moves the mouse to the center of the first element matching
// selector and performs a single left click there.
func (p *Page) Click(ctx context.Context, selector string) error {
	pt, err := p.targetPoint(ctx, selector)
	if err != nil {
		return err
	}
	if err := p.dispatchMouse(ctx, input.MouseMoved, pt, input.None, 0); err != nil {
		return err
	}
	if err := p.dispatchMouse(ctx, input.MousePressed, pt, input.Left, 1); err != nil {
		return err
	}
	return p.dispatchMouse(ctx, input.MouseReleased, pt, input.Left, 1)
}

// Hover moves the mouse to the center of the first element matching
// selector without pressing any button.
func (p *Page) Hover(ctx context.Context, selector string) error {
	pt, err := p.targetPoint(ctx, selector)
	if err != nil {
		return err
	}
	return p.dispatchMouse(ctx, input.MouseMoved, pt, input.None, 0)
}

// Focus gives keyboard focus to the first element matching selector.
func (p *Page) Focus(ctx context.Context, selector string) error {
	expression, err := evaluationString(focusJS, selector)
	if err != nil {
		return err
	}
	var focused bool
	if err := p.Evaluate(ctx, expression, &focused); err != nil {
		return err
	}
	if !focused {
		return usagef("no node found for selector: %s", selector)
	}
	return nil
}

// specialKeys maps runes that do not produce text to their DOM key values.
var specialKeys = map[rune]struct {
	key  string
	code string
}{
	'\b': {"Backspace", "Backspace"},
	'\t': {"Tab", "Tab"},
	'\r': {"Enter", "Enter"},
	'\n': {"Enter", "Enter"},
}

// Type focuses the first element matching selector and sends a key event
// per character of text, as if typed on the keyboard. Control characters
// like "\n" produce their key (Enter) rather than text.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	if err := p.Focus(ctx, selector); err != nil {
		return err
	}
	for _, r := range text {
		if err := p.pressKey(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (p *Page) pressKey(ctx context.Context, r rune) error {
	if def, ok := specialKeys[r]; ok {
		down := &input.DispatchKeyEventParams{
			Type: input.KeyRawDown,
			Key:  def.key,
			Code: def.code,
		}
		if def.key == "Enter" {
			// Enter carries the newline as text so inputs receive it.
			down.Type = input.KeyDown
			down.Text = "\r"
			down.UnmodifiedText = "\r"
		}
		if err := p.sess.Execute(ctx, input.CommandDispatchKeyEvent, down, nil); err != nil {
			return err
		}
		up := &input.DispatchKeyEventParams{
			Type: input.KeyUp,
			Key:  def.key,
			Code: def.code,
		}
		return p.sess.Execute(ctx, input.CommandDispatchKeyEvent, up, nil)
	}
	params := &input.DispatchKeyEventParams{
		Type:           input.KeyChar,
		Text:           string(r),
		UnmodifiedText: string(r),
	}
	return p.sess.Execute(ctx, input.CommandDispatchKeyEvent, params, nil)
}

// Select sets the chosen values on the first <select> element matching
// selector, fires its change events, and returns the values that were
// actually selected. Values with no matching option are ignored; for a
// non-multiple select only the first value applies.
func (p *Page) Select(ctx context.Context, selector string, values ...string) ([]string, error) {
	expression, err := evaluationString(selectJS, selector, values)
	if err != nil {
		return nil, err
	}
	var selected []string
	if err := p.Evaluate(ctx, expression, &selected); err != nil {
		return nil, err
	}
	return selected, nil
}
