package cdptab

import (
	"context"

	"github.com/chromedp/cdproto/page"
)

// DialogType identifies the kind of JavaScript dialog a page opened.
type DialogType string

// Dialog types.
const (
	DialogAlert        DialogType = "alert"
	DialogConfirm      DialogType = "confirm"
	DialogPrompt       DialogType = "prompt"
	DialogBeforeUnload DialogType = "beforeunload"
)

// Dialog represents a JavaScript dialog (alert, confirm, prompt, or
// beforeunload) currently blocking the page. The page stays blocked until
// the dialog is handled exactly once with Accept or Dismiss.
type Dialog struct {
	sess Session

	// Type is the dialog kind, or empty if the browser reported an
	// unrecognized kind.
	Type DialogType

	// Message is the text the page passed when opening the dialog.
	Message string

	// DefaultValue is the default prompt text. Empty for non-prompt
	// dialogs.
	DefaultValue string
}

// Accept confirms the dialog. For prompt dialogs promptText is entered as
// the answer; other dialog kinds ignore it.
func (d *Dialog) Accept(ctx context.Context, promptText string) error {
	params := &page.HandleJavaScriptDialogParams{
		Accept:     true,
		PromptText: promptText,
	}
	return d.sess.Execute(ctx, page.CommandHandleJavaScriptDialog, params, nil)
}

// Dismiss cancels the dialog.
func (d *Dialog) Dismiss(ctx context.Context) error {
	params := &page.HandleJavaScriptDialogParams{Accept: false}
	return d.sess.Execute(ctx, page.CommandHandleJavaScriptDialog, params, nil)
}

func dialogTypeOf(t page.DialogType) DialogType {
	switch t {
	case page.DialogTypeAlert:
		return DialogAlert
	case page.DialogTypeConfirm:
		return DialogConfirm
	case page.DialogTypePrompt:
		return DialogPrompt
	case page.DialogTypeBeforeunload:
		return DialogBeforeUnload
	}
	return ""
}

func (p *Page) onDialog(ev *page.EventJavascriptDialogOpening) {
	d := &Dialog{
		sess:         p.sess,
		Type:         dialogTypeOf(ev.Type),
		Message:      ev.Message,
		DefaultValue: ev.DefaultPrompt,
	}
	p.emit(EventDialog, d)
}
