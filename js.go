package cdptab

import _ "embed"

// Scripts injected into pages. Each is a named function expression handed
// to evaluationString with its arguments.
var (
	//go:embed js/addPageBinding.js
	addPageBindingJS string

	//go:embed js/deliverResult.js
	deliverResultJS string

	//go:embed js/deliverError.js
	deliverErrorJS string

	//go:embed js/content.js
	contentJS string

	//go:embed js/setContent.js
	setContentJS string

	//go:embed js/clickTarget.js
	clickTargetJS string

	//go:embed js/focus.js
	focusJS string

	//go:embed js/select.js
	selectJS string
)
