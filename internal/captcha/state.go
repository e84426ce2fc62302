// Package captcha detects and resolves checkbox and coordinate-click
// challenges on pages loaded in a browser session.
package captcha

// State is a step of the challenge state machine.
type State string

// Challenge states. SOLVED, FAILED and TIMEOUT are terminal; NONE is
// reported when no challenge was present.
const (
	StateNone              State = "NONE"
	StateCheckboxDetected  State = "CHECKBOX_DETECTED"
	StateCheckboxClicked   State = "CHECKBOX_CLICKED"
	StateGraphicalDetected State = "GRAPHICAL_DETECTED"
	StateTaskSubmitted     State = "TASK_SUBMITTED"
	StatePolling           State = "POLLING"
	StateSolved            State = "SOLVED"
	StateFailed            State = "FAILED"
	StateTimeout           State = "TIMEOUT"
)

// Outcome is the result of one Resolve call.
type Outcome struct {
	// State is the last state reached.
	State State
	// Trail lists every state visited, in order.
	Trail []State
	// Err explains FAILED and TIMEOUT outcomes.
	Err error
	// TaskID is the solver task, when one was submitted.
	TaskID int64
	// Artifact is the URI of the failure screenshot, if one was stored.
	Artifact string
}

// Cleared reports whether the page is believed to be free of a challenge.
func (o Outcome) Cleared() bool {
	return o.State == StateNone || o.State == StateSolved
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trail = append(o.Trail, s)
}
