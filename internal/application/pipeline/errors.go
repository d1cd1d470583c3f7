package pipeline

import "errors"

var (
	// ErrBusy rejects a trigger while another stage of the same session is in flight.
	ErrBusy = errors.New("session busy: another operation is in progress")

	// ErrStaleSession is returned to a caller whose completion arrived after
	// the session was reset or its media replaced. The outcome was discarded.
	ErrStaleSession = errors.New("session changed while the operation was running")

	// ErrInvalidTransition means the trigger is not valid from the current state.
	ErrInvalidTransition = errors.New("operation not allowed in current state")

	// ErrPromptRequired rejects a custom analysis without a prompt.
	ErrPromptRequired = errors.New("custom analysis requires a prompt")
)
