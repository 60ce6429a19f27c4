package automation

import "errors"

var (
	// ErrNotFound means no resolution strategy produced a visible, enabled element.
	ErrNotFound = errors.New("element not found")
	// ErrActionFailed means every interaction method failed in every round.
	ErrActionFailed = errors.New("action failed")
	// ErrStructural means the page layout the workflow depends on was not rendered.
	ErrStructural = errors.New("unexpected page structure")
)
