package engine

import "errors"

var (
	// ErrNotAuthenticated is returned when a create is attempted without a current user.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoPostSelected is returned when a reply is submitted outside the thread view.
	ErrNoPostSelected = errors.New("no post selected")

	// ErrPostNotFound is returned when selecting a post that is not in the loaded list.
	ErrPostNotFound = errors.New("post not found")

	// ErrInvalidInput is returned when a form fails validation. Nothing is sent to the store.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMutationFailed wraps a store error from a create. The form is preserved.
	ErrMutationFailed = errors.New("mutation failed")
)
