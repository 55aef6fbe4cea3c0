package chat

import "errors"

var (
	ErrNotFound     = errors.New("conversation not found")
	ErrBusy         = errors.New("a message is already being processed")
	ErrEmptyMessage = errors.New("message is empty")
	// ErrClosed is returned by a Store whose identity has signed out.
	ErrClosed = errors.New("conversation store is closed")
)
