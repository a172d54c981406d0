package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when no record matches.
	ErrNotFound = errors.New("article not found")
	// ErrRendererUnavailable is returned when no headless engine is configured.
	ErrRendererUnavailable = errors.New("headless renderer not configured")
	// ErrObjectExists is returned by blob stores instead of overwriting.
	ErrObjectExists = errors.New("object already exists")
	// ErrEmptyPage is returned when no strategy produced any page content.
	ErrEmptyPage = errors.New("empty page")
	// ErrQueueClosed is returned by Dequeue once a closed queue has been drained.
	ErrQueueClosed = errors.New("queue closed")
)

// FetchError wraps any transport, status, timeout or renderer failure.
type FetchError struct {
	URL      string
	Strategy Strategy
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Strategy, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// StoreIOError wraps a storage failure for a single operation.
type StoreIOError struct {
	Op  string
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreIOError) Unwrap() error {
	return e.Err
}

// WrapStoreErr returns nil for nil, passes ErrNotFound through and wraps everything else.
func WrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreIOError{Op: op, Err: err}
}
