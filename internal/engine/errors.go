package engine

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInput marks a malformed domain or subdomain value.
	ErrInput = errors.New("invalid input")
	// ErrHTTPStatus marks a response with a status other than 200.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrTransport marks a request that never produced a response, timeouts included.
	ErrTransport = errors.New("transport failure")
	// ErrNotFound marks a page that lacks the expected content.
	ErrNotFound = errors.New("not found")
	// ErrProcess marks a zone transfer that failed or could not be started.
	ErrProcess = errors.New("zone transfer process failed")
)

// FetchError describes a failed lookup against the discovery service.
// errors.Is matches both its Kind and the underlying cause.
type FetchError struct {
	Kind       error
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == ErrHTTPStatus:
		return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Canceller is an explicit, sticky cancellation handle for one scan. Once
// Cancel is called it stays raised until Reset. A nil Canceller is never
// cancelled.
type Canceller struct {
	mu   sync.Mutex
	done chan struct{}
}

// NewCanceller returns a lowered handle.
func NewCanceller() *Canceller {
	return &Canceller{done: make(chan struct{})}
}

// Done returns a channel that is closed while the handle is raised.
func (c *Canceller) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		c.done = make(chan struct{})
	}
	return c.done
}

func (c *Canceller) Cancel() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		c.done = make(chan struct{})
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Canceller) Cancelled() bool {
	if c == nil {
		return false
	}
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

// Reset lowers the handle before it is reused for a new scan.
func (c *Canceller) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		c.done = make(chan struct{})
	default:
	}
}
