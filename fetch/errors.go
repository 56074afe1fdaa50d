package fetch

import (
	"errors"
	"fmt"
)

// ErrConnection indicates a transport-level failure such as a refused
// connection or a timeout. Callers back off before moving to the next item.
type ErrConnection struct {
	URL string
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection to %s: %w", e.URL, e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrHTTP indicates a response with an error status.
type ErrHTTP struct {
	URL        string
	StatusCode int
	Err        error
}

func (e ErrHTTP) Error() string {
	return fmt.Errorf("http status %d for %s: %w", e.StatusCode, e.URL, e.Err).Error()
}

func (e ErrHTTP) Unwrap() error {
	return e.Err
}

// ErrRedirect indicates the site redirected the request elsewhere, which
// is how it reports a non-existent book or category page.
type ErrRedirect struct {
	From string
	To   string
}

func (e ErrRedirect) Error() string {
	return fmt.Sprintf("redirected from %s to %s", e.From, e.To)
}

// IsConnection reports whether err is a connection failure.
func IsConnection(err error) bool {
	var conn ErrConnection
	return errors.As(err, &conn)
}

// IsHTTP reports whether err is an error status response.
func IsHTTP(err error) bool {
	var status ErrHTTP
	return errors.As(err, &status)
}

// IsRedirect reports whether err came from the redirect check.
func IsRedirect(err error) bool {
	var redirect ErrRedirect
	return errors.As(err, &redirect)
}
