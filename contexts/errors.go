package contexts

import "errors"

// ErrContextNotFound is returned when no context is registered under the
// requested identifier.
var ErrContextNotFound = errors.New("context not found")
