package connection

import "errors"

// ErrConnectionClosed is returned by operations on a connection after Close.
var ErrConnectionClosed = errors.New("connection closed")
