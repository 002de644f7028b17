// Package errs holds error sentinels shared across transport layers.
package errs

import "errors"

// ErrTransportUnavailable signals that the broadcast channel is down and the
// caller must fall back to polling the store.
var ErrTransportUnavailable = errors.New("transport unavailable")
