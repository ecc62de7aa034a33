// internal/drivers/errors.go
package drivers

import "errors"

var ErrDriverNotFound = errors.New("no driver registered for this connector category")

// ErrTransient wraps vendor/transport failures that the caller should retry
// (connection drop, timeout, 5xx). ErrTerminal wraps failures that require
// operator intervention (invalid/expired credential after refresh, 4xx auth
// rejection). See §7 of the design: transient errors are absorbed by the
// session manager's backoff; terminal errors move the session to Failed.
var (
	ErrTransient = errors.New("transient vendor/transport error")
	ErrTerminal  = errors.New("terminal vendor/transport error")
)
