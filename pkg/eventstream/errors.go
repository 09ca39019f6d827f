package eventstream

import "errors"

// ErrNilTracesEvent indicates a nil traces event payload was provided to a publisher.
var ErrNilTracesEvent = errors.New("nil traces event")
