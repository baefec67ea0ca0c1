package eventstream

import "errors"

// ErrNilEvent indicates a nil injection event payload was provided to a publisher.
var ErrNilEvent = errors.New("nil injection event")
