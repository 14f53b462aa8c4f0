package eventbus

import "errors"

// ErrShutdownTimeout is returned when Shutdown's context expires before all
// subscribers have closed their done channels.
var ErrShutdownTimeout = errors.New("eventbus: context timeout or cancelled before all subscribers exited")
