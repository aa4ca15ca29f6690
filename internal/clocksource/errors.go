package clocksource

import "errors"

var (
	// ErrTransport marks a failure to reach the time authority.
	ErrTransport = errors.New("time authority unreachable")
	// ErrParse marks a response from the time authority that could not be used.
	ErrParse = errors.New("malformed time authority response")
	// ErrNeverSynced is returned by Now when no sync has ever succeeded and
	// the forced sync failed too.
	ErrNeverSynced = errors.New("clock never synced")
)
