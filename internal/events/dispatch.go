package events

import "time"

// DispatchStart is emitted before a synthetic request re-enters the host
// execution pipeline. ID pairs it with the matching DispatchFinish; several
// dispatches belonging to one GraphQL operation may be in flight at once.
type DispatchStart struct {
	ID     int64
	Method string
	Path   string
}

// DispatchFinish is emitted after the pipeline call completes.
type DispatchFinish struct {
	ID       int64
	Method   string
	Path     string
	Status   int
	Err      error
	Duration time.Duration
}
