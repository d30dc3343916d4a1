package events

import "time"

// Fragment labels for schema build events.
const (
	FragmentAPI    = "api"
	FragmentTenant = "tenant"
)

// SchemaBuildStart is emitted when a stale or missing fragment starts
// rebuilding. Cache hits do not emit build events.
type SchemaBuildStart struct {
	Fragment string
	Tenant   string
}

// SchemaBuildFinish is emitted when a fragment rebuild completes.
type SchemaBuildFinish struct {
	Fragment string
	Tenant   string
	Fields   int
	Err      error
	Duration time.Duration
}
