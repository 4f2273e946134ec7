package warden

import "time"

// Connectivity is the global cluster-connectivity record. It is maintained by
// an external agent and read-only to the lifecycle core; a missing record
// reads as disconnected, which biases arbitration toward local fallback.
type Connectivity struct {
	Connected bool
	UpdatedAt time.Time
}
