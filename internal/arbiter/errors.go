package arbiter

import "errors"

var (
	// ErrNotConfigured is returned when a lifecycle operation targets a
	// feature that has no config row.
	ErrNotConfigured = errors.New("feature not configured")

	// ErrNotEnabled is returned by Kill for a locally preferred feature
	// whose desired state is not enabled: killing it is an operator or
	// config error, not a no-op.
	ErrNotEnabled = errors.New("feature not administratively enabled")

	// ErrNoInstance is returned when an operation needs a runtime instance
	// and none is addressable.
	ErrNoInstance = errors.New("no runtime instance for feature")
)
