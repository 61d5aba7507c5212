// Package telemetry records per-device metrics emitted by a running
// simulation. Records are best effort: the simulation never blocks on, or
// fails because of, the telemetry path.
package telemetry

import "context"

// A Sink consumes metric records.
type Sink interface {
	// LogMetric records one value for a device at a simulated timestamp.
	LogMetric(
		ctx context.Context,
		deviceID uint32,
		timestampNanos uint64,
		value float64,
	) error

	// TotalRecordCount returns the number of records stored so far. It is a
	// diagnostic and may force a flush.
	TotalRecordCount() (int, error)
}
