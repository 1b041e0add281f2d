// Package producer publishes domain events to a message broker.
package producer

import (
	"union-registry/backend/internal/telemetry"
)

// Producer emits domain events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	telemetry.EventEmitter
	// Close flushes and releases resources. Safe to call if already closed.
	Close() error
}
