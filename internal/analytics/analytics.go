// Package analytics delivers tracking events to the platform's event
// collector. Delivery is fire-and-forget: pricing must never fail or block
// because an event could not be recorded.
package analytics

import (
	"context"
	"time"
)

// Event is a single tracking event with a flat property set.
// Supported property value types: string, int, int64, float64, bool,
// time.Duration, decimal.Decimal and []string.
type Event struct {
	Name       string
	At         time.Time
	Properties map[string]any
}

// Sink records tracking events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Nop is a Sink that discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
