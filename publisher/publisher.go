// Package publisher provides the user-facing publish entry points: wrap a
// raw payload into a fresh EventContext and hand it to the bus. It holds no
// state of its own beyond a reference to the bus it publishes through.
package publisher

import (
	"context"
	"time"

	"github.com/xraph/eventbus/bus"
	"github.com/xraph/eventbus/core"
)

// Publisher is a thin, stateless wrapper around *bus.Bus. Its only purpose
// is constructing fresh EventContext values so call sites never build one
// by hand.
type Publisher struct {
	Bus *bus.Bus
}

// New wraps b in a Publisher.
func New(b *bus.Bus) *Publisher {
	return &Publisher{Bus: b}
}

// Publish wraps payload into a fresh, uncorrelated EventContext[T] and
// publishes it, returning the transport's scheduled marker when scheduled is
// non-nil.
func Publish[T any](ctx context.Context, p *Publisher, payload T, scheduled *time.Time) (string, error) {
	return bus.Publish(ctx, p.Bus, core.New(payload), scheduled)
}

// PublishBatch wraps every payload into its own fresh EventContext[T] and
// publishes the batch in one call via the transport's native batch API.
// When scheduled is non-nil, each payload is published individually instead
// (the pipeline only supports scheduling on single-message publish).
func PublishBatch[T any](ctx context.Context, p *Publisher, payloads []T, scheduled *time.Time) ([]string, error) {
	if scheduled != nil {
		markers := make([]string, len(payloads))
		for i, payload := range payloads {
			marker, err := Publish(ctx, p, payload, scheduled)
			if err != nil {
				return markers, err
			}
			markers[i] = marker
		}
		return markers, nil
	}

	ecs := make([]*core.EventContext[T], len(payloads))
	for i, payload := range payloads {
		ecs[i] = core.New(payload)
	}
	return bus.PublishMany(ctx, p.Bus, ecs)
}

// Cancel cancels a previously scheduled publish of T by its marker.
func Cancel[T any](ctx context.Context, p *Publisher, marker string) error {
	return bus.Cancel[T](ctx, p.Bus, marker)
}
