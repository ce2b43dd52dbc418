// Package eventbus provides the outbound channel execution events are
// published on. The controller treats it as fire-and-forget: publish
// failures are logged by the caller and never fail the originating
// operation.
package eventbus

import (
	"context"

	"github.com/stepline/stepline/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
