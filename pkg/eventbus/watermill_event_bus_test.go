package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/channels/gochannel"
	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
)

func TestWatermillEventBus_PublishSubscribeRoundTrip(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	received := make(chan *events.StepCompleted, 1)

	err = bus.Handle(events.StepCompletedEvent, func(_ context.Context, event any) error {
		completed, ok := event.(*events.StepCompleted)
		if ok {
			received <- completed
		}

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.StepCompleted{
		BaseEvent: events.NewBaseEvent(events.StepCompletedEvent, "exec-1", "wf-1", "user-1"),
		StepID:    "s1",
		StepName:  "Inspect welds",
	}

	require.NoError(t, bus.Publish(ctx, "exec-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, "s1", got.StepID)
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, events.StepCompletedEvent, got.GetType())
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	assert.NotEmpty(t, bus.GenerateID())
	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
