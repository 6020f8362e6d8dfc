package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishDeliversInOrder(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var order []int
	bus.Subscribe(MessageCreate, func(ctx context.Context, e *Event) error {
		order = append(order, 1)
		return nil
	})
	bus.Subscribe(MessageCreate, func(ctx context.Context, e *Event) error {
		order = append(order, 2)
		return nil
	})

	bus.Publish(ctx, &Event{Name: MessageCreate})

	assert.Equal(t, []int{1, 2}, order)
}

func TestBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	called := false
	bus.Subscribe(MemberJoin, func(ctx context.Context, e *Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(MemberJoin, func(ctx context.Context, e *Event) error {
		called = true
		return nil
	})

	bus.Publish(ctx, &Event{Name: MemberJoin})

	assert.True(t, called)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	count := 0
	unsub := bus.Subscribe(ReactionAdd, func(ctx context.Context, e *Event) error {
		count++
		return nil
	})

	bus.Publish(ctx, &Event{Name: ReactionAdd})
	unsub()
	bus.Publish(ctx, &Event{Name: ReactionAdd})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, bus.SubscriberCount(ReactionAdd))
}

func TestBus_PublishAssignsIDAndTimestamp(t *testing.T) {
	bus := NewBus()

	var got *Event
	bus.Subscribe(MemberLeave, func(ctx context.Context, e *Event) error {
		got = e
		return nil
	})

	bus.Publish(context.Background(), &Event{Name: MemberLeave})

	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus()
	// Publishing with no subscribers must not panic.
	bus.Publish(context.Background(), &Event{Name: VoiceJoin})
}
