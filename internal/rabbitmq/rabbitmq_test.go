package rabbitmq

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"recipe-realtime/internal/apperr"
	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/mocks"
	"recipe-realtime/internal/services"
)

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("", "realtime_events")

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	assert.NoError(t, p.Publish(context.Background(), "message.sent", map[string]string{"id": "1"}))
	assert.NoError(t, p.Close())
}

type closingPublisher struct {
	*mocks.PublisherMock
}

func (closingPublisher) Close() error { return nil }

func TestPublisherModeUnknown(t *testing.T) {
	p := closingPublisher{new(mocks.PublisherMock)}
	assert.Equal(t, "unknown", PublisherMode(p))
	assert.Empty(t, PublisherNoopReason(p))
}

func TestPublishHeadersCarryRequestID(t *testing.T) {
	assert.Nil(t, publishHeaders(context.Background()))

	ctx := logging.ContextWithRequestID(context.Background(), "req-1")
	headers := publishHeaders(ctx)
	require.NotNil(t, headers)
	assert.Equal(t, "req-1", headers["x-request-id"])
}

func TestHandleDeliveryDispatchesDecodedEvent(t *testing.T) {
	d := new(mocks.DispatcherMock)
	c := NewConsumer("", "domain_events", "realtime.domain_events", services.DomainEventKeys, d, 0)

	want := services.DomainEvent{ActorID: "a", RecipientID: "b", RecipeID: "r", RecipeTitle: "Soup"}
	d.On("Dispatch", mock.Anything, services.EventRecipeLiked, want).Return(nil).Once()

	err := c.HandleDelivery(context.Background(), services.EventRecipeLiked,
		[]byte(`{"actorId":"a","recipientId":"b","recipeId":"r","recipeTitle":"Soup"}`))

	require.NoError(t, err)
	d.AssertExpectations(t)
}

func TestHandleDeliveryMalformedBody(t *testing.T) {
	d := new(mocks.DispatcherMock)
	c := NewConsumer("", "domain_events", "q", nil, d, 0)

	err := c.HandleDelivery(context.Background(), services.EventRecipeLiked, []byte(`{not json`))

	assert.ErrorIs(t, err, apperr.ErrValidation)
	d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDeliveryPassesDispatchError(t *testing.T) {
	d := new(mocks.DispatcherMock)
	c := NewConsumer("", "domain_events", "q", nil, d, 0)
	d.On("Dispatch", mock.Anything, "recipe.unknown", services.DomainEvent{}).
		Return(fmt.Errorf("unknown routing key: %w", apperr.ErrValidation)).Once()

	err := c.HandleDelivery(context.Background(), "recipe.unknown", []byte(`{}`))

	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSettle(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		redelivered bool
		ack         bool
		requeue     bool
	}{
		{"ok", nil, false, true, false},
		{"invalid", fmt.Errorf("x: %w", apperr.ErrValidation), false, false, false},
		{"missing", fmt.Errorf("x: %w", apperr.ErrNotFound), false, false, false},
		{"transient first", assert.AnError, false, false, true},
		{"transient redelivered", assert.AnError, true, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack, requeue := settle(tc.err, tc.redelivered)
			assert.Equal(t, tc.ack, ack)
			assert.Equal(t, tc.requeue, requeue)
		})
	}
}

func TestRunWithoutURLReturnsImmediately(t *testing.T) {
	c := NewConsumer("", "domain_events", "q", nil, new(mocks.DispatcherMock), 0)
	assert.NoError(t, c.Run(context.Background()))
}
