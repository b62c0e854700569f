package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"recipe-realtime/internal/apperr"
	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/observability"
	"recipe-realtime/internal/services"
)

const consumerPrefetch = 16

// ErrDeliveriesClosed is returned when the broker closes the delivery stream.
var ErrDeliveriesClosed = errors.New("rabbitmq: deliveries closed")

// Dispatcher handles one decoded domain event.
type Dispatcher interface {
	Dispatch(ctx context.Context, routingKey string, ev services.DomainEvent) error
}

// Consumer binds a durable queue to the domain event exchange and feeds each
// delivery to a Dispatcher.
type Consumer struct {
	url        string
	exchange   string
	queue      string
	keys       []string
	dispatcher Dispatcher
	timeout    time.Duration
	log        zerolog.Logger
}

// NewConsumer builds a Consumer for the given routing keys. An empty url
// disables consumption.
func NewConsumer(url, exchange, queue string, keys []string, dispatcher Dispatcher, timeout time.Duration) *Consumer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Consumer{
		url:        url,
		exchange:   exchange,
		queue:      queue,
		keys:       keys,
		dispatcher: dispatcher,
		timeout:    timeout,
		log:        logging.With("rabbitmq.consumer"),
	}
}

// Run consumes until ctx is done, reconnecting with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	if c.url == "" {
		c.log.Info().Msg("rabbitmq consumer disabled: empty amqp url")
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	b.MaxInterval = 30 * time.Second

	err := backoff.RetryNotify(func() error {
		err := c.consume(ctx, b.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Dur("retry_in", wait).Msg("rabbitmq consumer reconnecting")
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (c *Consumer) consume(ctx context.Context, connected func()) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, c.exchange); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range c.keys {
		if err := ch.QueueBind(q.Name, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	connected()
	c.log.Info().Str("queue", q.Name).Str("exchange", c.exchange).Int("bindings", len(c.keys)).Msg("rabbitmq consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	if id, ok := d.Headers["x-request-id"].(string); ok && id != "" {
		ctx = logging.ContextWithRequestID(ctx, id)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.HandleDelivery(ctx, d.RoutingKey, d.Body)
	ack, requeue := settle(err, d.Redelivered)
	if ack {
		if err := d.Ack(false); err != nil {
			c.log.Warn().Err(err).Msg("rabbitmq ack failed")
		}
		return
	}

	logging.Ctx(ctx).Warn().Err(err).Str("routing_key", d.RoutingKey).Bool("requeue", requeue).Msg("domain event rejected")
	if err := d.Nack(false, requeue); err != nil {
		c.log.Warn().Err(err).Msg("rabbitmq nack failed")
	}
}

// HandleDelivery decodes a delivery body and dispatches it.
func (c *Consumer) HandleDelivery(ctx context.Context, routingKey string, body []byte) error {
	var ev services.DomainEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		observability.IncAMQPConsumed(routingKey, "malformed")
		return fmt.Errorf("decode %s: %w", routingKey, apperr.ErrValidation)
	}

	if err := c.dispatcher.Dispatch(ctx, routingKey, ev); err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			observability.IncAMQPConsumed(routingKey, "invalid")
		} else {
			observability.IncAMQPConsumed(routingKey, "error")
		}
		return err
	}
	observability.IncAMQPConsumed(routingKey, "ok")
	return nil
}

// settle decides how a delivery is finished. Events that can never succeed
// are dropped. Other failures get one redelivery.
func settle(err error, redelivered bool) (ack bool, requeue bool) {
	if err == nil {
		return true, false
	}
	if errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrNotFound) {
		return false, false
	}
	return false, !redelivered
}
