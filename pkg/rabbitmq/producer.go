/**
 * @description
 * This package provides a producer for publishing interest lifecycle events
 * to RabbitMQ. Downstream alert workers consume these events to start or
 * stop delivering feed results for a subscription.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// InterestEventsExchange is the topic exchange all interest lifecycle events
// are published to.
const InterestEventsExchange = "interest_events"

// Routing keys for interest lifecycle events.
const (
	RoutingKeySubscriptionCreated = "subscription.created"
	RoutingKeyInterestDeleted     = "interest.deleted"
)

// SubscriptionEvent is the payload published when a subscription is created.
type SubscriptionEvent struct {
	SubscriptionID   uuid.UUID `json:"subscription_id"`
	InterestID       uuid.UUID `json:"interest_id"`
	UserID           uuid.UUID `json:"user_id"`
	SubscriptionType string    `json:"subscription_type"`
	InterestIn       string    `json:"interest_in"`
	CreatedAt        time.Time `json:"created_at"`
}

// InterestEvent is the payload published when an interest is deleted along
// with its subscriptions.
type InterestEvent struct {
	InterestID   uuid.UUID `json:"interest_id"`
	UserID       uuid.UUID `json:"user_id"`
	InterestType string    `json:"interest_type"`
	In           string    `json:"in"`
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	PublishSubscriptionCreated(ctx context.Context, event SubscriptionEvent) error
	PublishInterestDeleted(ctx context.Context, event InterestEvent) error
	Close()
}

// EventProducerFallback is a minimal no-op publisher used when RabbitMQ is
// unavailable at startup. Requests still succeed; events are dropped.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" exchange=%s routing_key=%s", exchange, routingKey)
	return nil
}

func (p *EventProducerFallback) PublishSubscriptionCreated(ctx context.Context, event SubscriptionEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"subscription created event publish skipped\" subscription_id=%s", event.SubscriptionID)
	return nil
}

func (p *EventProducerFallback) PublishInterestDeleted(ctx context.Context, event InterestEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"interest deleted event publish skipped\" interest_id=%s", event.InterestID)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// If any stray characters precede the scheme, slice from first occurrence of amqp
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer creates and returns a new EventProducer.
func NewEventProducer(amqpURL string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch}, nil
}

// Publish sends a message to a specific exchange with a routing key.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if err := p.ensureExchange(exchange); err != nil {
		return err
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        jsonBody,
		},
	)
	if err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
		// One-shot retry: reopen channel and try again
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				if exErr := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); exErr == nil {
					err = p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
						ContentType: "application/json",
						Timestamp:   time.Now(),
						Body:        jsonBody,
					})
					if err == nil {
						return nil
					}
				}
			}
		}
		return err
	}
	return nil
}

// ensureExchange declares the durable topic exchange, reopening the channel
// once if the declaration fails on a stale channel.
func (p *EventProducer) ensureExchange(exchange string) error {
	err := p.channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
	if err == nil {
		return nil
	}

	log.Printf("level=warn component=rabbitmq_producer msg=\"exchange declare failed; reopening channel\" exchange=%s err=%v", exchange, err)
	if p.conn == nil {
		return err
	}
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	return p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

// PublishSubscriptionCreated publishes a subscription created event.
func (p *EventProducer) PublishSubscriptionCreated(ctx context.Context, event SubscriptionEvent) error {
	return p.Publish(ctx, InterestEventsExchange, RoutingKeySubscriptionCreated, event)
}

// PublishInterestDeleted publishes an interest deleted event.
func (p *EventProducer) PublishInterestDeleted(ctx context.Context, event InterestEvent) error {
	return p.Publish(ctx, InterestEventsExchange, RoutingKeyInterestDeleted, event)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
