// README: RabbitMQ publisher for location events; routing key is the ride key.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"dispatch/internal/modules/location"
)

const (
	publishTimeout = 5 * time.Second
	dialAttempts   = 5
)

var ErrChannelClosed = errors.New("amqp channel not available")

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPPublisher struct {
	mu       sync.RWMutex
	conn     *amqp.Connection
	ch       Channel
	exchange string
	log      *zap.Logger
}

// DialAMQP connects with retry and declares a durable topic exchange.
func DialAMQP(ctx context.Context, url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	delay := time.Second
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			ch, err := conn.Channel()
			if err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("open amqp channel: %w", err)
			}
			p, err := NewAMQPPublisher(ch, exchange, log)
			if err != nil {
				_ = conn.Close()
				return nil, err
			}
			p.conn = conn
			log.Info("amqp connected", zap.String("exchange", exchange), zap.Int("attempt", attempt))
			return p, nil
		}
		lastErr = err
		log.Warn("amqp dial failed", zap.Int("attempt", attempt), zap.Duration("retry_in", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return nil, fmt.Errorf("dial amqp after %d attempts: %w", dialAttempts, lastErr)
}

// NewAMQPPublisher wraps an open channel.
func NewAMQPPublisher(ch Channel, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange, log: log}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, ev location.LocationChanged) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode location event: %w", err)
	}
	p.mu.RLock()
	ch := p.ch
	p.mu.RUnlock()
	if ch == nil {
		return ErrChannelClosed
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    ev.At,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	ch, conn := p.ch, p.conn
	p.ch, p.conn = nil, nil
	p.mu.Unlock()

	var errs []error
	if ch != nil {
		errs = append(errs, ch.Close())
	}
	if conn != nil {
		errs = append(errs, conn.Close())
	}
	return errors.Join(errs...)
}
