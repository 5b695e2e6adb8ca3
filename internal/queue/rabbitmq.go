package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	initialRedialWait = time.Second
	maxRedialWait     = 30 * time.Second
	dialTimeout       = 15 * time.Second
)

var errBrokerClosed = errors.New("rabbitmq client closed")

// RabbitMQ keeps one connection and one publishing channel to the broker.
// Both are re-established lazily after a failure; the exchange is declared
// every time a new channel is opened.
type RabbitMQ struct {
	url string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewRabbitMQ(ctx context.Context, url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.channelLocked(dialCtx); err != nil {
		return nil, err
	}
	return r, nil
}

// Healthy reports whether the publishing channel is currently open.
func (r *RabbitMQ) Healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && r.ch != nil && !r.ch.IsClosed()
}

// withChannel runs fn on the shared publishing channel. A channel error is
// returned to the caller and the channel is reopened on the next call.
func (r *RabbitMQ) withChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, err := r.channelLocked(ctx)
	if err != nil {
		return err
	}
	if err := fn(ch); err != nil {
		if ch.IsClosed() {
			r.ch = nil
		}
		return err
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.ch != nil && !r.ch.IsClosed() {
		_ = r.ch.Close()
	}
	r.ch = nil

	conn := r.conn
	r.conn = nil
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func (r *RabbitMQ) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if r.closed {
		return nil, errBrokerClosed
	}
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}

	if r.conn == nil || r.conn.IsClosed() {
		conn, err := dialWithBackoff(ctx, r.url)
		if err != nil {
			return nil, err
		}
		r.conn = conn
	}

	ch, err := r.conn.Channel()
	if err != nil {
		_ = r.conn.Close()
		r.conn = nil
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	r.ch = ch
	return ch, nil
}

func dialWithBackoff(ctx context.Context, url string) (*amqp.Connection, error) {
	wait := initialRedialWait
	for {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq dial canceled after %v: %w", err, ctx.Err())
		case <-time.After(wait):
		}

		wait = min(wait*2, maxRedialWait)
	}
}

func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		ExchangeName,
		exchangeKind,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", ExchangeName, err)
	}
	return nil
}
