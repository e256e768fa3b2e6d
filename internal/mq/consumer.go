package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает полученное сообщение.
type Handler func(ctx context.Context, msg *Message) error

// Consumer читает события из очереди.
type Consumer struct {
	conn        *Connection
	queue       string
	handler     Handler
	logger      *slog.Logger
	resubscribe func() (string, error)
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, queue string, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{conn: conn, queue: queue, handler: handler, logger: logger}
}

// WithResubscribe задаёт повторное объявление очереди после переподключения.
// Временная очередь исчезает вместе с соединением, поэтому fn возвращает имя новой.
func (c *Consumer) WithResubscribe(fn func() (string, error)) *Consumer {
	c.resubscribe = fn
	return c
}

// Run читает сообщения до отмены ctx или ошибки обработчика.
// Сообщения подтверждаются автоматически: очередь наблюдателя временная.
// После разрыва соединения ждёт переподключения и подписывается заново.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe(ctx)
		if err != nil {
			return err
		}

		if err := c.drain(ctx, deliveries); err != nil {
			return err
		}

		c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", c.queue)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}

		if c.resubscribe != nil {
			queue, err := c.resubscribe()
			if err != nil {
				return fmt.Errorf("resubscribe: %w", err)
			}
			c.queue = queue
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	err := c.conn.WithChannel(func(ch *amqp.Channel) error {
		d, err := ch.ConsumeWithContext(ctx,
			c.queue, // queue
			"",      // consumer tag
			true,    // auto-ack
			true,    // exclusive
			false,   // no-local
			false,   // no-wait
			nil,     // args
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", c.queue, err)
		}
		deliveries = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("consumer started", "queue", c.queue)
	return deliveries, nil
}

// drain обрабатывает сообщения, пока канал доставки открыт.
// Возвращает nil, если канал закрылся при живом ctx.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return ctx.Err()
			}
			msg, err := DecodeMessage(raw.Body)
			if err != nil {
				c.logger.Warn("skip malformed message", "queue", c.queue, "error", err)
				continue
			}
			if err := c.handler(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// DecodeMessage разбирает тело AMQP сообщения.
func DecodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}
