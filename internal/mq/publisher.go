package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventType — тип события flow.
type EventType string

// Типы событий.
const (
	EventFlowStarted   EventType = "flow.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
	EventFlowDeclined  EventType = "flow.declined"
	EventFlowEnded     EventType = "flow.ended"
)

// Event — событие жизненного цикла flow.
type Event struct {
	Type     EventType `json:"type"`
	RunID    string    `json:"run_id"`
	Flow     string    `json:"flow"`
	Instance string    `json:"instance,omitempty"`
	StepID   string    `json:"step_id,omitempty"`
	StepName string    `json:"step_name,omitempty"`
	Step     int       `json:"step,omitempty"`
	Result   string    `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Message — конверт публикуемого сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage упаковывает событие в конверт.
func NewMessage(ev Event, now time.Time) (*Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      ev.Type,
		Payload:   payload,
		Timestamp: now.UTC(),
	}, nil
}

// Event распаковывает событие из конверта.
func (m *Message) Event() (Event, error) {
	var ev Event
	if err := json.Unmarshal(m.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

// Publisher публикует события в topic exchange.
type Publisher struct {
	conn     *Connection
	exchange string
	logger   *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, exchange string, logger *slog.Logger) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Publisher{conn: conn, exchange: exchange, logger: logger}
}

// PublishEvent публикует событие с routing key, равным его типу.
func (p *Publisher) PublishEvent(ctx context.Context, ev Event) error {
	msg, err := NewMessage(ev, time.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx,
			p.exchange,      // exchange
			string(ev.Type), // routing key
			false,           // mandatory
			false,           // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", ev.Type, err)
		}

		p.logger.Debug("published event",
			"exchange", p.exchange,
			"type", ev.Type,
			"message_id", msg.ID,
			"run_id", ev.RunID,
		)
		return nil
	})
}

// Close закрывает соединение издателя.
func (p *Publisher) Close() error {
	return p.conn.Close()
}
