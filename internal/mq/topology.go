package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange — topic exchange событий flow.
const DefaultExchange = "bpmnflow.events"

// DeclareExchange объявляет durable topic exchange.
func DeclareExchange(conn *Connection, exchange string) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			exchange, // name
			"topic",  // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
		return nil
	})
}

// DeclareTailQueue объявляет временную эксклюзивную очередь,
// привязанную к exchange по шаблону pattern ("#" — все события).
func DeclareTailQueue(conn *Connection, exchange, pattern string) (string, error) {
	if pattern == "" {
		pattern = "#"
	}

	var name string
	err := conn.WithChannel(func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // name (генерирует сервер)
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare tail queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, pattern, exchange, false, nil); err != nil {
			return fmt.Errorf("bind tail queue to %s: %w", exchange, err)
		}
		name = q.Name
		return nil
	})
	return name, err
}
