package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection and Channel cover the slice of the AMQP client the Client
// uses. Narrowing the surface keeps the dialer injectable, so channel
// establishment races can be exercised in tests without a broker.

type Connection interface {
	Channel() (Channel, error)
	Close() error
	IsClosed() bool
}

type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Cancel(consumer string, noWait bool) error
	Close() error
	IsClosed() bool
}

// DialFunc opens a broker connection for the given AMQP URL.
type DialFunc func(url string) (Connection, error)

// DefaultDial connects with the real AMQP client and sane defaults.
func DefaultDial(url string) (Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: heartbeatInterval,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, err
	}
	return &realConnection{conn: conn}, nil
}

// realConnection adapts *amqp.Connection to the Connection interface.
type realConnection struct {
	conn *amqp.Connection
}

func (c *realConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *realConnection) Close() error   { return c.conn.Close() }
func (c *realConnection) IsClosed() bool { return c.conn.IsClosed() }
