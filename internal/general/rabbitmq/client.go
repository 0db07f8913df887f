package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleettrack/internal/general/config"
	"fleettrack/internal/general/contracts"
	"fleettrack/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	heartbeatInterval = 10 * time.Second
	dialTimeout       = 30 * time.Second
)

// amqpPreconditionFailed is the reply code RabbitMQ returns when a queue
// is re-declared with different parameters.
const amqpPreconditionFailed = 406

// Client owns the broker connection and the shared publishing channel.
// It is constructed explicitly, injected into the dispatch subsystem, and
// closed by the same owner; it is never referenced as ambient package state.
//
// The connection and channel are established lazily on first use and then
// reused; establishment races between concurrent publishers are serialized
// through mu so exactly one connection/channel ever exists, with the losers
// of the race reusing it.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context // context for logging (without cancel)
	dial   DialFunc

	mu          sync.RWMutex
	conn        Connection
	pubChan     Channel
	pubConfirms chan amqp.Confirmation

	pubMu sync.Mutex // serializes publish+confirm pairs

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient builds a client for the configured broker. No I/O happens
// here; the first publish or consume dials the broker.
func NewClient(ctx context.Context, cfg *config.Config, logger *logger.Logger) *Client {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
	return &Client{
		url:    url,
		logger: logger,
		logCtx: context.WithoutCancel(ctx), // keep logging alive across request cancels
		dial:   DefaultDial,
		closed: make(chan struct{}),
	}
}

// NewClientWithDial is NewClient with an injected dialer; used by tests.
func NewClientWithDial(ctx context.Context, url string, logger *logger.Logger, dial DialFunc) *Client {
	return &Client{
		url:    url,
		logger: logger,
		logCtx: context.WithoutCancel(ctx),
		dial:   dial,
		closed: make(chan struct{}),
	}
}

// Connect eagerly establishes the connection and topology. Optional:
// publishing dials lazily, but startup code may prefer failing fast.
func (client *Client) Connect() error {
	_, _, err := client.ensureChannel()
	return err
}

// Close shuts the channel and connection down. Safe to call more than
// once.
func (client *Client) Close() {
	client.closeOnce.Do(func() {
		close(client.closed)

		client.mu.Lock()
		if client.pubChan != nil && !client.pubChan.IsClosed() {
			_ = client.pubChan.Close()
		}
		client.pubChan = nil
		client.pubConfirms = nil
		if client.conn != nil && !client.conn.IsClosed() {
			_ = client.conn.Close()
		}
		client.conn = nil
		client.mu.Unlock()
	})
}

// ensureChannel returns the shared publishing channel, establishing the
// connection, channel, topology, and confirm mode on first use. The
// double-checked lock guarantees concurrent first callers create exactly
// one channel.
func (client *Client) ensureChannel() (Channel, chan amqp.Confirmation, error) {
	select {
	case <-client.closed:
		return nil, nil, errors.New("rabbitmq: client is closed")
	default:
	}

	// fast path: channel already established and healthy
	client.mu.RLock()
	ch, confirms := client.pubChan, client.pubConfirms
	client.mu.RUnlock()
	if ch != nil && !ch.IsClosed() {
		return ch, confirms, nil
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	// another caller may have won the race while we waited on the lock
	if client.pubChan != nil && !client.pubChan.IsClosed() {
		return client.pubChan, client.pubConfirms, nil
	}

	if err := client.connectLocked(); err != nil {
		return nil, nil, err
	}
	return client.pubChan, client.pubConfirms, nil
}

// connectLocked dials, opens the channel, declares topology, and enables
// confirms. Caller holds mu.
func (client *Client) connectLocked() error {
	if client.conn == nil || client.conn.IsClosed() {
		conn, err := client.dial(client.url)
		if err != nil {
			client.logger.Error(client.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
			return fmt.Errorf("rabbitmq dial failed: %w", err)
		}
		client.conn = conn
	}

	ch, err := client.conn.Channel()
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_open_channel_failed", "Failed to open RabbitMQ channel", err, nil)
		return fmt.Errorf("rabbitmq: failed to open channel: %w", err)
	}

	ch, err = client.declareTopology(ch)
	if err != nil {
		return err
	}

	// enable publisher confirms on the publishing channel
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		client.logger.Error(client.logCtx, "rabbitmq_enable_confirms_failed", "Failed to enable publisher confirms", err, nil)
		return fmt.Errorf("rabbitmq: failed to enable confirms: %w", err)
	}

	client.pubChan = ch
	client.pubConfirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connection established and topology declared", nil)
	return nil
}

// declareTopology declares the durable queues. QueueDeclare is idempotent
// for matching parameters, so calling it redundantly is safe without a
// check-then-act sequence. A declare conflict (an existing queue
// with different parameters, reply code 406) is classified separately from
// connectivity failures: the existing topology is reused with a warning
// rather than failing the dispatch path. The broker closes the channel on
// a 406, so the conflicted channel is replaced before moving on; the
// (possibly replaced) working channel is returned. Caller holds mu.
func (client *Client) declareTopology(ch Channel) (Channel, error) {
	queues := []string{
		contracts.QueueDeviceCommands,
		contracts.QueueDeviceCommandAcks,
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(q, true, false, false, false, nil)
		if err == nil {
			continue
		}
		if !isPreconditionFailed(err) {
			_ = ch.Close()
			client.logger.Error(client.logCtx, "rabbitmq_declare_queue_failed", "Failed to declare queue", err, map[string]any{"queue": q})
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}

		client.logger.Warn(client.logCtx, "rabbitmq_queue_params_mismatch",
			"Queue already exists with different parameters; reusing existing topology",
			map[string]any{"queue": q})

		// the broker killed the channel with the 406; open a fresh one
		fresh, chErr := client.conn.Channel()
		if chErr != nil {
			return nil, fmt.Errorf("rabbitmq: reopen channel after declare conflict: %w", chErr)
		}
		ch = fresh
	}
	return ch, nil
}

// isPreconditionFailed reports whether err is an AMQP 406 declare
// conflict.
func isPreconditionFailed(err error) bool {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Code == amqpPreconditionFailed
	}
	return false
}
