package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleettrack/internal/domain/command"
	"fleettrack/internal/general/contracts"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/metrics"
	"fleettrack/internal/general/rabbitmq"
	"fleettrack/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ackConsumerTag = "fleettrackd-acks"
	ackPrefetch    = 16
	reconnectDelay = 5 * time.Second
)

// AckConsumer applies worker-reported delivery outcomes from the ack
// queue to the command rows.
type AckConsumer struct {
	logger   *logger.Logger
	client   *rabbitmq.Client
	commands ports.CommandRepository
}

// NewAckConsumer constructs the consumer.
func NewAckConsumer(log *logger.Logger, client *rabbitmq.Client, commands ports.CommandRepository) *AckConsumer {
	return &AckConsumer{logger: log, client: client, commands: commands}
}

// Run consumes the ack queue until ctx is cancelled, reconnecting with a
// flat delay when the channel dies.
func (consumer *AckConsumer) Run(ctx context.Context) {
	for {
		err := consumer.client.Consume(ctx, contracts.QueueDeviceCommandAcks, ackConsumerTag, ackPrefetch, consumer.handle)
		if ctx.Err() != nil {
			return
		}
		consumer.logger.Error(ctx, "ack_consumer_stopped", "Ack consumer stopped, reconnecting", err, nil)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// handle applies one worker acknowledgement. A malformed message is an
// error; the delivery is dropped rather than requeued.
func (consumer *AckConsumer) handle(ctx context.Context, d amqp.Delivery) error {
	var msg contracts.CommandAckMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		consumer.logger.Error(ctx, "ack_decode_failed", "Dropping malformed ack message", err, nil)
		return fmt.Errorf("decode ack: %w", err)
	}

	status, err := command.ParseStatus(msg.Status)
	if err != nil || (status != command.StatusAcknowledged && status != command.StatusFailed) {
		consumer.logger.Error(ctx, "ack_invalid_status", "Dropping ack with unusable status", err, map[string]any{
			"command_id": msg.CommandID,
			"status":     msg.Status,
		})
		return fmt.Errorf("unusable ack status %q", msg.Status)
	}

	applied, err := consumer.commands.ApplyAck(ctx, msg.CommandID, status, time.Now().UTC())
	if err != nil {
		consumer.logger.Error(ctx, "ack_apply_failed", "Failed to apply worker outcome", err, map[string]any{
			"command_id": msg.CommandID,
		})
		return err
	}
	if !applied {
		// redelivery of an outcome already applied
		consumer.logger.Debug(ctx, "ack_duplicate", "Ack for already-terminal command ignored", map[string]any{
			"command_id": msg.CommandID,
			"status":     status.String(),
		})
		return nil
	}

	metrics.CommandAcks.WithLabelValues(status.String()).Inc()
	consumer.logger.Info(ctx, "ack_applied", "Worker outcome applied to command", map[string]any{
		"command_id":     msg.CommandID,
		"status":         status.String(),
		"reason":         msg.Reason,
		"correlation_id": msg.CorrelationID,
	})
	return nil
}
