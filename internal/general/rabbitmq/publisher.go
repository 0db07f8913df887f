package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleettrack/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout     = 5 * time.Second
	confirmDrainWindow = 2 * time.Second
)

// PublishCommand marshals the command message and publishes it to the
// durable device_commands queue with persistent delivery. The call blocks
// until the broker confirms the publish, so a nil return really means the
// message is on durable storage.
func (client *Client) PublishCommand(ctx context.Context, msg contracts.CommandMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode command message: %w", err)
	}
	return client.publish(ctx, contracts.QueueDeviceCommands, body)
}

// publish sends body to the named queue (default exchange) and waits for
// the publisher confirm.
func (client *Client) publish(ctx context.Context, queue string, body []byte) error {
	ch, confirms, err := client.ensureChannel()
	if err != nil {
		return err
	}

	// serialize publish+confirm pairs so each confirm is matched to its
	// own publish
	client.pubMu.Lock()
	defer client.pubMu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishTimeout)
		defer cancel()
	}

	if err := ch.PublishWithContext(ctx, "", queue, false /* mandatory */, false, /* immediate */
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("rabbitmq: publish to %s: %w", queue, err)
	}

	select {
	case c, ok := <-confirms:
		if !ok {
			return fmt.Errorf("rabbitmq: confirm channel closed")
		}
		if !c.Ack {
			return fmt.Errorf("rabbitmq: publish not acknowledged")
		}
	case <-ctx.Done():
		// keep the confirm stream aligned: try to consume exactly one
		// confirm even if we return a timeout to the caller
		select {
		case c, ok := <-confirms:
			if ok && !c.Ack {
				return fmt.Errorf("rabbitmq: publish not acknowledged after timeout")
			}
		case <-time.After(confirmDrainWindow):
			// give up trying to read from the confirms channel
		}

		return ctx.Err()
	}

	return nil
}
