package contracts

import (
	"encoding/json"
	"time"
)

// Queues. Both are durable: enqueued messages survive broker restarts
// until consumed, and delivery is at least once.
const (
	// QueueDeviceCommands carries operator commands to the external
	// device-communication worker.
	QueueDeviceCommands = "device_commands"
	// QueueDeviceCommandAcks carries the worker's delivery outcomes
	// back to this service.
	QueueDeviceCommandAcks = "device_command_acks"
)

// Envelope adds cross-cutting headers all messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // producer service name
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

// CommandMessage is the payload published on QueueDeviceCommands. The
// worker may receive a message more than once and must treat redeliveries
// of the same id as duplicates.
type CommandMessage struct {
	ID          string          `json:"id"`
	DeviceID    string          `json:"device_id"`
	CommandType string          `json:"command_type"`
	Payload     json.RawMessage `json:"payload"`
	Envelope
}

// CommandAckMessage is the payload the worker publishes on
// QueueDeviceCommandAcks after attempting delivery. Status is
// "acknowledged" or "failed".
type CommandAckMessage struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Envelope
}

// LiveLocationUpdate is fanned out to websocket dashboard clients after a
// successful ingest.
type LiveLocationUpdate struct {
	DeviceID   string    `json:"device_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
