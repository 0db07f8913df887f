package service

import (
	"time"

	"fleettrack/internal/domain/command"
	"fleettrack/internal/general/contracts"

	"github.com/google/uuid"
)

// contractsMessage builds the wire message for a persisted command.
func contractsMessage(cmd *command.Command) contracts.CommandMessage {
	return contracts.CommandMessage{
		ID:          cmd.ID,
		DeviceID:    cmd.DeviceID,
		CommandType: cmd.CommandType,
		Payload:     cmd.Payload,
		Envelope: contracts.Envelope{
			CorrelationID: uuid.NewString(),
			Producer:      producerName,
			SentAt:        time.Now().UTC(),
		},
	}
}
