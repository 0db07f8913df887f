package command

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrMissingDeviceID    = errors.New("device ID is missing")
	ErrMissingCommandType = errors.New("command type is missing")
	ErrMissingCompanyID   = errors.New("company ID is missing")
	ErrInvalidStatus      = errors.New("invalid command status")
	ErrBackwardTransition = errors.New("command status cannot move backward")
)

// Status is the lifecycle state of a Command.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusAcknowledged Status = "acknowledged"
	StatusFailed       Status = "failed"
)

// ParseStatus normalizes and validates a status string.
func ParseStatus(input string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(input)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusSent, StatusAcknowledged, StatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// rank orders the lifecycle so transitions can be checked for regression.
// failed is terminal and reachable from pending or sent.
func (status Status) rank() int {
	switch status {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusAcknowledged, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is allowed from status.
func (status Status) Terminal() bool {
	return status == StatusAcknowledged || status == StatusFailed
}

// CanTransition reports whether moving from status to next is a legal,
// forward-only step of the lifecycle:
//
//	pending -> sent -> acknowledged
//	pending -> failed, sent -> failed
//
// pending -> acknowledged is also legal: an ack can come back before the
// sent status is recorded, and the overtake must not be rejected.
func (status Status) CanTransition(next Status) bool {
	if !status.Valid() || !next.Valid() {
		return false
	}
	if status.Terminal() {
		return false
	}
	return next.rank() > status.rank()
}

// Command is the domain entity corresponding to the `commands` table.
// Rows are created in state pending and only ever move forward.
type Command struct {
	ID             string
	DeviceID       string
	CompanyID      string
	CommandType    string
	Payload        json.RawMessage
	Status         Status
	IdempotencyKey *string
	CreatedAt      time.Time
	SentAt         *time.Time
	AckedAt        *time.Time
}

// NewCommand constructs a pending Command for a device. The payload is an
// opaque JSON value; nil means an empty object.
func NewCommand(deviceID, companyID, commandType string, payload json.RawMessage, idempotencyKey *string) (*Command, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, ErrMissingDeviceID
	}
	if strings.TrimSpace(companyID) == "" {
		return nil, ErrMissingCompanyID
	}
	if strings.TrimSpace(commandType) == "" {
		return nil, ErrMissingCommandType
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if idempotencyKey != nil {
		key := strings.TrimSpace(*idempotencyKey)
		if key == "" {
			idempotencyKey = nil
		} else {
			idempotencyKey = &key
		}
	}
	return &Command{
		DeviceID:       strings.TrimSpace(deviceID),
		CompanyID:      strings.TrimSpace(companyID),
		CommandType:    strings.TrimSpace(commandType),
		Payload:        payload,
		Status:         StatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Transition advances the command to next, enforcing the forward-only rule
// and stamping sent_at / acked_at.
func (cmd *Command) Transition(next Status, at time.Time) error {
	if !cmd.Status.CanTransition(next) {
		return ErrBackwardTransition
	}
	cmd.Status = next
	switch next {
	case StatusSent:
		cmd.SentAt = &at
	case StatusAcknowledged, StatusFailed:
		cmd.AckedAt = &at
	}
	return nil
}
