package service

import (
	"context"
	"time"

	"fleettrack/internal/domain/command"
	"fleettrack/internal/domain/fault"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/metrics"
	"fleettrack/internal/ports"

	"github.com/google/uuid"
)

const (
	producerName   = "fleettrackd"
	idempotencyTTL = 24 * time.Hour
)

// dispatchService holds all dependencies required by durable command
// dispatch.
type dispatchService struct {
	logger   *logger.Logger
	devices  ports.DeviceRepository
	commands ports.CommandRepository
	pub      ports.CommandPublisher
	idem     ports.IdempotencyStore
}

// NewDispatchService constructs the service with required dependencies.
// idem may be nil; the database unique index still rejects duplicate keys.
func NewDispatchService(
	log *logger.Logger,
	devices ports.DeviceRepository,
	commands ports.CommandRepository,
	pub ports.CommandPublisher,
	idem ports.IdempotencyStore,
) ports.DispatchService {
	return &dispatchService{
		logger:   log,
		devices:  devices,
		commands: commands,
		pub:      pub,
		idem:     idem,
	}
}

func commandView(cmd *command.Command) ports.CommandView {
	return ports.CommandView{
		ID:          cmd.ID,
		DeviceID:    cmd.DeviceID,
		CommandType: cmd.CommandType,
		Payload:     cmd.Payload,
		Status:      cmd.Status.String(),
		CreatedAt:   cmd.CreatedAt,
		SentAt:      cmd.SentAt,
		AckedAt:     cmd.AckedAt,
	}
}

// Submit persists a pending command, hands it to the durable queue, and
// marks it sent once the broker confirms. A publish failure leaves the row
// pending for redispatch; the caller sees the row either way.
func (service *dispatchService) Submit(ctx context.Context, scope ports.Scope, in ports.SubmitCommandInput) (ports.SubmitCommandResult, error) {
	dev, err := service.devices.GetByID(ctx, scope, in.DeviceID)
	if err != nil {
		return ports.SubmitCommandResult{}, err
	}

	var keyPtr *string
	if in.IdempotencyKey != "" {
		keyPtr = &in.IdempotencyKey
	}
	cmd, err := command.NewCommand(in.DeviceID, dev.CompanyID, in.CommandType, in.Payload, keyPtr)
	if err != nil {
		return ports.SubmitCommandResult{}, fault.Wrap(fault.KindValidation, err.Error(), err)
	}
	cmd.ID = uuid.NewString()

	// fast-path replay through the reservation store, source of truth
	// stays the unique index on (company_id, idempotency_key)
	if cmd.IdempotencyKey != nil && service.idem != nil {
		scopedKey := cmd.CompanyID + ":" + *cmd.IdempotencyKey
		existing, reserved, err := service.idem.Reserve(ctx, scopedKey, cmd.ID, idempotencyTTL)
		if err != nil {
			service.logger.Warn(ctx, "idempotency_reserve_failed", "Reservation store unavailable, relying on database backstop", map[string]any{
				"device_id": cmd.DeviceID,
			})
		} else if !reserved && existing != "" {
			if prior, err := service.commands.GetByID(ctx, scope, existing); err == nil {
				return service.replay(ctx, prior)
			}
			// reservation exists but the row does not yet; the first
			// submit is still in flight
			return ports.SubmitCommandResult{}, fault.New(fault.KindConflict, "command with this idempotency key is being processed")
		}
	}

	if err := service.commands.Create(ctx, cmd); err != nil {
		if fault.IsKind(err, fault.KindConflict) && cmd.IdempotencyKey != nil {
			if prior, ferr := service.commands.GetByIdempotencyKey(ctx, cmd.CompanyID, *cmd.IdempotencyKey); ferr == nil {
				return service.replay(ctx, prior)
			}
		}
		return ports.SubmitCommandResult{}, err
	}

	result, err := service.dispatch(ctx, cmd)
	if err != nil {
		return ports.SubmitCommandResult{}, err
	}
	return result, nil
}

// replay answers a duplicate submit for an existing command. A prior row
// still pending never made it to consumers (publish failed or the first
// submit crashed before the confirm), so the retry re-attempts the
// publish instead of parroting the stuck status back.
func (service *dispatchService) replay(ctx context.Context, prior *command.Command) (ports.SubmitCommandResult, error) {
	if prior.Status == command.StatusPending && prior.SentAt == nil {
		result, err := service.dispatch(ctx, prior)
		if err != nil {
			return ports.SubmitCommandResult{}, err
		}
		result.Replayed = true
		return result, nil
	}
	return ports.SubmitCommandResult{CommandID: prior.ID, Status: prior.Status.String(), Replayed: true}, nil
}

// dispatch publishes the persisted command and advances it to sent.
func (service *dispatchService) dispatch(ctx context.Context, cmd *command.Command) (ports.SubmitCommandResult, error) {
	msg := contractsMessage(cmd)
	if err := service.pub.PublishCommand(ctx, msg); err != nil {
		metrics.CommandsPublished.WithLabelValues("failed").Inc()
		service.logger.Error(ctx, "command_publish_failed", "Command persisted but not handed to the queue", err, map[string]any{
			"command_id": cmd.ID,
			"device_id":  cmd.DeviceID,
		})
		return ports.SubmitCommandResult{}, fault.Wrap(fault.KindUnavailable, "command accepted but not dispatched", err)
	}
	metrics.CommandsPublished.WithLabelValues("ok").Inc()

	now := time.Now().UTC()
	moved, err := service.commands.MarkSent(ctx, cmd.ID, now)
	if err != nil {
		return ports.SubmitCommandResult{}, err
	}
	status := command.StatusSent
	if !moved {
		// an ack overtook the publish confirmation
		current, err := service.commands.GetByID(ctx, ports.Scope{Role: "ADMIN"}, cmd.ID)
		if err != nil {
			return ports.SubmitCommandResult{}, err
		}
		status = current.Status
	}

	service.logger.Info(ctx, "command_dispatched", "Command handed to device queue", map[string]any{
		"command_id":   cmd.ID,
		"device_id":    cmd.DeviceID,
		"command_type": cmd.CommandType,
		"status":       status.String(),
	})
	return ports.SubmitCommandResult{CommandID: cmd.ID, Status: status.String()}, nil
}

// Get returns the command read model within the caller's tenant.
func (service *dispatchService) Get(ctx context.Context, scope ports.Scope, id string) (ports.CommandView, error) {
	cmd, err := service.commands.GetByID(ctx, scope, id)
	if err != nil {
		return ports.CommandView{}, err
	}
	return commandView(cmd), nil
}
