package postgres

import (
	"context"
	"time"

	"fleettrack/internal/domain/command"
	"fleettrack/internal/domain/fault"
	"fleettrack/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CommandRepo persists device commands. Lifecycle moves are guarded in the
// UPDATE's WHERE clause so a row never regresses even when the publisher
// and the ack consumer race.
type CommandRepo struct {
	pool *pgxpool.Pool
}

// NewCommandRepo constructs a new CommandRepo.
func NewCommandRepo(pool *pgxpool.Pool) ports.CommandRepository {
	return &CommandRepo{pool: pool}
}

func (repo *CommandRepo) db(ctx context.Context) dbtx {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return repo.pool
}

const commandColumns = `id, device_id, company_id, command_type, payload, status, idempotency_key, created_at, sent_at, acked_at`

func scanCommand(row interface{ Scan(...any) error }) (*command.Command, error) {
	var (
		cmd    command.Command
		status string
	)
	if err := row.Scan(
		&cmd.ID, &cmd.DeviceID, &cmd.CompanyID, &cmd.CommandType, &cmd.Payload,
		&status, &cmd.IdempotencyKey, &cmd.CreatedAt, &cmd.SentAt, &cmd.AckedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := command.ParseStatus(status)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "corrupt command status", err)
	}
	cmd.Status = parsed
	return &cmd, nil
}

// Create inserts a pending command under the id assigned by the service.
// A duplicate idempotency key within the company surfaces as a conflict
// via the unique index, backstopping the reservation layer.
func (repo *CommandRepo) Create(ctx context.Context, cmd *command.Command) error {
	err := repo.db(ctx).QueryRow(ctx, `
		INSERT INTO commands (id, device_id, company_id, command_type, payload, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`,
		cmd.ID, cmd.DeviceID, cmd.CompanyID, cmd.CommandType, cmd.Payload, cmd.Status.String(), cmd.IdempotencyKey,
	).Scan(&cmd.CreatedAt)
	return classify(err, "command")
}

// GetByID fetches one command within the caller's tenant.
func (repo *CommandRepo) GetByID(ctx context.Context, scope ports.Scope, id string) (*command.Command, error) {
	query := `SELECT ` + commandColumns + ` FROM commands WHERE id = $1`
	args := []any{id}
	if !scope.Admin() {
		query += ` AND company_id = $2`
		args = append(args, scope.CompanyID)
	}

	cmd, err := scanCommand(repo.db(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, classify(err, "command")
	}
	return cmd, nil
}

// GetByIdempotencyKey fetches the command previously submitted under key
// for the company, if any.
func (repo *CommandRepo) GetByIdempotencyKey(ctx context.Context, companyID, key string) (*command.Command, error) {
	cmd, err := scanCommand(repo.db(ctx).QueryRow(ctx, `
		SELECT `+commandColumns+`
		FROM commands
		WHERE company_id = $1 AND idempotency_key = $2
	`, companyID, key))
	if err != nil {
		return nil, classify(err, "command")
	}
	return cmd, nil
}

// MarkSent moves a pending command to sent, stamping sent_at. The status
// guard in the WHERE clause makes the call lose quietly when an ack
// already advanced the row.
func (repo *CommandRepo) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := repo.db(ctx).Exec(ctx, `
		UPDATE commands
		SET status = $2, sent_at = $3
		WHERE id = $1 AND status = $4
	`, id, command.StatusSent.String(), at, command.StatusPending.String())
	if err != nil {
		return false, classify(err, "command")
	}
	return tag.RowsAffected() > 0, nil
}

// ApplyAck records the worker-reported outcome, acknowledged or failed.
// Only non-terminal rows accept the move; a second ack for the same
// command changes nothing.
func (repo *CommandRepo) ApplyAck(ctx context.Context, id string, next command.Status, at time.Time) (bool, error) {
	if next != command.StatusAcknowledged && next != command.StatusFailed {
		return false, fault.Validationf("unsupported ack status %q", next)
	}
	tag, err := repo.db(ctx).Exec(ctx, `
		UPDATE commands
		SET status = $2, acked_at = $3
		WHERE id = $1 AND status IN ($4, $5)
	`, id, next.String(), at, command.StatusPending.String(), command.StatusSent.String())
	if err != nil {
		return false, classify(err, "command")
	}
	return tag.RowsAffected() > 0, nil
}
