package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// PostgresStore keeps records in the tables created by migrations/.
type PostgresStore struct {
	pool  *pgxpool.Pool
	codec *Codec
}

func NewPostgresStore(pool *pgxpool.Pool, codec *Codec) *PostgresStore {
	return &PostgresStore{pool: pool, codec: codec}
}

// OpenPostgres connects a pool and checks it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse postgres dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create postgres pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	log.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).Msg("Connected to postgres")
	return pool, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const requestColumns = `id, vault_address, request, signatures, guardians, required_quorum, created_at,
	created_by, status, executed_at, execution_tx_hash, rejection_reason, updated_at`

func (s *PostgresStore) SaveRequest(ctx context.Context, req *withdrawal.PendingRequest) error {
	rec, err := s.codec.encodeRequest(req)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pending_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			request = EXCLUDED.request,
			signatures = EXCLUDED.signatures,
			guardians = EXCLUDED.guardians,
			required_quorum = EXCLUDED.required_quorum,
			status = EXCLUDED.status,
			executed_at = EXCLUDED.executed_at,
			execution_tx_hash = EXCLUDED.execution_tx_hash,
			rejection_reason = EXCLUDED.rejection_reason,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.VaultAddress, string(rec.Request), string(rec.Signatures), string(rec.Guardians),
		rec.RequiredQuorum, rec.CreatedAt, rec.CreatedBy, rec.Status, rec.ExecutedAt,
		rec.ExecutionTxHash, rec.RejectionReason, rec.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save request")
	}
	return nil
}

func scanRequest(row pgx.Row) (*requestRecord, error) {
	var rec requestRecord
	var request, signatures, guardians string
	err := row.Scan(&rec.ID, &rec.VaultAddress, &request, &signatures, &guardians, &rec.RequiredQuorum,
		&rec.CreatedAt, &rec.CreatedBy, &rec.Status, &rec.ExecutedAt, &rec.ExecutionTxHash,
		&rec.RejectionReason, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Request, rec.Signatures, rec.Guardians = blob(request), blob(signatures), blob(guardians)
	return &rec, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*withdrawal.PendingRequest, error) {
	rec, err := scanRequest(s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM pending_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, withdrawal.NewNotFoundError(id, "request")
		}
		return nil, errors.Wrap(err, "failed to get request")
	}
	return s.codec.decodeRequest(rec)
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]*withdrawal.PendingRequest, error) {
	var vault, status *string
	if filter.Vault != nil {
		v := normalizeAddress(*filter.Vault)
		vault = &v
	}
	if filter.Status != "" {
		st := string(filter.Status)
		status = &st
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM pending_requests
		WHERE ($1::text IS NULL OR vault_address = $1) AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at, id`, vault, status)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list requests")
	}
	defer rows.Close()

	var out []*withdrawal.PendingRequest
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan request")
		}
		req, err := s.codec.decodeRequest(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate requests")
}

func (s *PostgresStore) DeleteRequest(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_requests WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete request")
	}
	return nil
}

const activityColumns = `id, account, action, vault_address, subject_id, details, created_at`

func (s *PostgresStore) SaveActivity(ctx context.Context, entry *withdrawal.ActivityEntry) error {
	rec, err := s.codec.encodeActivity(entry)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO activity_log (`+activityColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Account, rec.Action, rec.VaultAddress, rec.SubjectID, string(rec.Details), rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save activity")
	}
	return nil
}

func scanActivity(row pgx.Row) (*activityRecord, error) {
	var rec activityRecord
	var details string
	if err := row.Scan(&rec.ID, &rec.Account, &rec.Action, &rec.VaultAddress, &rec.SubjectID, &details, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Details = blob(details)
	return &rec, nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, id string) (*withdrawal.ActivityEntry, error) {
	rec, err := scanActivity(s.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activity_log WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, withdrawal.NewNotFoundError(id, "activity entry")
		}
		return nil, errors.Wrap(err, "failed to get activity")
	}
	return s.codec.decodeActivity(rec)
}

// ListActivity returns entries newest first.
func (s *PostgresStore) ListActivity(ctx context.Context, filter ActivityFilter) ([]*withdrawal.ActivityEntry, error) {
	var account *string
	if filter.Account != nil {
		a := normalizeAddress(*filter.Account)
		account = &a
	}
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+activityColumns+` FROM activity_log
		WHERE ($1::text IS NULL OR account = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, account, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list activity")
	}
	defer rows.Close()

	var out []*withdrawal.ActivityEntry
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan activity")
		}
		e, err := s.codec.decodeActivity(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate activity")
}

func (s *PostgresStore) DeleteActivity(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM activity_log WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete activity")
	}
	return nil
}

func (s *PostgresStore) SaveGuardian(ctx context.Context, g *withdrawal.GuardianRecord) error {
	row := encodeGuardian(g)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guardians (token_address, guardian_address, label, added_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_address, guardian_address) DO UPDATE SET label = EXCLUDED.label`,
		row.TokenAddress, row.GuardianAddress, row.Label, row.AddedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save guardian")
	}
	return nil
}

func (s *PostgresStore) ListGuardians(ctx context.Context, token common.Address) ([]*withdrawal.GuardianRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_address, guardian_address, label, added_at FROM guardians
		WHERE token_address = $1 ORDER BY added_at, guardian_address`, normalizeAddress(token))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list guardians")
	}
	defer rows.Close()

	var out []*withdrawal.GuardianRecord
	for rows.Next() {
		var row guardianRow
		if err := rows.Scan(&row.TokenAddress, &row.GuardianAddress, &row.Label, &row.AddedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan guardian")
		}
		out = append(out, decodeGuardian(&row))
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate guardians")
}

func (s *PostgresStore) DeleteGuardian(ctx context.Context, token common.Address, guardian common.Address) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM guardians WHERE token_address = $1 AND guardian_address = $2`,
		normalizeAddress(token), normalizeAddress(guardian))
	if err != nil {
		return errors.Wrap(err, "failed to delete guardian")
	}
	return nil
}

const batchColumns = `batch_id, vault_address, creator, created_at, expires_at, status, payload,
	required_approvals, cancel_reason, updated_at`

func (s *PostgresStore) SaveBatch(ctx context.Context, b *withdrawal.Batch) error {
	rec, err := s.codec.encodeBatch(b)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO withdrawal_batches (`+batchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (batch_id) DO UPDATE SET
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			cancel_reason = EXCLUDED.cancel_reason,
			updated_at = EXCLUDED.updated_at`,
		rec.BatchID, rec.VaultAddress, rec.Creator, rec.CreatedAt, rec.ExpiresAt, rec.Status,
		string(rec.Payload), rec.RequiredApprovals, rec.CancelReason, rec.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save batch")
	}
	return nil
}

func scanBatch(row pgx.Row) (*batchRecord, error) {
	var rec batchRecord
	var payload string
	err := row.Scan(&rec.BatchID, &rec.VaultAddress, &rec.Creator, &rec.CreatedAt, &rec.ExpiresAt, &rec.Status,
		&payload, &rec.RequiredApprovals, &rec.CancelReason, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Payload = blob(payload)
	return &rec, nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*withdrawal.Batch, error) {
	rec, err := scanBatch(s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM withdrawal_batches WHERE batch_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, withdrawal.NewNotFoundError(id, "batch")
		}
		return nil, errors.Wrap(err, "failed to get batch")
	}
	return s.codec.decodeBatch(rec)
}

func (s *PostgresStore) ListBatches(ctx context.Context, filter BatchFilter) ([]*withdrawal.Batch, error) {
	var vault *string
	if filter.Vault != nil {
		v := normalizeAddress(*filter.Vault)
		vault = &v
	}
	statuses := make([]string, 0, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses = append(statuses, string(st))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+batchColumns+` FROM withdrawal_batches
		WHERE ($1::text IS NULL OR vault_address = $1) AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at, batch_id`, vault, statuses)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list batches")
	}
	defer rows.Close()

	var out []*withdrawal.Batch
	for rows.Next() {
		rec, err := scanBatch(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan batch")
		}
		b, err := s.codec.decodeBatch(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate batches")
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM withdrawal_batches WHERE batch_id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete batch")
	}
	return nil
}
