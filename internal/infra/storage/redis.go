package storage

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

const (
	keyPrefix         = "guardian:"
	requestIndexKey   = keyPrefix + "requests"
	activityIndexKey  = keyPrefix + "activity"
	batchIndexKey     = keyPrefix + "batches"
	requestKeyPrefix  = keyPrefix + "request:"
	activityKeyPrefix = keyPrefix + "activity:"
	batchKeyPrefix    = keyPrefix + "batch:"
	rosterKeyPrefix   = keyPrefix + "roster:"
	accountKeyPrefix  = keyPrefix + "account:"
)

// RedisStore keeps every record as a JSON row plus sorted-set indexes ordered by creation time.
type RedisStore struct {
	client redis.UniversalClient
	codec  *Codec
}

func NewRedisStore(client redis.UniversalClient, codec *Codec) *RedisStore {
	return &RedisStore{client: client, codec: codec}
}

func (s *RedisStore) Close() error {
	return nil
}

func (s *RedisStore) SaveRequest(ctx context.Context, req *withdrawal.PendingRequest) error {
	rec, err := s.codec.encodeRequest(req)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, requestKeyPrefix+req.ID, data, 0)
		pipe.ZAdd(ctx, requestIndexKey, redis.Z{Score: float64(req.CreatedAt.UnixNano()), Member: req.ID})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to save request")
	}
	return nil
}

func (s *RedisStore) GetRequest(ctx context.Context, id string) (*withdrawal.PendingRequest, error) {
	data, err := s.client.Get(ctx, requestKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, withdrawal.NewNotFoundError(id, "request")
		}
		return nil, errors.Wrap(err, "failed to get request")
	}
	return s.decodeRequestRow(id, data)
}

func (s *RedisStore) decodeRequestRow(id string, data []byte) (*withdrawal.PendingRequest, error) {
	var rec requestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, withdrawal.NewPersistenceError(id, "unreadable request row", err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return s.codec.decodeRequest(&rec)
}

func (s *RedisStore) ListRequests(ctx context.Context, filter RequestFilter) ([]*withdrawal.PendingRequest, error) {
	rows, ids, err := s.loadIndexed(ctx, requestIndexKey, requestKeyPrefix, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*withdrawal.PendingRequest, 0, len(rows))
	for i, data := range rows {
		req, err := s.decodeRequestRow(ids[i], data)
		if err != nil {
			return nil, err
		}
		if filter.Vault != nil && req.VaultAddress != *filter.Vault {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *RedisStore) DeleteRequest(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, requestKeyPrefix+id)
		pipe.ZRem(ctx, requestIndexKey, id)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete request")
	}
	return nil
}

func (s *RedisStore) SaveActivity(ctx context.Context, entry *withdrawal.ActivityEntry) error {
	rec, err := s.codec.encodeActivity(entry)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal activity")
	}

	score := float64(entry.CreatedAt.UnixNano())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, activityKeyPrefix+entry.ID, data, 0)
		pipe.ZAdd(ctx, activityIndexKey, redis.Z{Score: score, Member: entry.ID})
		pipe.ZAdd(ctx, accountKeyPrefix+rec.Account, redis.Z{Score: score, Member: entry.ID})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to save activity")
	}
	return nil
}

func (s *RedisStore) GetActivity(ctx context.Context, id string) (*withdrawal.ActivityEntry, error) {
	data, err := s.client.Get(ctx, activityKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, withdrawal.NewNotFoundError(id, "activity entry")
		}
		return nil, errors.Wrap(err, "failed to get activity")
	}
	return s.decodeActivityRow(id, data)
}

func (s *RedisStore) decodeActivityRow(id string, data []byte) (*withdrawal.ActivityEntry, error) {
	var rec activityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, withdrawal.NewPersistenceError(id, "unreadable activity row", err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return s.codec.decodeActivity(&rec)
}

// ListActivity returns entries newest first.
func (s *RedisStore) ListActivity(ctx context.Context, filter ActivityFilter) ([]*withdrawal.ActivityEntry, error) {
	index := activityIndexKey
	if filter.Account != nil {
		index = accountKeyPrefix + normalizeAddress(*filter.Account)
	}
	rows, ids, err := s.loadIndexed(ctx, index, activityKeyPrefix, filter.Limit)
	if err != nil {
		return nil, err
	}

	out := make([]*withdrawal.ActivityEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		e, err := s.decodeActivityRow(ids[i], rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) DeleteActivity(ctx context.Context, id string) error {
	entry, err := s.GetActivity(ctx, id)
	if err != nil && !withdrawal.IsKind(err, withdrawal.ErrKindNotFound) {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, activityKeyPrefix+id)
		pipe.ZRem(ctx, activityIndexKey, id)
		if entry != nil {
			pipe.ZRem(ctx, accountKeyPrefix+normalizeAddress(entry.Account), id)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete activity")
	}
	return nil
}

// SaveGuardian upserts on (token, guardian); re-inserting the same pair overwrites it.
func (s *RedisStore) SaveGuardian(ctx context.Context, g *withdrawal.GuardianRecord) error {
	row := encodeGuardian(g)
	data, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "failed to marshal guardian")
	}
	if err := s.client.HSet(ctx, rosterKeyPrefix+row.TokenAddress, row.GuardianAddress, data).Err(); err != nil {
		return errors.Wrap(err, "failed to save guardian")
	}
	return nil
}

func (s *RedisStore) ListGuardians(ctx context.Context, token common.Address) ([]*withdrawal.GuardianRecord, error) {
	values, err := s.client.HGetAll(ctx, rosterKeyPrefix+normalizeAddress(token)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list guardians")
	}

	out := make([]*withdrawal.GuardianRecord, 0, len(values))
	for field, data := range values {
		var row guardianRow
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, withdrawal.NewPersistenceError(field, "unreadable guardian row", err)
		}
		out = append(out, decodeGuardian(&row))
	}
	sortGuardians(out)
	return out, nil
}

func (s *RedisStore) DeleteGuardian(ctx context.Context, token common.Address, guardian common.Address) error {
	if err := s.client.HDel(ctx, rosterKeyPrefix+normalizeAddress(token), normalizeAddress(guardian)).Err(); err != nil {
		return errors.Wrap(err, "failed to delete guardian")
	}
	return nil
}

func (s *RedisStore) SaveBatch(ctx context.Context, b *withdrawal.Batch) error {
	rec, err := s.codec.encodeBatch(b)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal batch")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, batchKeyPrefix+b.BatchID, data, 0)
		pipe.ZAdd(ctx, batchIndexKey, redis.Z{Score: float64(b.CreatedAt.UnixNano()), Member: b.BatchID})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to save batch")
	}
	return nil
}

func (s *RedisStore) GetBatch(ctx context.Context, id string) (*withdrawal.Batch, error) {
	data, err := s.client.Get(ctx, batchKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, withdrawal.NewNotFoundError(id, "batch")
		}
		return nil, errors.Wrap(err, "failed to get batch")
	}
	return s.decodeBatchRow(id, data)
}

func (s *RedisStore) decodeBatchRow(id string, data []byte) (*withdrawal.Batch, error) {
	var rec batchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, withdrawal.NewPersistenceError(id, "unreadable batch row", err)
	}
	if rec.BatchID == "" {
		rec.BatchID = id
	}
	return s.codec.decodeBatch(&rec)
}

func (s *RedisStore) ListBatches(ctx context.Context, filter BatchFilter) ([]*withdrawal.Batch, error) {
	rows, ids, err := s.loadIndexed(ctx, batchIndexKey, batchKeyPrefix, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*withdrawal.Batch, 0, len(rows))
	for i, data := range rows {
		b, err := s.decodeBatchRow(ids[i], data)
		if err != nil {
			return nil, err
		}
		if matchBatch(b, filter) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *RedisStore) DeleteBatch(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, batchKeyPrefix+id)
		pipe.ZRem(ctx, batchIndexKey, id)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete batch")
	}
	return nil
}

// loadIndexed fetches the rows referenced by an index, oldest first. With limit > 0
// only the newest limit rows are returned. Index members whose row vanished are skipped.
func (s *RedisStore) loadIndexed(ctx context.Context, index string, prefix string, limit int) ([][]byte, []string, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	ids, err := s.client.ZRange(ctx, index, start, -1).Result()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read index %s", index)
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = prefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to load rows of %s", index)
	}

	rows := make([][]byte, 0, len(values))
	found := make([]string, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rows = append(rows, []byte(str))
		found = append(found, ids[i])
	}
	return rows, found, nil
}
