package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	Vault  *common.Address
	Status withdrawal.Status
}

// ActivityFilter narrows ListActivity. Limit <= 0 means no limit.
type ActivityFilter struct {
	Account *common.Address
	Limit   int
}

// BatchFilter narrows ListBatches. An empty Statuses matches every status.
type BatchFilter struct {
	Vault    *common.Address
	Statuses []withdrawal.BatchStatus
}

// PendingRequestStore persists single withdrawal requests.
type PendingRequestStore interface {
	SaveRequest(ctx context.Context, req *withdrawal.PendingRequest) error
	GetRequest(ctx context.Context, id string) (*withdrawal.PendingRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]*withdrawal.PendingRequest, error)
	DeleteRequest(ctx context.Context, id string) error
}

// ActivityStore is the append-only activity log.
type ActivityStore interface {
	SaveActivity(ctx context.Context, entry *withdrawal.ActivityEntry) error
	GetActivity(ctx context.Context, id string) (*withdrawal.ActivityEntry, error)
	ListActivity(ctx context.Context, filter ActivityFilter) ([]*withdrawal.ActivityEntry, error)
	DeleteActivity(ctx context.Context, id string) error
}

// GuardianStore caches guardian rosters keyed by (token, guardian).
type GuardianStore interface {
	SaveGuardian(ctx context.Context, g *withdrawal.GuardianRecord) error
	ListGuardians(ctx context.Context, token common.Address) ([]*withdrawal.GuardianRecord, error)
	DeleteGuardian(ctx context.Context, token common.Address, guardian common.Address) error
}

type BatchStore interface {
	SaveBatch(ctx context.Context, b *withdrawal.Batch) error
	GetBatch(ctx context.Context, id string) (*withdrawal.Batch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]*withdrawal.Batch, error)
	DeleteBatch(ctx context.Context, id string) error
}

// Store is the complete persistent store.
type Store interface {
	PendingRequestStore
	ActivityStore
	GuardianStore
	BatchStore
	Close() error
}

// Locker serialises mutations on one key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func RequestLockKey(id string) string {
	return "request:" + id
}

func BatchLockKey(id string) string {
	return "batch:" + id
}

func VaultLockKey(vault common.Address) string {
	return "vault:" + normalizeAddress(vault)
}
