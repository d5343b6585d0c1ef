package roster

import (
	"context"
	"strconv"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/signing"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// Store is the part of the persistent store the roster cache uses.
type Store interface {
	storage.GuardianStore
	storage.ActivityStore
}

// Cache mirrors guardian rosters into the store for listing.
// Authorization decisions never read it; they always query the provider.
type Cache struct {
	store   Store
	source  signing.RosterProvider
	clock   time2.Clock
	timeout time.Duration
}

func NewCache(store Store, source signing.RosterProvider, clock time2.Clock, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Cache{store: store, source: source, clock: clock, timeout: timeout}
}

// Sync replaces the cached roster of token with the provider's current one.
// Guardians already cached keep their label and first seen time.
func (c *Cache) Sync(ctx context.Context, token common.Address) ([]*withdrawal.GuardianRecord, error) {
	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	fresh, err := c.source.Guardians(fctx, token)
	cancel()
	if err != nil {
		return nil, withdrawal.NewTransientError(token.Hex(), "failed to fetch guardian roster", err)
	}

	cached, err := c.store.ListGuardians(ctx, token)
	if err != nil {
		return nil, err
	}
	known := make(map[common.Address]*withdrawal.GuardianRecord, len(cached))
	for _, g := range cached {
		known[g.GuardianAddress] = g
	}

	now := c.clock.Now().UTC()
	added := 0
	current := make(map[common.Address]bool, len(fresh))
	for _, addr := range fresh {
		current[addr] = true
		rec, ok := known[addr]
		if !ok {
			rec = &withdrawal.GuardianRecord{TokenAddress: token, GuardianAddress: addr, AddedAt: now}
			added++
		}
		if err := c.store.SaveGuardian(ctx, rec); err != nil {
			return nil, err
		}
	}

	removed := 0
	for _, g := range cached {
		if current[g.GuardianAddress] {
			continue
		}
		if err := c.store.DeleteGuardian(ctx, token, g.GuardianAddress); err != nil {
			return nil, err
		}
		removed++
	}

	if added > 0 || removed > 0 {
		entry := &withdrawal.ActivityEntry{
			ID:           uuid.NewString(),
			Action:       withdrawal.ActionGuardiansSynced,
			VaultAddress: token,
			SubjectID:    token.Hex(),
			Details: map[string]string{
				"added":   strconv.Itoa(added),
				"removed": strconv.Itoa(removed),
				"total":   strconv.Itoa(len(fresh)),
			},
			CreatedAt: now,
		}
		if err := c.store.SaveActivity(ctx, entry); err != nil {
			log.Error().Err(err).Str("token", token.Hex()).Msg("Failed to append activity entry")
		}
	}
	log.Debug().Str("token", token.Hex()).Int("added", added).Int("removed", removed).Msg("Guardian roster synced")

	return c.store.ListGuardians(ctx, token)
}

// List returns the cached roster of token.
func (c *Cache) List(ctx context.Context, token common.Address) ([]*withdrawal.GuardianRecord, error) {
	return c.store.ListGuardians(ctx, token)
}
