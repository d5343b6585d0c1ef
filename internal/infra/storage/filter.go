package storage

import (
	"sort"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

func matchBatch(b *withdrawal.Batch, filter BatchFilter) bool {
	if filter.Vault != nil && b.VaultAddress != *filter.Vault {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, st := range filter.Statuses {
		if b.Status == st {
			return true
		}
	}
	return false
}

// sortGuardians orders by addedAt, then address, so listings are stable.
func sortGuardians(list []*withdrawal.GuardianRecord) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].AddedAt.Equal(list[j].AddedAt) {
			return list[i].AddedAt.Before(list[j].AddedAt)
		}
		return normalizeAddress(list[i].GuardianAddress) < normalizeAddress(list[j].GuardianAddress)
	})
}
