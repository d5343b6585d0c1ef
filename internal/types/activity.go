package types

import (
	"time"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

type ActivityEntry struct {
	ID        string            `json:"id"`
	Account   string            `json:"account"`
	Action    string            `json:"action"`
	Vault     string            `json:"vault"`
	SubjectID string            `json:"subjectId"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type Guardian struct {
	Token    string    `json:"token"`
	Guardian string    `json:"guardian"`
	Label    string    `json:"label,omitempty"`
	AddedAt  time.Time `json:"addedAt"`
}

func FromActivity(list []*withdrawal.ActivityEntry) []*ActivityEntry {
	out := make([]*ActivityEntry, 0, len(list))
	for _, e := range list {
		out = append(out, &ActivityEntry{
			ID:        e.ID,
			Account:   e.Account.Hex(),
			Action:    e.Action,
			Vault:     e.VaultAddress.Hex(),
			SubjectID: e.SubjectID,
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

func FromGuardians(list []*withdrawal.GuardianRecord) []*Guardian {
	out := make([]*Guardian, 0, len(list))
	for _, g := range list {
		out = append(out, &Guardian{
			Token:    g.TokenAddress.Hex(),
			Guardian: g.GuardianAddress.Hex(),
			Label:    g.Label,
			AddedAt:  g.AddedAt,
		})
	}
	return out
}
