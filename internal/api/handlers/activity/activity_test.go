package activity_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/test"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

func TestGetListActivity(t *testing.T) {
	test.WithTestServer(t, func(f *test.Fixture) {
		creator := f.Guardians[0]
		for i := 0; i < 3; i++ {
			res := test.PerformRequest(t, f.Server, http.MethodPost, "/api/v1/requests", types.PostCreateRequestPayload{
				Vault:          f.Vault.Hex(),
				Token:          f.Token.Hex(),
				Amount:         "5",
				Recipient:      f.Recipient.Hex(),
				RequiredQuorum: 1,
			}, f.BearerFor(t, creator))
			test.RequireStatus(t, res, http.StatusCreated)
		}

		res := test.PerformRequest(t, f.Server, http.MethodGet, "/api/v1/activity", nil, f.BearerFor(t, creator))
		test.RequireStatus(t, res, http.StatusOK)
		var own []*types.ActivityEntry
		test.ParseResponseAndValidate(t, res, &own)
		require.Len(t, own, 3)
		for i, e := range own {
			assert.Equal(t, withdrawal.ActionRequestCreated, e.Action)
			assert.Equal(t, test.Address(creator).Hex(), e.Account)
			if i > 0 {
				assert.False(t, e.CreatedAt.After(own[i-1].CreatedAt), "newest first")
			}
		}

		res = test.PerformRequest(t, f.Server, http.MethodGet, "/api/v1/activity?limit=2&account="+test.Address(creator).Hex(), nil, f.BearerFor(t, f.Outsider))
		test.RequireStatus(t, res, http.StatusOK)
		var limited []*types.ActivityEntry
		test.ParseResponseAndValidate(t, res, &limited)
		assert.Len(t, limited, 2)

		res = test.PerformRequest(t, f.Server, http.MethodGet, "/api/v1/activity", nil, f.BearerFor(t, f.Outsider))
		test.RequireStatus(t, res, http.StatusOK)
		var none []*types.ActivityEntry
		test.ParseResponseAndValidate(t, res, &none)
		assert.Empty(t, none)

		res = test.PerformRequest(t, f.Server, http.MethodGet, "/api/v1/activity?limit=-1", nil, f.BearerFor(t, creator))
		test.RequireStatus(t, res, http.StatusBadRequest)
	})
}
