package guardians_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/test"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
)

func TestSyncAndListGuardians(t *testing.T) {
	test.WithTestServer(t, func(f *test.Fixture) {
		token := f.BearerFor(t, f.Guardians[0])
		path := "/api/v1/guardians/" + f.Vault.Hex()

		res := test.PerformRequest(t, f.Server, http.MethodGet, path, nil, token)
		test.RequireStatus(t, res, http.StatusOK)
		var empty []*types.Guardian
		test.ParseResponseAndValidate(t, res, &empty)
		assert.Empty(t, empty)

		res = test.PerformRequest(t, f.Server, http.MethodPost, path+"/sync", nil, token)
		test.RequireStatus(t, res, http.StatusOK)
		var synced []*types.Guardian
		test.ParseResponseAndValidate(t, res, &synced)
		require.Len(t, synced, 3)

		got := make([]string, 0, len(synced))
		for _, g := range synced {
			assert.Equal(t, f.Vault.Hex(), g.Token)
			got = append(got, g.Guardian)
		}
		for _, addr := range f.GuardianAddrs {
			assert.Contains(t, got, addr.Hex())
		}

		res = test.PerformRequest(t, f.Server, http.MethodGet, path, nil, token)
		test.RequireStatus(t, res, http.StatusOK)
		var cached []*types.Guardian
		test.ParseResponseAndValidate(t, res, &cached)
		assert.Len(t, cached, 3)

		res = test.PerformRequest(t, f.Server, http.MethodGet, "/api/v1/guardians/not-an-address", nil, token)
		test.RequireStatus(t, res, http.StatusBadRequest)
	})
}
