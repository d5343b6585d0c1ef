package test

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/router"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/config"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/pkg/envelope"
)

const TestJWTSecret = "test-jwt-secret"

// Fixture is a running API server backed by miniredis, with three guardians
// configured for every vault and one outsider.
type Fixture struct {
	Server        *api.Server
	Redis         *miniredis.Miniredis
	Guardians     []*ecdsa.PrivateKey
	GuardianAddrs []common.Address
	Outsider      *ecdsa.PrivateKey
	Vault         common.Address
	Token         common.Address
	Recipient     common.Address
}

// NewTestConfig returns a server config for tests with static guardians and no relayer.
func NewTestConfig(guardians []common.Address) config.Server {
	cfg := config.DefaultServiceConfigFromEnv()

	parts := make([]string, 0, len(guardians))
	for _, g := range guardians {
		parts = append(parts, g.Hex())
	}

	cfg.Auth.JWTSecret = TestJWTSecret
	cfg.Chain.RPCURL = ""
	cfg.Chain.StaticRoster = strings.Join(parts, ",")
	cfg.Storage.Backend = "redis"
	cfg.Lock.Backend = "local"
	cfg.Gateway.RelayerURL = ""
	cfg.Management.MetricsEnabled = true

	return cfg
}

// WithTestServer runs closure against a fully wired server. Everything is torn down afterwards.
func WithTestServer(t *testing.T, closure func(f *Fixture)) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	key, err := envelope.NewKey()
	require.NoError(t, err)
	codec, err := storage.NewCodec(key, false)
	require.NoError(t, err)
	store := storage.NewRedisStore(client, codec)

	f := &Fixture{
		Redis:     mr,
		Vault:     common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Token:     common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		Recipient: common.HexToAddress("0x00000000000000000000000000000000000000c3"),
	}
	for i := 0; i < 3; i++ {
		k, err := crypto.GenerateKey()
		require.NoError(t, err)
		f.Guardians = append(f.Guardians, k)
		f.GuardianAddrs = append(f.GuardianAddrs, crypto.PubkeyToAddress(k.PublicKey))
	}
	f.Outsider, err = crypto.GenerateKey()
	require.NoError(t, err)

	s, err := api.InitNewServerWithStore(NewTestConfig(f.GuardianAddrs), store, client, t)
	require.NoError(t, err)
	router.Init(s)
	f.Server = s

	closure(f)

	// the server never started, so only the owned resources need closing
	if errs := s.Shutdown(context.Background()); len(errs) > 0 {
		t.Logf("Failed to shutdown test server: %v", errs)
	}
}

// Address returns the address of key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// BearerFor issues a token for the holder of key.
func (f *Fixture) BearerFor(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()

	token, _, err := f.Server.Auth.Generate(Address(key), "guardian")
	require.NoError(t, err)
	return token
}
