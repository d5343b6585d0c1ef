package api

import (
	"context"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/config"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/batch"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/chain"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/gateway"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/request"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/roster"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/signing"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/sweeper"
	"github.com/zakkycrypt01/spenednsave-sub002/pkg/envelope"
)

// PROVIDERS - define here only providers that for various reasons (e.g. cyclic dependency) can't live in their corresponding packages
// or for wrapping providers that only accept sub-configs to prevent the requirements for defining providers for sub-configs.
// https://github.com/google/wire/blob/main/docs/guide.md#defining-providers

func NewClock(t ...*testing.T) time2.Clock {
	var clock time2.Clock

	useMock := len(t) > 0 && t[0] != nil

	if useMock {
		clock = time2.NewMockClock(time.Now())
	} else {
		clock = time2.DefaultClock
	}

	return clock
}

func NoTest() []*testing.T {
	return nil
}

// NewRedisClient connects to redis when the store or the locks use it, and returns nil otherwise.
func NewRedisClient(cfg config.Server) (redis.UniversalClient, error) {
	if cfg.Storage.Backend != "redis" && cfg.Lock.Backend != "redis" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to ping redis")
	}

	return client, nil
}

// NewEthClient dials the configured RPC endpoint. It returns nil when no endpoint is set.
func NewEthClient(cfg config.Server) (*ethclient.Client, error) {
	if cfg.Chain.RPCURL == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return chain.Dial(ctx, cfg.Chain.RPCURL, big.NewInt(cfg.Signing.ChainID))
}

// NewCodec derives the storage master key from the configured key or passphrase.
func NewCodec(cfg config.Server) (*storage.Codec, error) {
	var (
		key []byte
		err error
	)
	switch {
	case cfg.Storage.EncryptionKey != "":
		key, err = envelope.DecodeKey(cfg.Storage.EncryptionKey)
	case cfg.Storage.Passphrase != "":
		key, err = envelope.KeyFromPassphrase(cfg.Storage.Passphrase, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "invalid storage encryption key")
	}

	return storage.NewCodec(key, cfg.Storage.AllowPlaintext)
}

func NewStore(cfg config.Server, client redis.UniversalClient, codec *storage.Codec) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := storage.OpenPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresStore(pool, codec), nil
	default:
		return storage.NewRedisStore(client, codec), nil
	}
}

func NewLocker(cfg config.Server, client redis.UniversalClient) (storage.Locker, error) {
	if err := cfg.ValidateLock(); err != nil {
		return nil, err
	}
	if cfg.Lock.Backend == "redis" {
		opts := storage.DefaultRedisLockOptions()
		if cfg.Lock.Expiry > 0 {
			opts.Expiry = cfg.Lock.Expiry
		}
		if cfg.Lock.Tries > 0 {
			opts.Tries = cfg.Lock.Tries
		}
		return storage.NewRedisLocker(client, opts), nil
	}

	return storage.NewLocalLocker(), nil
}

// NewRosterProvider prefers a configured static roster over the vault contract.
func NewRosterProvider(cfg config.Server, eth *ethclient.Client) (signing.RosterProvider, error) {
	if cfg.Chain.StaticRoster != "" {
		log.Warn().Msg("Using static guardian roster from GUARDIAN_STATIC_ROSTER")
		return chain.ParseStaticRoster(cfg.Chain.StaticRoster)
	}
	if eth == nil {
		return nil, errors.New("either CHAIN_RPC_URL or GUARDIAN_STATIC_ROSTER must be set")
	}

	return chain.NewVaultContract(eth)
}

func NewNonceProvider(eth *ethclient.Client) (request.NonceProvider, error) {
	if eth == nil {
		log.Warn().Msg("No chain RPC configured, vault nonces start at zero")
		return chain.NewStaticNonces(), nil
	}

	return chain.NewVaultContract(eth)
}

func NewExecutor(cfg config.Server, eth *ethclient.Client) gateway.Executor {
	if cfg.Gateway.RelayerURL == "" {
		log.Warn().Msg("No relayer configured, execution is disabled")
		return gateway.Disabled{}
	}

	var receipts gateway.ReceiptFetcher
	if eth != nil {
		receipts = eth
	}

	return gateway.NewRelayer(gateway.RelayerConfig{
		URL:              cfg.Gateway.RelayerURL,
		APIKey:           cfg.Gateway.APIKey,
		SubmitTimeout:    cfg.Gateway.SubmitTimeout,
		ConfirmTimeout:   cfg.Gateway.ConfirmTimeout,
		PollInterval:     cfg.Gateway.PollInterval,
		BreakerFailures:  cfg.Gateway.BreakerFailures,
		BreakerOpenDelay: cfg.Gateway.BreakerOpenDelay,
	}, &http.Client{}, receipts)
}

func NewCollector(cfg config.Server, provider signing.RosterProvider, clock time2.Clock) *signing.Collector {
	domain := signing.Domain{
		Name:    cfg.Signing.DomainName,
		Version: cfg.Signing.DomainVersion,
		ChainID: big.NewInt(cfg.Signing.ChainID),
	}

	return signing.NewCollector(domain, provider, cfg.Signing.RosterTimeout, clock)
}

func NewJWTManager(cfg config.Server, clock time2.Clock) *auth.JWTManager {
	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("SERVER_AUTH_JWT_SECRET is empty, every authenticated call will be rejected")
	}

	return auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenDuration, clock)
}

func NewRequestService(cfg config.Server, store storage.Store, locker storage.Locker, collector *signing.Collector, nonces request.NonceProvider, executor gateway.Executor, clock time2.Clock) *request.Service {
	return request.NewService(store, locker, collector, nonces, executor, clock, cfg.Chain.NonceTimeout)
}

func NewBatchManager(cfg config.Server, store storage.Store, locker storage.Locker, collector *signing.Collector, executor gateway.Executor, clock time2.Clock) *batch.Manager {
	return batch.NewManager(store, locker, collector, executor, clock, cfg.Batch.ApprovalWindow)
}

func NewRosterCache(cfg config.Server, store storage.Store, provider signing.RosterProvider, clock time2.Clock) *roster.Cache {
	return roster.NewCache(store, provider, clock, cfg.Signing.RosterTimeout)
}

func NewSweeper(cfg config.Server, batches *batch.Manager, clock time2.Clock) *sweeper.Sweeper {
	return sweeper.New(batches, clock, cfg.Batch.SweepInterval)
}
