//go:build wireinject

//go:generate wire

package api

import (
	"testing"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/config"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
)

// INJECTORS - https://github.com/google/wire/blob/main/docs/guide.md#injectors

// serviceSet groups the default set of providers that are required for initing a server
var serviceSet = wire.NewSet(
	newServerWithComponents,
	NewClock,
	NewEthClient,
	NewLocker,
	NewJWTManager,
	chainSet,
	guardianServiceSet,
)

var chainSet = wire.NewSet(
	NewRosterProvider,
	NewNonceProvider,
	NewExecutor,
	NewCollector,
)

var guardianServiceSet = wire.NewSet(
	NewRequestService,
	NewBatchManager,
	NewRosterCache,
	NewSweeper,
)

// InitNewServer returns a new Server instance.
func InitNewServer(
	_ config.Server,
) (*Server, error) {
	wire.Build(serviceSet, NewRedisClient, NewCodec, NewStore, NoTest)
	return new(Server), nil
}

// InitNewServerWithStore returns a new Server instance with the given store.
// All the other components are initialized via go wire according to the configuration.
func InitNewServerWithStore(
	_ config.Server,
	_ storage.Store,
	_ redis.UniversalClient,
	t ...*testing.T,
) (*Server, error) {
	wire.Build(serviceSet)
	return new(Server), nil
}
