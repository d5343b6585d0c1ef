package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/config"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/batch"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/gateway"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/request"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/roster"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/signing"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/sweeper"
)

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
	APIV1      *echo.Group
}

// Server is a central struct keeping all the dependencies.
// It is initialized with wire, which handles making the new instances of the components
// in the right order. To add a new component, 3 steps are required:
// - declaring it in this struct
// - adding a provider function in providers.go
// - adding the provider's function name to the arguments of wire.Build() in wire.go
//
// Components labeled as `wire:"-"` will be skipped and have to be initialized after the InitNewServer* call.
// For more information about wire refer to https://pkg.go.dev/github.com/google/wire
type Server struct {
	// skip wire:
	// -> initialized with router.Init(s) function
	Echo   *echo.Echo `wire:"-"`
	Router *Router    `wire:"-"`

	Config    config.Server
	Clock     time2.Clock
	Redis     redis.UniversalClient
	Eth       *ethclient.Client
	Store     storage.Store
	Locker    storage.Locker
	Auth      *auth.JWTManager
	Collector *signing.Collector
	Executor  gateway.Executor
	Requests  *request.Service
	Batches   *batch.Manager
	Roster    *roster.Cache
	Sweeper   *sweeper.Sweeper

	sweeperMu   sync.Mutex
	stopSweeper context.CancelFunc
	sweeperDone chan struct{}
}

// newServerWithComponents is used by wire to initialize the server components.
// Components not listed here won't be handled by wire and should be initialized separately.
// Components which shouldn't be handled must be labeled `wire:"-"` in Server struct.
func newServerWithComponents(
	cfg config.Server,
	clock time2.Clock,
	rdb redis.UniversalClient,
	eth *ethclient.Client,
	store storage.Store,
	locker storage.Locker,
	jwt *auth.JWTManager,
	collector *signing.Collector,
	executor gateway.Executor,
	requests *request.Service,
	batches *batch.Manager,
	rosterCache *roster.Cache,
	sweep *sweeper.Sweeper,
) *Server {
	return &Server{
		Config:    cfg,
		Clock:     clock,
		Redis:     rdb,
		Eth:       eth,
		Store:     store,
		Locker:    locker,
		Auth:      jwt,
		Collector: collector,
		Executor:  executor,
		Requests:  requests,
		Batches:   batches,
		Roster:    rosterCache,
		Sweeper:   sweep,
	}
}

func NewServer(config config.Server) *Server {
	s := &Server{
		Config: config,
	}

	return s
}

// Ready reports whether every component required to serve requests is set.
func (s *Server) Ready() bool {
	switch {
	case s.Echo == nil, s.Router == nil:
		log.Debug().Msg("Server is not fully initialized: router missing")
		return false
	case s.Store == nil, s.Locker == nil, s.Auth == nil, s.Collector == nil, s.Executor == nil:
		log.Debug().Msg("Server is not fully initialized: infrastructure missing")
		return false
	case s.Requests == nil, s.Batches == nil, s.Roster == nil, s.Sweeper == nil:
		log.Debug().Msg("Server is not fully initialized: services missing")
		return false
	}
	return true
}

// Start runs the expiry sweeper in the background and blocks serving HTTP.
func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	s.startSweeper()

	if s.Config.Echo.TLSCertFile != "" && s.Config.Echo.TLSKeyFile != "" {
		return s.Echo.StartTLS(s.Config.Echo.ListenAddress, s.Config.Echo.TLSCertFile, s.Config.Echo.TLSKeyFile)
	}

	return s.Echo.Start(s.Config.Echo.ListenAddress)
}

func (s *Server) startSweeper() {
	s.sweeperMu.Lock()
	defer s.sweeperMu.Unlock()
	if s.stopSweeper != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.stopSweeper = cancel
	s.sweeperDone = done
	go func() {
		defer close(done)
		s.Sweeper.Run(ctx)
	}()
}

// stopSweeperAndWait cancels the sweeper and blocks until its loop has returned.
func (s *Server) stopSweeperAndWait(ctx context.Context) error {
	s.sweeperMu.Lock()
	stop, done := s.stopSweeper, s.sweeperDone
	s.stopSweeper, s.sweeperDone = nil, nil
	s.sweeperMu.Unlock()

	if stop == nil {
		return nil
	}
	log.Debug().Msg("Stopping expiry sweeper")
	stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if err := s.stopSweeperAndWait(ctx); err != nil {
		log.Error().Err(err).Msg("Expiry sweeper did not stop in time")
		errs = append(errs, err)
	}

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	if s.Store != nil {
		log.Debug().Msg("Closing store")
		if err := s.Store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
			errs = append(errs, err)
		}
	}

	if s.Redis != nil {
		log.Debug().Msg("Closing redis client")
		if err := s.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			log.Error().Err(err).Msg("Failed to close redis client")
			errs = append(errs, err)
		}
	}

	if s.Eth != nil {
		s.Eth.Close()
	}

	return errs
}
