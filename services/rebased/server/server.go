package server

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MRAlirad/ccip-rebase-token/core/types"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
	"github.com/MRAlirad/ccip-rebase-token/native/rebase"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/journal"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/ledger"
	rbmw "github.com/MRAlirad/ccip-rebase-token/services/rebased/middleware"
)

// Ledger is the subset of ledger.Ledger the API drives.
type Ledger interface {
	Mint(ctx context.Context, caller, to crypto.Address, amount *big.Int, idemKey string) (*ledger.Receipt, error)
	Burn(ctx context.Context, caller, from crypto.Address, amount *big.Int, idemKey string) (*ledger.Receipt, error)
	Transfer(ctx context.Context, caller, to crypto.Address, amount *big.Int, idemKey string) (*ledger.Receipt, error)
	TransferFrom(ctx context.Context, spender, from, to crypto.Address, amount *big.Int, idemKey string) (*ledger.Receipt, error)
	Approve(ctx context.Context, owner, spender crypto.Address, amount *big.Int, idemKey string) error
	Realize(ctx context.Context, account crypto.Address, idemKey string) (*ledger.Receipt, error)
	SetGlobalRate(ctx context.Context, caller crypto.Address, rate *big.Int, idemKey string) error
	Grant(ctx context.Context, caller, account crypto.Address, capability rebase.Capability, idemKey string) error
	Revoke(ctx context.Context, caller, account crypto.Address, capability rebase.Capability, idemKey string) error
	SetPaused(ctx context.Context, caller crypto.Address, paused bool, idemKey string) error

	Account(ctx context.Context, addr crypto.Address) (*rebase.AccountView, error)
	Protocol(ctx context.Context) (*rebase.ProtocolState, error)
	Allowance(ctx context.Context, owner, spender crypto.Address) (*big.Int, error)
	Capabilities(ctx context.Context, account crypto.Address) ([]rebase.Capability, error)
}

// EventLog serves historical events.
type EventLog interface {
	List(ctx context.Context, q journal.Query) ([]journal.Entry, error)
}

// Subscriber serves live events.
type Subscriber interface {
	Subscribe(account string) (<-chan *types.Event, func())
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger  Ledger
	Events  EventLog
	Stream  Subscriber
	Auth    *rbmw.Authenticator
	Limiter *rbmw.RateLimiter
	// Registry receives the HTTP collectors; Gatherer backs /metrics.
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server exposes the ledger over HTTP/JSON.
type Server struct {
	ledger  Ledger
	events  EventLog
	stream  Subscriber
	auth    *rbmw.Authenticator
	limiter *rbmw.RateLimiter
	metrics *rbmw.HTTPMetrics
	gather  prometheus.Gatherer
	logger  *slog.Logger

	router http.Handler
}

// New constructs the HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = rbmw.NewAuthenticator(rbmw.AuthConfig{}, logger)
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rbmw.NewRateLimiter(rbmw.RateLimit{})
	}
	gather := cfg.Gatherer
	if gather == nil {
		gather = prometheus.DefaultGatherer
	}
	srv := &Server{
		ledger:  cfg.Ledger,
		events:  cfg.Events,
		stream:  cfg.Stream,
		auth:    auth,
		limiter: limiter,
		metrics: rbmw.NewHTTPMetrics(cfg.Registry),
		gather:  gather,
		logger:  logger,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(rbmw.Observe(s.metrics, s.logger))

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(s.limiter.Middleware)
			public.Get("/protocol", s.GetProtocol)
			public.Get("/accounts/{address}", s.GetAccount)
			public.Get("/accounts/{address}/balance", s.GetBalance)
			public.Get("/accounts/{address}/principal", s.GetPrincipal)
			public.Get("/accounts/{address}/rate", s.GetRate)
			public.Get("/accounts/{address}/capabilities", s.GetCapabilities)
			public.Get("/allowances/{owner}/{spender}", s.GetAllowance)
			public.Get("/events", s.ListEvents)
			public.Get("/events/ws", s.StreamEvents)
		})
		api.Group(func(protected chi.Router) {
			protected.Use(s.auth.Require)
			protected.Use(s.limiter.Middleware)
			protected.Post("/mint", s.Mint)
			protected.Post("/burn", s.Burn)
			protected.Post("/transfer", s.Transfer)
			protected.Post("/transfer-from", s.TransferFrom)
			protected.Post("/approve", s.Approve)
			protected.Post("/realize", s.Realize)
			protected.Post("/rate", s.SetRate)
			protected.Post("/capabilities/grant", s.GrantCapability)
			protected.Post("/capabilities/revoke", s.RevokeCapability)
			protected.Post("/pause", s.SetPause)
		})
	})

	return otelhttp.NewHandler(r, "rebased")
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
