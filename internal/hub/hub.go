// Package hub is the single owning service for all ledger state. Every public
// method takes the hub mutex for its whole duration: one call is one
// transaction, and two calls never interleave against the same state.
package hub

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"flowmarket/internal/codestore"
	"flowmarket/internal/ledger"
	"flowmarket/internal/repository"
	"flowmarket/pkg/models"
)

// Logger is the logging interface the hub expects, compatible with the
// application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// StrategyFactory constructs strategy instances for freshly cloned tokens.
// The hub never inspects what a factory builds.
type StrategyFactory interface {
	New(rec *models.WorkflowRecord) (models.Strategy, error)
}

// NoopFactory builds no-op strategies. Used by the seed tool and tests.
type NoopFactory struct{}

func (NoopFactory) New(rec *models.WorkflowRecord) (models.Strategy, error) {
	return models.NewNoopStrategy(rec.ID, rec.Name, rec.Category, rec.ConfigDefaults), nil
}

// Config wires the hub's collaborators. Store, Events, and Logger are
// optional.
type Config struct {
	Fees            ledger.FeePolicy
	Code            codestore.Store
	Factory         StrategyFactory
	Store           repository.Store
	Events          ledger.Sink
	Logger          Logger
	LowBalanceFloor decimal.Decimal
}

// Hub owns the registry, the vault, every container, the marketplace, and the
// pending-ticket index.
type Hub struct {
	mu sync.Mutex

	registry   *ledger.Registry
	vault      *ledger.Vault
	market     *ledger.Marketplace
	containers map[models.AccountID]*ledger.Container
	pending    map[string]*ledger.Ticket

	code    codestore.Store
	fees    ledger.FeePolicy
	factory StrategyFactory
	store   repository.Store
	events  ledger.Sink
	logger  Logger
	floor   decimal.Decimal
	detach  func(models.AccountID, models.WorkflowID)

	clones    metric.Int64Counter
	purchases metric.Int64Counter
}

// New builds a hub from the given configuration.
func New(cfg Config) (*Hub, error) {
	if cfg.Code == nil {
		return nil, fmt.Errorf("hub requires a code store")
	}
	if cfg.Factory == nil {
		cfg.Factory = NoopFactory{}
	}
	if cfg.Events == nil {
		cfg.Events = ledger.NopSink
	}

	meter := otel.Meter("flowmarket/hub")
	clones, err := meter.Int64Counter("flowmarket.clones",
		metric.WithDescription("Successful workflow clones"))
	if err != nil {
		return nil, fmt.Errorf("failed to create clone counter: %w", err)
	}
	purchases, err := meter.Int64Counter("flowmarket.purchases",
		metric.WithDescription("Successful marketplace purchases"))
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase counter: %w", err)
	}

	return &Hub{
		registry:   ledger.NewRegistry(cfg.Code),
		vault:      ledger.NewVault(),
		market:     ledger.NewMarketplace(),
		containers: make(map[models.AccountID]*ledger.Container),
		pending:    make(map[string]*ledger.Ticket),
		code:       cfg.Code,
		fees:       cfg.Fees,
		factory:    cfg.Factory,
		store:      cfg.Store,
		events:     cfg.Events,
		logger:     cfg.Logger,
		floor:      cfg.LowBalanceFloor,
		clones:     clones,
		purchases:  purchases,
	}, nil
}

// SetDetach installs the scheduler's detach hook, called once the owner's
// token has moved out of its container.
func (h *Hub) SetDetach(detach func(models.AccountID, models.WorkflowID)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach = detach
}

// EnsureAccount provisions a container for the account if it has none.
func (h *Hub) EnsureAccount(account models.AccountID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.container(account)
}

// container returns the account's container, provisioning on first use.
// Callers hold the mutex.
func (h *Hub) container(account models.AccountID) *ledger.Container {
	c, ok := h.containers[account]
	if !ok {
		c = ledger.NewContainer(account)
		h.containers[account] = c
	}
	return c
}

// mirror logs instead of failing: the in-memory ledger is authoritative and a
// mirror hiccup must not abort a settled call.
func (h *Hub) mirror(op string, err error) {
	if err != nil && h.logger != nil {
		h.logger.Error("persistence mirror failed", "op", op, "error", err)
	}
}

// Credit adds funds to an account's vault balance.
func (h *Hub) Credit(account models.AccountID, amount decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.container(account)
	h.vault.Credit(account, amount)
}

// Balance reports an account's vault balance.
func (h *Hub) Balance(account models.AccountID) decimal.Decimal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.vault.Balance(account)
}
