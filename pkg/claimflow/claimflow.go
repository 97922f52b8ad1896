// Package claimflow provides the public API for the claims scheduler.
//
// A Coordinator wires the claim service, the work-stealing service and the
// load balancer to a shared event bus and the storage backend named in the
// configuration.
//
// Example:
//
//	coord, err := claimflow.Open(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer coord.Close()
//
//	coder := claimflow.NewAgent("coder-1", "Coder", claimflow.AgentCoder, "go")
//	if err := coord.Claims().RegisterClaimant(ctx, coder); err != nil {
//	    log.Fatal(err)
//	}
package claimflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appClaims "github.com/blackms/claimflow/internal/application/claims"
	"github.com/blackms/claimflow/internal/config"
	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	infraClaims "github.com/blackms/claimflow/internal/infrastructure/claims"
	"github.com/blackms/claimflow/internal/infrastructure/events"
	"github.com/blackms/claimflow/internal/logging"
)

// Re-export types for public API
type (
	Claim             = domainClaims.Claim
	Claimant          = domainClaims.Claimant
	Issue             = domainClaims.Issue
	ClaimStatus       = domainClaims.ClaimStatus
	AgentType         = domainClaims.AgentType
	StealReason       = domainClaims.StealReason
	ClaimEvent        = domainClaims.ClaimEvent
	ClaimEventType    = domainClaims.ClaimEventType
	EventFilter       = domainClaims.EventFilter
	ClaimError        = domainClaims.ClaimError
	ErrorCode         = domainClaims.ErrorCode
	HandoffRecord     = domainClaims.HandoffRecord
	StealResult       = domainClaims.StealResult
	ContestResolution = domainClaims.ContestResolution
	StealCandidate    = domainClaims.StealCandidate
	AutoMarkResult    = domainClaims.AutoMarkResult
	AgentLoad         = domainClaims.AgentLoad

	ClaimService        = appClaims.ClaimService
	WorkStealingService = appClaims.WorkStealingService
	LoadBalancer        = appClaims.LoadBalancer
	RebalanceResult     = appClaims.RebalanceResult
	SwarmLoad           = appClaims.SwarmLoad
	StealStats          = appClaims.StealStats

	ClaimSummary  = infraClaims.ClaimSummary
	ClaimantStats = infraClaims.ClaimantStats
	SystemStats   = infraClaims.SystemStats
)

// Claim status constants
const (
	StatusActive         = domainClaims.StatusActive
	StatusPaused         = domainClaims.StatusPaused
	StatusBlocked        = domainClaims.StatusBlocked
	StatusPendingHandoff = domainClaims.StatusPendingHandoff
	StatusInReview       = domainClaims.StatusInReview
	StatusStealable      = domainClaims.StatusStealable
	StatusCompleted      = domainClaims.StatusCompleted
	StatusReleased       = domainClaims.StatusReleased
	StatusExpired        = domainClaims.StatusExpired
)

// Agent type constants
const (
	AgentCoder      = domainClaims.AgentCoder
	AgentTester     = domainClaims.AgentTester
	AgentReviewer   = domainClaims.AgentReviewer
	AgentResearcher = domainClaims.AgentResearcher
	AgentArchitect  = domainClaims.AgentArchitect
	AgentSecurity   = domainClaims.AgentSecurity
	AgentDevOps     = domainClaims.AgentDevOps
	AgentDocumenter = domainClaims.AgentDocumenter
	AgentPlanner    = domainClaims.AgentPlanner
	AgentAnalyst    = domainClaims.AgentAnalyst
)

// Constructors
var (
	NewAgent    = domainClaims.NewAgent
	NewHuman    = domainClaims.NewHuman
	NewIssue    = domainClaims.NewIssue
	CodeOf      = domainClaims.CodeOf
	ParseStatus = domainClaims.ParseStatus
)

// Board is a point-in-time view of the read-model projections.
type Board struct {
	Claims    []*ClaimSummary  `json:"claims" yaml:"claims"`
	Claimants []*ClaimantStats `json:"claimants" yaml:"claimants"`
	System    SystemStats      `json:"system" yaml:"system"`
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	logger *logging.Logger
	clock  func() time.Time
}

// WithLogger overrides the logger built from the logging config section.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the time source of every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// Coordinator owns the storage backend, the event bus and the services
// built on top of them.
type Coordinator struct {
	mu     sync.Mutex
	closed bool

	config   *config.Config
	logger   *logging.Logger
	ownsLog  bool
	stores   appClaims.Stores
	bus      *events.EventBus
	claims   *appClaims.ClaimService
	stealing *appClaims.WorkStealingService
	balancer *appClaims.LoadBalancer

	projections *infraClaims.ProjectionManager
	summaries   *infraClaims.ClaimSummaryProjection
	claimants   *infraClaims.ClaimantStatsProjection
	system      *infraClaims.SystemStatsProjection

	closers []func() error
}

// Open builds a Coordinator from cfg. A nil cfg uses config.Default().
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	own := *cfg
	c := &Coordinator{config: &own, logger: o.logger}
	if c.logger == nil {
		logger, err := logging.NewFileLogger(cfg.Logging.Dir, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		c.logger = logger
		c.ownsLog = true
	}

	if err := c.openStores(ctx); err != nil {
		c.abort()
		return nil, err
	}

	c.bus = events.New(
		events.WithHistorySize(cfg.Events.HistorySize),
		events.WithLogger(c.logger),
	)

	c.summaries = infraClaims.NewClaimSummaryProjection()
	c.claimants = infraClaims.NewClaimantStatsProjection()
	c.system = infraClaims.NewSystemStatsProjection()
	c.projections = infraClaims.NewProjectionManager(c.stores.EventStore)
	c.projections.Register(c.summaries)
	c.projections.Register(c.claimants)
	c.projections.Register(c.system)
	if err := c.projections.RebuildAll(ctx); err != nil {
		c.abort()
		return nil, fmt.Errorf("rebuild projections: %w", err)
	}
	c.bus.SubscribeAll(c.projections.Handle)

	svcOpts := []appClaims.Option{
		appClaims.WithBus(c.bus),
		appClaims.WithLocker(appClaims.NewIssueLocker()),
		appClaims.WithLogger(c.logger),
	}
	if o.clock != nil {
		svcOpts = append(svcOpts, appClaims.WithClock(o.clock))
	}
	c.claims = appClaims.NewClaimService(c.stores, svcOpts...)
	c.stealing = appClaims.NewWorkStealingService(c.stores, cfg.Stealing, svcOpts...)
	c.balancer = appClaims.NewLoadBalancer(c.stores, cfg.LoadBalance, svcOpts...)

	c.logger.Info("coordinator opened", "driver", cfg.Storage.Driver)
	return c, nil
}

func (c *Coordinator) openStores(ctx context.Context) error {
	storage := c.config.Storage
	switch storage.Driver {
	case config.DriverMemory:
		c.stores = appClaims.NewInMemoryStores()
		c.closers = append(c.closers, c.stores.EventStore.Close)
		return nil

	case config.DriverSQLite, config.DriverPostgres:
		dialect := infraClaims.DialectSQLite
		if storage.Driver == config.DriverPostgres {
			dialect = infraClaims.DialectPostgres
		}
		store, err := infraClaims.OpenSQLStore(ctx, infraClaims.SQLStoreConfig{
			Dialect: dialect,
			Path:    storage.Path,
			DSN:     storage.DSN,
		})
		if err != nil {
			return err
		}
		c.closers = append(c.closers, store.Close)
		c.stores = appClaims.Stores{
			Claims:     store.Claims(),
			Issues:     store.Issues(),
			Claimants:  store.Claimants(),
			EventStore: store.Events(),
		}
		return nil

	case config.DriverPgx:
		store, err := infraClaims.OpenSQLStore(ctx, infraClaims.SQLStoreConfig{
			Dialect: infraClaims.DialectPostgres,
			DSN:     storage.DSN,
		})
		if err != nil {
			return err
		}
		c.closers = append(c.closers, store.Close)
		eventStore, err := infraClaims.NewPgxEventStore(ctx, storage.DSN)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, eventStore.Close)
		c.stores = appClaims.Stores{
			Claims:     store.Claims(),
			Issues:     store.Issues(),
			Claimants:  store.Claimants(),
			EventStore: eventStore,
		}
		return nil
	}
	return fmt.Errorf("unsupported storage driver %q", storage.Driver)
}

// Config returns a copy of the current configuration.
func (c *Coordinator) Config() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.config
}

// Logger returns the coordinator's logger.
func (c *Coordinator) Logger() *logging.Logger {
	return c.logger
}

// Claims returns the claim service.
func (c *Coordinator) Claims() *ClaimService {
	return c.claims
}

// Stealing returns the work-stealing service.
func (c *Coordinator) Stealing() *WorkStealingService {
	return c.stealing
}

// Balancer returns the load balancer.
func (c *Coordinator) Balancer() *LoadBalancer {
	return c.balancer
}

// Bus returns the event bus every service publishes to.
func (c *Coordinator) Bus() *events.EventBus {
	return c.bus
}

// EventStore returns the append-only claim event log.
func (c *Coordinator) EventStore() infraClaims.EventStore {
	return c.stores.EventStore
}

// Board snapshots the projections.
func (c *Coordinator) Board() Board {
	return Board{
		Claims:    c.summaries.GetAll(),
		Claimants: c.claimants.GetAll(),
		System:    c.system.Get(),
	}
}

// Apply swaps in the runtime-tunable sections of cfg: stealing, loadbalance
// and maintenance. Other sections only take effect in a new Coordinator.
func (c *Coordinator) Apply(cfg *config.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stealing.SetConfig(cfg.Stealing)
	c.balancer.SetConfig(cfg.LoadBalance)
	c.config.Stealing = cfg.Stealing
	c.config.LoadBalance = cfg.LoadBalance
	c.config.Maintenance = cfg.Maintenance
}

// Close shuts down the bus and the storage backend. Closing twice is a no-op.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Close()
	}
	err := c.closeAll()
	c.logger.Info("coordinator closed")
	if c.ownsLog {
		err = errors.Join(err, c.logger.Close())
	}
	return err
}

// abort releases whatever Open had acquired before failing.
func (c *Coordinator) abort() {
	c.closeAll()
	if c.ownsLog {
		c.logger.Close()
	}
}

func (c *Coordinator) closeAll() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
