// Package claims provides application services for the claims system.
package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	infraClaims "github.com/blackms/claimflow/internal/infrastructure/claims"
	"github.com/blackms/claimflow/internal/infrastructure/events"
	"github.com/blackms/claimflow/internal/logging"
)

const tracerName = "claimflow/claims"

// Stores groups the persistence collaborators shared by the services.
type Stores struct {
	Claims     infraClaims.ClaimRepository
	Issues     infraClaims.IssueRepository
	Claimants  infraClaims.ClaimantRepository
	EventStore infraClaims.EventStore
}

// NewInMemoryStores returns stores backed entirely by memory.
func NewInMemoryStores() Stores {
	return Stores{
		Claims:     infraClaims.NewInMemoryClaimRepository(),
		Issues:     infraClaims.NewInMemoryIssueRepository(),
		Claimants:  infraClaims.NewInMemoryClaimantRepository(),
		EventStore: infraClaims.NewInMemoryEventStore(),
	}
}

// Option configures a service.
type Option func(*base)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(b *base) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBus publishes committed events to bus.
func WithBus(bus *events.EventBus) Option {
	return func(b *base) {
		b.bus = bus
	}
}

// WithLocker shares a per-issue locker between services.
func WithLocker(locker *IssueLocker) Option {
	return func(b *base) {
		if locker != nil {
			b.locks = locker
		}
	}
}

// WithCorrelationID tags every emitted event.
func WithCorrelationID(id string) Option {
	return func(b *base) {
		b.correlationID = id
	}
}

// base carries the collaborators shared by ClaimService, WorkStealingService
// and LoadBalancer.
type base struct {
	stores        Stores
	bus           *events.EventBus
	locks         *IssueLocker
	clock         func() time.Time
	logger        *logging.Logger
	tracer        trace.Tracer
	correlationID string
	source        string
}

func newBase(stores Stores, source string, opts []Option) base {
	b := base{
		stores: stores,
		locks:  NewIssueLocker(),
		clock:  time.Now,
		logger: logging.NopLogger(),
		tracer: otel.Tracer(tracerName),
		source: source,
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.WithComponent(source)
	return b
}

func (b *base) now() time.Time {
	return b.clock()
}

func (b *base) startSpan(ctx context.Context, name, issueID string) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("issue.id", issueID)))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		desc := string(domainClaims.CodeOf(err))
		if desc == "" {
			desc = err.Error()
		}
		span.SetStatus(codes.Error, desc)
	}
	span.End()
}

func (b *base) tag(evts []*domainClaims.ClaimEvent) {
	for _, e := range evts {
		e.WithSource(b.source)
		if b.correlationID != "" {
			e.WithCorrelation(b.correlationID)
		}
	}
}

// loadOpenClaim returns the issue's open claim or NOT_CLAIMED.
func (b *base) loadOpenClaim(ctx context.Context, issueID string) (*domainClaims.Claim, error) {
	claim, err := b.stores.Claims.FindByIssueID(ctx, issueID)
	if errors.Is(err, infraClaims.ErrNotFound) {
		return nil, domainClaims.NewClaimError(domainClaims.CodeNotClaimed, "issue %s is not claimed", issueID)
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

func (b *base) loadClaimant(ctx context.Context, id string) (*domainClaims.Claimant, error) {
	claimant, err := b.stores.Claimants.FindByID(ctx, id)
	if errors.Is(err, infraClaims.ErrNotFound) {
		return nil, domainClaims.NewClaimError(domainClaims.CodeClaimantNotFound, "claimant %s not found", id)
	}
	return claimant, err
}

// resolveClaimant prefers the registered record for c.ID and falls back to c.
func (b *base) resolveClaimant(ctx context.Context, c *domainClaims.Claimant) (*domainClaims.Claimant, error) {
	if c == nil || c.ID == "" {
		return nil, domainClaims.NewClaimError(domainClaims.CodeValidationError, "claimant id is required")
	}
	stored, err := b.stores.Claimants.FindByID(ctx, c.ID)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, infraClaims.ErrNotFound) {
		return nil, err
	}
	cp := c.Clone()
	cp.Normalize()
	return cp, nil
}

// commit persists claim over prior and then appends evts. When the append
// fails the prior state is restored so storage and log stay in step. Events
// reach the bus only after both writes succeed.
func (b *base) commit(ctx context.Context, prior, claim *domainClaims.Claim, evts ...*domainClaims.ClaimEvent) error {
	if err := b.stores.Claims.Update(ctx, claim, prior.Version); err != nil {
		if errors.Is(err, infraClaims.ErrVersionConflict) {
			return domainClaims.NewClaimError(domainClaims.CodeConcurrentModification, "claim %s was modified concurrently", claim.ID)
		}
		return fmt.Errorf("failed to update claim: %w", err)
	}

	b.tag(evts)
	if err := b.stores.EventStore.Append(ctx, evts...); err != nil {
		restore := prior.Clone()
		if rerr := b.stores.Claims.Update(ctx, restore, claim.Version); rerr != nil {
			b.logger.Error("failed to restore claim after event append failure",
				"claim_id", claim.ID, "issue_id", claim.IssueID, "error", rerr)
		}
		return fmt.Errorf("failed to append events: %w", err)
	}

	b.publish(ctx, evts...)
	return nil
}

// insert saves a new claim and appends its creation events.
func (b *base) insert(ctx context.Context, claim *domainClaims.Claim, evts ...*domainClaims.ClaimEvent) error {
	if err := b.stores.Claims.Save(ctx, claim); err != nil {
		if errors.Is(err, infraClaims.ErrDuplicate) {
			return domainClaims.NewClaimError(domainClaims.CodeAlreadyClaimed, "issue %s is already claimed", claim.IssueID)
		}
		return fmt.Errorf("failed to save claim: %w", err)
	}

	b.tag(evts)
	if err := b.stores.EventStore.Append(ctx, evts...); err != nil {
		rollback := claim.Clone()
		rollback.SetStatus(domainClaims.StatusReleased, "", b.now())
		rollback.AddNote("", "rolled back: event log unavailable", b.now())
		if rerr := b.stores.Claims.Update(ctx, rollback, claim.Version); rerr != nil {
			b.logger.Error("failed to roll back claim after event append failure",
				"claim_id", claim.ID, "issue_id", claim.IssueID, "error", rerr)
		}
		return fmt.Errorf("failed to append events: %w", err)
	}

	b.publish(ctx, evts...)
	return nil
}

func (b *base) publish(ctx context.Context, evts ...*domainClaims.ClaimEvent) {
	if b.bus == nil {
		return
	}
	b.bus.EmitAll(ctx, evts...)
}

// activeClaimsOf returns the slot-occupying claims held by claimantID.
func (b *base) activeClaimsOf(ctx context.Context, claimantID string) ([]*domainClaims.Claim, error) {
	owned, err := b.stores.Claims.FindByClaimant(ctx, claimantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claims for %s: %w", claimantID, err)
	}
	active := owned[:0]
	for _, c := range owned {
		if c.IsActive() {
			active = append(active, c)
		}
	}
	return active, nil
}
