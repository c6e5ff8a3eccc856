package returns

import (
	"context"
	"log"
	"sync"
	"time"

	"returndesk/backend/internal/crm"
	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/history"
	"returndesk/backend/internal/store"
	"returndesk/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// CRMGateway is the remote invoice API surface the service depends on.
// Satisfied by *crm.Client; faked in tests.
type CRMGateway interface {
	Configured() bool
	SearchInvoices(ctx context.Context, query crm.SearchQuery) ([]crm.Invoice, error)
	CreateInvoice(ctx context.Context, invoice crm.Invoice) (crm.Invoice, error)
}

// Options tune the search windows; zero values fall back to the defaults the
// POS has always used.
type Options struct {
	LocalWindowDays int
	CRMWindowDays   int
	Now             func() time.Time
}

type Service struct {
	repo       store.Repository
	crm        CRMGateway
	history    history.Store
	dispatcher *ReversalDispatcher

	localWindowDays int
	crmWindowDays   int
	now             func() time.Time

	mu             sync.Mutex
	refundResults  map[string]domain.RefundResult
	refundInFlight map[string]chan struct{}
}

func New(repo store.Repository, gateway CRMGateway, historyStore history.Store, opts Options) *Service {
	if opts.LocalWindowDays < 1 {
		opts.LocalWindowDays = 30
	}
	if opts.CRMWindowDays < 1 {
		opts.CRMWindowDays = 365
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:            repo,
		crm:             gateway,
		history:         historyStore,
		dispatcher:      NewReversalDispatcher(repo, gateway),
		localWindowDays: opts.LocalWindowDays,
		crmWindowDays:   opts.CRMWindowDays,
		now:             opts.Now,
		refundResults:   make(map[string]domain.RefundResult),
		refundInFlight:  make(map[string]chan struct{}),
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) ListExchangeHistory(ctx context.Context) ([]domain.ExchangeTransaction, error) {
	return s.history.List(ctx)
}

func (s *Service) ListReturnRecords(ctx context.Context) ([]domain.ReturnRecord, error) {
	return s.repo.ListReturnRecords(ctx)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[returns] WARN: failed to write audit log action=%s entity=%s: %v", action, entityID, err)
	}
}
