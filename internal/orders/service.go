package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fabtrack/fabtrack/internal/shared"
	"github.com/fabtrack/fabtrack/internal/workflow"
)

const (
	// ApprovalModule scopes approval log rows written for orders.
	ApprovalModule = "orders"
	// UnknownClientName is used when the directory cannot name a client.
	UnknownClientName = "Unknown Client"

	designKeyPrefix = "designs/"
)

// MirrorRequest is the row appended to the external order sheet.
type MirrorRequest struct {
	OrderID     string
	ClientName  string
	ClientEmail string
	CreatedAt   time.Time
	Stage       workflow.Stage
	Status      workflow.Status
}

// Mirror forwards new orders to the external sheet.
type Mirror interface {
	MirrorOrder(ctx context.Context, req MirrorRequest) error
}

// ClientNamer resolves a client's display name from the directory. Unknown
// emails yield shared.ErrNotFound.
type ClientNamer interface {
	ClientName(ctx context.Context, email string) (string, error)
}

// ApprovalStore persists the sign-off history.
type ApprovalStore interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref string) ([]shared.ApprovalLog, error)
}

// AuditTrail records administrative actions.
type AuditTrail interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyGuard deduplicates order creation requests.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// DesignStorage hands out presigned URLs for design deliverables.
type DesignStorage interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

// TransitionObserver is told about every stage change.
type TransitionObserver interface {
	ObserveTransition(from, to workflow.Stage, override bool)
}

// ServiceConfig wires a Service. Only Store is mandatory.
type ServiceConfig struct {
	Store       DocumentStore
	Cache       *Cache
	Mirror      Mirror
	Directory   ClientNamer
	Approvals   ApprovalStore
	Audit       AuditTrail
	Idempotency IdempotencyGuard
	Designs     DesignStorage
	Metrics     TransitionObserver
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service orchestrates the workflow engine against the document store.
type Service struct {
	store       DocumentStore
	cache       *Cache
	mirror      Mirror
	directory   ClientNamer
	approvals   ApprovalStore
	audit       AuditTrail
	idempotency IdempotencyGuard
	designs     DesignStorage
	metrics     TransitionObserver
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:       cfg.Store,
		cache:       cache,
		mirror:      cfg.Mirror,
		directory:   cfg.Directory,
		approvals:   cfg.Approvals,
		audit:       cfg.Audit,
		idempotency: cfg.Idempotency,
		designs:     cfg.Designs,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         clock,
	}
}

// Cache exposes the in-memory collection.
func (s *Service) Cache() *Cache {
	return s.cache
}

// FetchAll returns every order for the admin and only their own for a client.
func (s *Service) FetchAll(ctx context.Context, p shared.Principal) ([]workflow.Order, error) {
	filter := Filter{}
	switch p.Role {
	case shared.RoleAdmin:
	case shared.RoleClient:
		if p.Email == "" {
			return nil, fmt.Errorf("%w: client identity missing", shared.ErrForbidden)
		}
		filter.ClientEmail = p.Email
	default:
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrForbidden, p.Role)
	}
	records, err := s.store.List(ctx, filter)
	if err != nil {
		s.logStoreFailure("list orders", "", err)
		return nil, err
	}
	orders := make([]workflow.Order, 0, len(records))
	for _, rec := range records {
		o, err := Decode(rec.ID, rec.Data)
		if err != nil {
			s.logger.Warn("skip undecodable order", slog.String("order_id", rec.ID), slog.Any("error", err))
			continue
		}
		orders = append(orders, o)
	}
	if p.IsAdmin() {
		s.cache.Replace(orders)
	}
	return orders, nil
}

// Get returns one order the principal is allowed to see.
func (s *Service) Get(ctx context.Context, p shared.Principal, id string) (workflow.Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return workflow.Order{}, err
	}
	if err := canView(p, o); err != nil {
		return workflow.Order{}, err
	}
	return o, nil
}

// Create opens a new order for clientEmail. The sheet mirror is best effort.
func (s *Service) Create(ctx context.Context, p shared.Principal, clientEmail, idempotencyKey string) (workflow.Order, error) {
	if err := requireAdmin(p); err != nil {
		return workflow.Order{}, err
	}
	clientEmail = strings.TrimSpace(clientEmail)
	if clientEmail == "" {
		return workflow.Order{}, fmt.Errorf("%w: client email is required", shared.ErrValidation)
	}
	name, err := s.resolveClient(ctx, clientEmail)
	if err != nil {
		return workflow.Order{}, err
	}
	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "orders.create"); err != nil {
			return workflow.Order{}, err
		}
	}

	o := workflow.New(clientEmail, s.now())
	rec, err := s.store.Create(ctx, Encode(o))
	if err != nil {
		s.logStoreFailure("create order", "", err)
		if idempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return workflow.Order{}, err
	}
	o.ID = rec.ID
	s.cache.Put(o)
	s.logger.Info("order created", slog.String("order_id", o.ID), slog.String("client", clientEmail))

	s.mirrorOrder(ctx, o, name)
	return o, nil
}

// resolveClient checks that email belongs to a directory client and returns
// its display name.
func (s *Service) resolveClient(ctx context.Context, email string) (string, error) {
	if s.directory == nil {
		return UnknownClientName, nil
	}
	name, err := s.directory.ClientName(ctx, email)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return "", fmt.Errorf("%w: %s is not in the client directory", shared.ErrValidation, email)
	case err != nil:
		s.logger.Error("resolve client", slog.String("client", email), slog.Any("error", err))
		return "", err
	case name == "":
		return UnknownClientName, nil
	}
	return name, nil
}

func (s *Service) mirrorOrder(ctx context.Context, o workflow.Order, name string) {
	if s.mirror == nil {
		return
	}
	err := s.mirror.MirrorOrder(ctx, MirrorRequest{
		OrderID:     o.ID,
		ClientName:  name,
		ClientEmail: o.ClientEmail,
		CreatedAt:   o.CreatedAt,
		Stage:       o.Stage,
		Status:      o.Status,
	})
	if err != nil {
		s.logger.Warn("mirror order to sheet", slog.String("order_id", o.ID), slog.Any("error", err))
	}
}

// UpdateQuotation sets the quotation link.
func (s *Service) UpdateQuotation(ctx context.Context, p shared.Principal, id, link string) (workflow.Order, error) {
	o, err := s.adminEdit(ctx, p, id, func(o workflow.Order, now time.Time) (workflow.Order, error) {
		return workflow.EditQuotation(o, link, now)
	})
	if err == nil {
		s.recordApproval(ctx, p, o.ID, shared.ApprovalSubmit, "quotation")
	}
	return o, err
}

// UpdateMaterial merges material fields.
func (s *Service) UpdateMaterial(ctx context.Context, p shared.Principal, id string, patch workflow.MaterialPatch) (workflow.Order, error) {
	return s.adminEdit(ctx, p, id, func(o workflow.Order, now time.Time) (workflow.Order, error) {
		return workflow.EditMaterial(o, patch, now)
	})
}

// UpdateProduction1 merges production (part 1) fields.
func (s *Service) UpdateProduction1(ctx context.Context, p shared.Principal, id string, patch workflow.Production1Patch) (workflow.Order, error) {
	o, err := s.adminEdit(ctx, p, id, func(o workflow.Order, now time.Time) (workflow.Order, error) {
		return workflow.EditProduction1(o, patch, now)
	})
	if err == nil && patch.Design != nil {
		s.recordApproval(ctx, p, o.ID, shared.ApprovalSubmit, "design")
	}
	return o, err
}

// UpdateProduction2 merges production (part 2) fields.
func (s *Service) UpdateProduction2(ctx context.Context, p shared.Principal, id string, patch workflow.Production2Patch) (workflow.Order, error) {
	return s.adminEdit(ctx, p, id, func(o workflow.Order, now time.Time) (workflow.Order, error) {
		return workflow.EditProduction2(o, patch, now)
	})
}

// UpdatePainting merges painting fields.
func (s *Service) UpdatePainting(ctx context.Context, p shared.Principal, id string, patch workflow.PaintingPatch) (workflow.Order, error) {
	return s.adminEdit(ctx, p, id, func(o workflow.Order, now time.Time) (workflow.Order, error) {
		return workflow.EditPainting(o, patch, now)
	})
}

// UpdateDeliveryDate proposes a delivery date.
func (s *Service) UpdateDeliveryDate(ctx context.Context, p shared.Principal, id, date string) (workflow.Order, error) {
	o, err := s.adminEdit(ctx, p, id, func(o workflow.Order, now time.Time) (workflow.Order, error) {
		return workflow.EditDeliveryDate(o, date, now)
	})
	if err == nil {
		s.recordApproval(ctx, p, o.ID, shared.ApprovalSubmit, "delivery-date")
	}
	return o, err
}

// UpdateDeliveryDetails records loading and transport details.
func (s *Service) UpdateDeliveryDetails(ctx context.Context, p shared.Principal, id string, patch workflow.DeliveryDetailsPatch) (workflow.Order, error) {
	return s.adminEdit(ctx, p, id, func(o workflow.Order, now time.Time) (workflow.Order, error) {
		return workflow.EditDeliveryDetails(o, patch, now)
	})
}

// Decide applies the owning client's answer.
func (s *Service) Decide(ctx context.Context, p shared.Principal, id string, kind workflow.DecisionKind, value bool) (workflow.Order, workflow.Outcome, error) {
	if p.IsAdmin() {
		return workflow.Order{}, workflow.Outcome{}, fmt.Errorf("%w: administrators answer for clients through an override", shared.ErrForbidden)
	}
	return s.decide(ctx, p, id, workflow.DecisionRequest{Kind: kind, Value: value})
}

// CounterProposeDeliveryDate records the owning client's own delivery date
// after they declined the administrator's proposal.
func (s *Service) CounterProposeDeliveryDate(ctx context.Context, p shared.Principal, id, date string) (workflow.Order, error) {
	if p.IsAdmin() {
		return workflow.Order{}, fmt.Errorf("%w: administrators propose dates through the delivery date update", shared.ErrForbidden)
	}
	before, err := s.load(ctx, id)
	if err != nil {
		return workflow.Order{}, err
	}
	if !p.Owns(before.ClientEmail) {
		return workflow.Order{}, fmt.Errorf("%w: order %s belongs to another client", shared.ErrForbidden, id)
	}
	after, err := workflow.CounterProposeDeliveryDate(before, date, s.now())
	if err != nil {
		return before, err
	}
	if err := s.persist(ctx, before, after); err != nil {
		return before, err
	}
	s.recordApproval(ctx, p, id, shared.ApprovalApprove, "delivery-date-counter")
	s.logger.Info("delivery date counter-proposed", slog.String("order_id", id), slog.String("date", after.Delivery.Date))
	return after, nil
}

// Override applies an answer on the client's behalf. It is recorded and
// audited as an override.
func (s *Service) Override(ctx context.Context, p shared.Principal, id string, kind workflow.DecisionKind, value bool) (workflow.Order, workflow.Outcome, error) {
	if err := requireAdmin(p); err != nil {
		return workflow.Order{}, workflow.Outcome{}, err
	}
	return s.decide(ctx, p, id, workflow.DecisionRequest{Kind: kind, Value: value, Override: true})
}

func (s *Service) decide(ctx context.Context, p shared.Principal, id string, req workflow.DecisionRequest) (workflow.Order, workflow.Outcome, error) {
	before, err := s.load(ctx, id)
	if err != nil {
		return workflow.Order{}, workflow.Outcome{}, err
	}
	if !req.Override && !p.Owns(before.ClientEmail) {
		return workflow.Order{}, workflow.Outcome{}, fmt.Errorf("%w: order %s belongs to another client", shared.ErrForbidden, id)
	}
	after, outcome, err := workflow.ApplyDecision(before, req)
	if err != nil {
		return before, outcome, err
	}
	if err := s.persist(ctx, before, after); err != nil {
		return before, outcome, err
	}

	action := shared.ApprovalFor(req.Value, req.Override)
	s.recordApproval(ctx, p, id, action, string(req.Kind))
	if req.Override {
		s.recordAudit(ctx, p, "order.override", id, map[string]any{
			"kind":     string(req.Kind),
			"value":    req.Value,
			"advanced": outcome.Advanced,
			"from":     string(outcome.From),
			"to":       string(outcome.To),
		})
	}
	if outcome.Advanced {
		s.observe(outcome.From, outcome.To, req.Override)
	}
	s.logger.Info("order decision",
		slog.String("order_id", id),
		slog.String("kind", string(req.Kind)),
		slog.Bool("value", req.Value),
		slog.Bool("override", req.Override),
		slog.String("stage", string(after.Stage)))
	return after, outcome, nil
}

// Advance moves the order one stage forward when its exit condition holds.
func (s *Service) Advance(ctx context.Context, p shared.Principal, id string) (workflow.Order, error) {
	if err := requireAdmin(p); err != nil {
		return workflow.Order{}, err
	}
	before, err := s.load(ctx, id)
	if err != nil {
		return workflow.Order{}, err
	}
	after, err := workflow.Advance(before)
	if err != nil {
		return before, err
	}
	if err := s.persist(ctx, before, after); err != nil {
		return before, err
	}
	s.observe(before.Stage, after.Stage, false)
	s.recordAudit(ctx, p, "order.advance", id, map[string]any{"from": string(before.Stage), "to": string(after.Stage)})
	return after, nil
}

// Delete hard-deletes an order.
func (s *Service) Delete(ctx context.Context, p shared.Principal, id string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.logStoreFailure("delete order", id, err)
		return err
	}
	s.cache.Remove(id)
	s.recordAudit(ctx, p, "order.delete", id, nil)
	return nil
}

// History lists the sign-off log of an order.
func (s *Service) History(ctx context.Context, p shared.Principal, id string) ([]shared.ApprovalLog, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	logs, err := s.approvals.List(ctx, ApprovalModule, id)
	if err != nil {
		return nil, fmt.Errorf("%w: approval history: %w", shared.ErrBackingService, err)
	}
	return logs, nil
}

// DesignUpload is a presigned slot for a design deliverable.
type DesignUpload struct {
	Key       string `json:"key"`
	UploadURL string `json:"uploadUrl"`
}

// DesignUploadURL reserves an object key and returns a presigned PUT for it.
// The key is stored on the order by a later production1 update.
func (s *Service) DesignUploadURL(ctx context.Context, p shared.Principal, id, filename, contentType string) (DesignUpload, error) {
	if err := requireAdmin(p); err != nil {
		return DesignUpload{}, err
	}
	if s.designs == nil {
		return DesignUpload{}, fmt.Errorf("%w: design storage not configured", shared.ErrBackingService)
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return DesignUpload{}, err
	}
	if !o.Stage.Reached(workflow.StageProduction1) {
		return DesignUpload{}, fmt.Errorf("%w: designs are uploaded from %s onwards", shared.ErrPreconditionNotMet, workflow.StageProduction1.DisplayName())
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return DesignUpload{}, fmt.Errorf("%w: filename is required", shared.ErrValidation)
	}
	key := designKeyPrefix + o.ID + "/" + uuid.NewString() + "-" + name
	url, err := s.designs.PresignUpload(ctx, key, contentType)
	if err != nil {
		return DesignUpload{}, fmt.Errorf("%w: presign upload: %w", shared.ErrBackingService, err)
	}
	return DesignUpload{Key: key, UploadURL: url}, nil
}

// DesignURL returns a link to the order's design deliverable.
func (s *Service) DesignURL(ctx context.Context, p shared.Principal, id string) (string, error) {
	o, err := s.Get(ctx, p, id)
	if err != nil {
		return "", err
	}
	if o.Production1 == nil || o.Production1.Design == "" {
		return "", fmt.Errorf("order %s design: %w", id, shared.ErrNotFound)
	}
	design := o.Production1.Design
	if !strings.HasPrefix(design, designKeyPrefix) {
		return design, nil
	}
	if s.designs == nil {
		return "", fmt.Errorf("%w: design storage not configured", shared.ErrBackingService)
	}
	url, err := s.designs.PresignDownload(ctx, design)
	if err != nil {
		return "", fmt.Errorf("%w: presign download: %w", shared.ErrBackingService, err)
	}
	return url, nil
}

type editFunc func(o workflow.Order, now time.Time) (workflow.Order, error)

func (s *Service) adminEdit(ctx context.Context, p shared.Principal, id string, edit editFunc) (workflow.Order, error) {
	if err := requireAdmin(p); err != nil {
		return workflow.Order{}, err
	}
	before, err := s.load(ctx, id)
	if err != nil {
		return workflow.Order{}, err
	}
	after, err := edit(before, s.now())
	if err != nil {
		return before, err
	}
	if err := s.persist(ctx, before, after); err != nil {
		return before, err
	}
	return after, nil
}

// persist writes only the fields that changed and mirrors the result into
// the cache once the store accepted it.
func (s *Service) persist(ctx context.Context, before, after workflow.Order) error {
	patch := Diff(Encode(before), Encode(after))
	if len(patch) > 0 {
		if err := s.store.Merge(ctx, after.ID, patch); err != nil {
			s.logStoreFailure("merge order", after.ID, err)
			return err
		}
	}
	s.cache.Put(after)
	return nil
}

func (s *Service) load(ctx context.Context, id string) (workflow.Order, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.cache.Remove(id)
		}
		s.logStoreFailure("load order", id, err)
		return workflow.Order{}, err
	}
	return Decode(rec.ID, rec.Data)
}

func (s *Service) logStoreFailure(op, id string, err error) {
	if errors.Is(err, shared.ErrBackingService) {
		s.logger.Error(op, slog.String("order_id", id), slog.Any("error", err))
	}
}

func (s *Service) observe(from, to workflow.Stage, override bool) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(from, to, override)
	}
}

func (s *Service) recordApproval(ctx context.Context, p shared.Principal, id string, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module: ApprovalModule,
		RefID:  id,
		Actor:  p.Email,
		Action: action,
		Note:   note,
		At:     s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("record approval", slog.String("order_id", id), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, p shared.Principal, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    p.Email,
		Action:   action,
		Entity:   "order",
		EntityID: id,
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("order_id", id), slog.String("action", action), slog.Any("error", err))
	}
}

func requireAdmin(p shared.Principal) error {
	if !p.IsAdmin() {
		return fmt.Errorf("%w: administrator only", shared.ErrForbidden)
	}
	return nil
}

func canView(p shared.Principal, o workflow.Order) error {
	if p.IsAdmin() || p.Owns(o.ClientEmail) {
		return nil
	}
	return fmt.Errorf("%w: order %s belongs to another client", shared.ErrForbidden, o.ID)
}
