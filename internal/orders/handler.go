package orders

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/fabtrack/fabtrack/internal/platform/httpx"
	"github.com/fabtrack/fabtrack/internal/shared"
	"github.com/fabtrack/fabtrack/internal/workflow"
)

// IdempotencyHeader deduplicates order creation.
const IdempotencyHeader = "Idempotency-Key"

const (
	decisionRateLimit  = 30
	decisionRateWindow = time.Minute
)

// Handler exposes the order workflow over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers order endpoints. Callers mount it behind an
// authentication guard.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(decisionRateLimit, decisionRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "slow down")
		}),
	)

	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.delete)
		r.Get("/history", h.history)
		r.Get("/design", h.design)
		r.Post("/design/upload", h.designUpload)

		r.Put("/quotation", h.updateQuotation)
		r.Put("/material", h.updateMaterial)
		r.Put("/production1", h.updateProduction1)
		r.Put("/production2", h.updateProduction2)
		r.Put("/painting", h.updatePainting)
		r.Put("/delivery/date", h.updateDeliveryDate)
		r.Put("/delivery/details", h.updateDeliveryDetails)
		r.Post("/advance", h.advance)

		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/decisions/{kind}", h.decide)
			gr.Post("/overrides/{kind}", h.override)
			gr.Post("/delivery/counter-proposal", h.counterProposeDeliveryDate)
		})
	})
}

// OrderView is the wire shape of an order.
type OrderView struct {
	workflow.Order
	StageName  string `json:"stageName"`
	Progress   int    `json:"progress"`
	CanAdvance bool   `json:"canAdvance"`
}

// NewOrderView decorates o with its derived fields.
func NewOrderView(o workflow.Order) OrderView {
	return OrderView{
		Order:      o,
		StageName:  o.Stage.DisplayName(),
		Progress:   o.Stage.Progress(),
		CanAdvance: workflow.CanAdvance(o),
	}
}

// NewOrderViews decorates a list of orders.
func NewOrderViews(orders []workflow.Order) []OrderView {
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrderView(o))
	}
	return out
}

type createRequest struct {
	ClientEmail string `json:"clientEmail" validate:"required,email"`
}

type quotationRequest struct {
	Link string `json:"link" validate:"required,url"`
}

type deliveryDateRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type decisionRequest struct {
	Value *bool `json:"value" validate:"required"`
}

type designUploadRequest struct {
	Filename    string `json:"filename" validate:"required,max=200"`
	ContentType string `json:"contentType" validate:"omitempty,max=100"`
}

type decisionResponse struct {
	Order    OrderView `json:"order"`
	Advanced bool      `json:"advanced"`
	From     string    `json:"from"`
	To       string    `json:"to"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	orders, err := h.service.FetchAll(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewOrderViews(orders))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	o, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewOrderView(o))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	o, err := h.service.Create(r.Context(), p, req.ClientEmail, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID)
	httpx.JSON(w, http.StatusCreated, NewOrderView(o))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	logs, err := h.service.History(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) design(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	url, err := h.service.DesignURL(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) designUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req designUploadRequest
	if !h.decode(w, r, &req) {
		return
	}
	upload, err := h.service.DesignUploadURL(r.Context(), p, chi.URLParam(r, "id"), req.Filename, req.ContentType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, upload)
}

func (h *Handler) updateQuotation(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req quotationRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondOrder(w, r)(h.service.UpdateQuotation(r.Context(), p, chi.URLParam(r, "id"), req.Link))
}

func (h *Handler) updateMaterial(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var patch workflow.MaterialPatch
	if !h.decode(w, r, &patch) {
		return
	}
	h.respondOrder(w, r)(h.service.UpdateMaterial(r.Context(), p, chi.URLParam(r, "id"), patch))
}

func (h *Handler) updateProduction1(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var patch workflow.Production1Patch
	if !h.decode(w, r, &patch) {
		return
	}
	h.respondOrder(w, r)(h.service.UpdateProduction1(r.Context(), p, chi.URLParam(r, "id"), patch))
}

func (h *Handler) updateProduction2(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var patch workflow.Production2Patch
	if !h.decode(w, r, &patch) {
		return
	}
	h.respondOrder(w, r)(h.service.UpdateProduction2(r.Context(), p, chi.URLParam(r, "id"), patch))
}

func (h *Handler) updatePainting(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var patch workflow.PaintingPatch
	if !h.decode(w, r, &patch) {
		return
	}
	h.respondOrder(w, r)(h.service.UpdatePainting(r.Context(), p, chi.URLParam(r, "id"), patch))
}

func (h *Handler) updateDeliveryDate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req deliveryDateRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondOrder(w, r)(h.service.UpdateDeliveryDate(r.Context(), p, chi.URLParam(r, "id"), req.Date))
}

func (h *Handler) counterProposeDeliveryDate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req deliveryDateRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondOrder(w, r)(h.service.CounterProposeDeliveryDate(r.Context(), p, chi.URLParam(r, "id"), req.Date))
}

func (h *Handler) updateDeliveryDetails(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var patch workflow.DeliveryDetailsPatch
	if !h.decode(w, r, &patch) {
		return
	}
	h.respondOrder(w, r)(h.service.UpdateDeliveryDetails(r.Context(), p, chi.URLParam(r, "id"), patch))
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	h.respondOrder(w, r)(h.service.Advance(r.Context(), p, chi.URLParam(r, "id")))
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, false)
}

func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, true)
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, override bool) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	kind, known := workflow.ParseDecisionKind(chi.URLParam(r, "kind"))
	if !known {
		httpx.Problem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("unknown decision %q", chi.URLParam(r, "kind")))
		return
	}
	var req decisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	var (
		o       workflow.Order
		outcome workflow.Outcome
		err     error
	)
	if override {
		o, outcome, err = h.service.Override(r.Context(), p, id, kind, *req.Value)
	} else {
		o, outcome, err = h.service.Decide(r.Context(), p, id, kind, *req.Value)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decisionResponse{
		Order:    NewOrderView(o),
		Advanced: outcome.Advanced,
		From:     string(outcome.From),
		To:       string(outcome.To),
	})
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request) func(workflow.Order, error) {
	return func(o workflow.Order, err error) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, NewOrderView(o))
	}
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Principal{}, false
	}
	return p, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.ValidationDetail(err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	level := slog.LevelDebug
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, "order request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	httpx.RespondError(w, err)
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok && p.Email != "" {
		return "user:" + shared.NormalizeEmail(p.Email), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
