package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/billingdesk/billingdesk/internal/platform/httpx"
)

// Handler exposes the billing API over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers the document API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Patch("/", h.update)
			r.Delete("/", h.delete)
			r.Post("/send", h.send)
			r.Post("/pay", h.pay)
			r.Post("/cancel", h.cancel)
			r.Post("/convert", h.convert)
			r.Post("/view", h.view)
		})
	})
}

// MountPublicRoutes registers the customer-facing view tracking route,
// addressed by opaque token instead of numeric ID.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/{token}/view", h.recordView)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondFieldErrors(w, err)
		return
	}

	doc, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "create document", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListDocumentsRequest{}

	if v := q.Get("kind"); v != "" {
		kind := Kind(v)
		req.Kind = &kind
	}
	if v := q.Get("status"); v != "" {
		status := Status(v)
		req.Status = &status
	}
	if v := q.Get("search"); v != "" {
		req.Search = &v
	}
	if v := q.Get("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			req.Page = parsed
		}
	}
	if v := q.Get("per_page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			req.PerPage = parsed
		}
	}

	resp, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "list documents", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req UpdateDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondFieldErrors(w, err)
		return
	}
	if req.Customer != nil {
		if err := h.validator.Struct(req.Customer); err != nil {
			h.respondFieldErrors(w, err)
			return
		}
	}

	doc, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, "update document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req SendDocumentRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
			return
		}
	}

	resp, err := h.service.Send(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, "send document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, EventPay)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, EventCancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, event Event) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Transition(r.Context(), id, event)
	if err != nil {
		h.respondError(w, r, "transition document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.ConvertQuoteToInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "convert document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.RecordViewByID(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "record view", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) recordView(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Token", "view token is required")
		return
	}
	doc, err := h.service.RecordView(r.Context(), token)
	if err != nil {
		h.respondError(w, r, "record view", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"doc_number": doc.DocNumber,
		"status":     doc.Status,
		"view_count": doc.ViewCount,
	})
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondFieldErrors(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Namespace()] = "failed " + fe.Tag() + " validation"
		}
		httpx.ProblemFields(w, http.StatusBadRequest, "Validation Failed", fields)
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
}

// respondError maps engine errors onto problem responses; every branch
// keeps the document context the typed errors carry.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		validationErr *ValidationError
		transitionErr *InvalidTransitionError
		immutableErr  *ImmutableDocumentError
		conversionErr *ConversionError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "document not found")
	case errors.As(err, &validationErr):
		httpx.ProblemFields(w, http.StatusBadRequest, "Validation Failed", validationErr.Fields)
	case errors.As(err, &transitionErr):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", transitionErr.Error())
	case errors.As(err, &immutableErr):
		httpx.Problem(w, http.StatusConflict, "Document Not Editable", immutableErr.Error())
	case errors.As(err, &conversionErr):
		httpx.Problem(w, http.StatusConflict, "Invalid Conversion", conversionErr.Error())
	case errors.Is(err, ErrAlreadyExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
