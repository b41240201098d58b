package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/metrics"
	"github.com/pesio-ai/be-plt-approvals/internal/middleware"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals *service.ApprovalService
	workflows *service.WorkflowService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(approvals *service.ApprovalService, workflows *service.WorkflowService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{approvals: approvals, workflows: workflows, log: log}
}

// RouterConfig carries what the router needs beyond the handler itself.
type RouterConfig struct {
	Auth    *middleware.Authenticator
	Metrics *metrics.Metrics
	// Health reports dependency health; nil means always healthy.
	Health func(ctx context.Context) error
}

// Router builds the full route table. /health and /metrics are public;
// everything under /api/v1 requires a bearer token.
func (h *HTTPHandler) Router(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return cfg.Metrics.Instrument(routeTemplate, next)
	})
	r.NotFoundHandler = http.HandlerFunc(routeNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/health", h.healthHandler(cfg.Health)).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	// Subrouters resolve their own mismatches.
	api := r.PathPrefix("/api/v1").Subrouter()
	api.NotFoundHandler = http.HandlerFunc(routeNotFound)
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.Use(cfg.Auth.Authenticate)

	api.HandleFunc("/workflows", h.CreateWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows", h.ListWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", h.GetWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", h.UpdateWorkflow).Methods(http.MethodPut)
	api.HandleFunc("/workflows/{id}", h.DeleteWorkflow).Methods(http.MethodDelete)

	api.HandleFunc("/requests", h.SubmitRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests", h.ListRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests/pending", h.PendingRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}", h.GetRequest).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/actions", h.ActOnRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/history", h.GetHistory).Methods(http.MethodGet)

	return r
}

func routeNotFound(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteError(w, errors.New(errors.ErrCodeNotFound, "route not found"), http.StatusNotFound)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteError(w, errors.New("METHOD_NOT_ALLOWED", "method not allowed"), http.StatusMethodNotAllowed)
}

// ── Workflows ─────────────────────────────────────────────────────────────────

// CreateWorkflow handles POST /api/v1/workflows
func (h *HTTPHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var in service.WorkflowInput
	if !h.decode(w, r, &in) {
		return
	}
	wf, err := h.workflows.Create(r.Context(), actorOf(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

// ListWorkflows handles GET /api/v1/workflows
func (h *HTTPHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := h.workflows.List(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(list))
}

func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.workflows.Get(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *HTTPHandler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var in service.WorkflowInput
	if !h.decode(w, r, &in) {
		return
	}
	wf, err := h.workflows.Update(r.Context(), actorOf(r), mux.Vars(r)["id"], in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *HTTPHandler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.workflows.Delete(r.Context(), actorOf(r), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Requests ──────────────────────────────────────────────────────────────────

// SubmitRequest handles POST /api/v1/requests
func (h *HTTPHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitInput
	if !h.decode(w, r, &in) {
		return
	}
	req, err := h.approvals.Submit(r.Context(), actorOf(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListRequests handles GET /api/v1/requests
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.approvals.ListForOrg(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(list))
}

// PendingRequests handles GET /api/v1/requests/pending: the caller's queue.
func (h *HTTPHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.approvals.PendingFor(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(list))
}

func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.approvals.Get(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ActionRequest is the body of POST /api/v1/requests/{id}/actions.
type ActionRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// ActOnRequest handles POST /api/v1/requests/{id}/actions
func (h *HTTPHandler) ActOnRequest(w http.ResponseWriter, r *http.Request) {
	var body ActionRequest
	if !h.decode(w, r, &body) {
		return
	}
	req, err := h.approvals.Act(r.Context(), actorOf(r), mux.Vars(r)["id"], domain.Action(body.Action), body.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetHistory handles GET /api/v1/requests/{id}/history
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.approvals.History(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(entries))
}

// ── Plumbing ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				h.log.Warn().Err(err).Msg("Health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, errors.InvalidInput("body", "invalid request body"), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	e := errors.New(errors.CodeOf(err), err.Error())
	errors.As(err, &e)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("Request failed")
		if e.Code == errors.ErrCodeInternal {
			e = errors.New(errors.ErrCodeInternal, "internal server error")
		}
	}
	middleware.WriteError(w, &errors.Error{Code: e.Code, Message: e.Message, Field: e.Field}, status)
}

// HTTPStatus maps an error code to its response status.
func HTTPStatus(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeValidation:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case errors.ErrCodeNotAuthorized, errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidState, errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type list[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func listResponse[T any](items []T) list[T] {
	if items == nil {
		items = []T{}
	}
	return list[T]{Items: items, Total: len(items)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func actorOf(r *http.Request) domain.Actor {
	actor, _ := middleware.ActorFromContext(r.Context())
	return actor
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
