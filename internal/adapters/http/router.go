package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prathameshpawar06/stockbridge/internal/application"
	"github.com/prathameshpawar06/stockbridge/internal/domain"
	"github.com/prathameshpawar06/stockbridge/internal/ui"
	"github.com/starfederation/datastar-go/datastar"
)

const (
	actorHeader          = "X-Actor"
	idempotencyKeyHeader = "Idempotency-Key"
)

type Handler struct {
	service *application.TemplateService
	logger  *slog.Logger
}

func NewRouter(service *application.TemplateService, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{service: service, logger: logger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Use(withActor)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/schemas", h.handleAPIListSchemas)
		api.Post("/schemas", h.handleAPICreateSchema)
		api.Get("/schemas/{id}", h.handleAPIGetSchema)
		api.Put("/schemas/{id}", h.handleAPIUpdateSchema)
		api.Delete("/schemas/{id}", h.handleAPIDeleteSchema)

		api.Post("/instances", h.handleAPICreateInstance)
		api.Get("/instances/by-owner/{owner}", h.handleAPIGetInstanceByOwner)
		api.Get("/instances/{id}", h.handleAPIGetInstance)
		api.Put("/instances/{id}", h.handleAPIUpdateInstance)
		api.Delete("/instances/{id}", h.handleAPIDeleteInstance)
		api.Post("/instances/{id}/clear", h.handleAPIClearInstance)
		api.Get("/instances/{id}/table", h.handleAPIInstanceTable)

		api.Post("/columns/delete", h.handleAPIDeleteColumns)
		api.Post("/sections/{id}/rows/delete", h.handleAPIDeleteRow)

		api.Get("/audit/logs", h.handleAPIListAuditLogs)
	})

	r.Get("/instances/{id}/table", h.handleInstanceTablesPage)
	r.Post("/ui/rows/delete", h.handleUIDeleteRow)

	return r
}

func (h *Handler) handleAPIListSchemas(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	result, err := h.service.ListSchemas(r.Context(), q.Get("q"), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAPICreateSchema(w http.ResponseWriter, r *http.Request) {
	var req application.CreateSchemaInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	req.RequestKey = strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	schema, err := h.service.CreateSchema(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, schema)
}

func (h *Handler) handleAPIGetSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	schema, err := h.service.GetSchema(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (h *Handler) handleAPIUpdateSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.SchemaDefinition
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	req.ID = id
	schema, err := h.service.UpdateSchema(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (h *Handler) handleAPIDeleteSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteSchema(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) handleAPICreateInstance(w http.ResponseWriter, r *http.Request) {
	var req application.CreateInstanceInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	req.RequestKey = strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	inst, err := h.service.CreateInstance(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (h *Handler) handleAPIGetInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inst, err := h.service.GetInstance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handler) handleAPIGetInstanceByOwner(w http.ResponseWriter, r *http.Request) {
	inst, err := h.service.GetInstanceByOwner(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type apiUpdateInstanceRequest struct {
	Sections   []domain.Section `json:"sections"`
	AllowClear bool             `json:"allow_clear"`
}

// An empty sections list wipes the instance, so the API only accepts it
// together with allow_clear. POST /clear is the explicit form.
func (h *Handler) handleAPIUpdateInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req apiUpdateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if len(req.Sections) == 0 && !req.AllowClear {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "sections is empty; set allow_clear or use POST /api/instances/{id}/clear",
			"kind":  domain.KindInvalidArgument,
		})
		return
	}
	inst, err := h.service.UpdateInstance(r.Context(), id, req.Sections)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handler) handleAPIClearInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inst, err := h.service.ClearInstance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handler) handleAPIDeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteInstance(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) handleAPIInstanceTable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tables, err := h.service.GetInstanceTable(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

type apiDeleteColumnsRequest struct {
	ColumnIDs []uint `json:"column_ids"`
}

func (h *Handler) handleAPIDeleteColumns(w http.ResponseWriter, r *http.Request) {
	var req apiDeleteColumnsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	deleted, err := h.service.DeleteColumns(r.Context(), req.ColumnIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

type apiDeleteRowRequest struct {
	RowIndex *int `json:"row_index"`
}

func (h *Handler) handleAPIDeleteRow(w http.ResponseWriter, r *http.Request) {
	sectionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req apiDeleteRowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RowIndex == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "row_index is required"})
		return
	}
	deleted, err := h.service.DeleteRow(r.Context(), sectionID, *req.RowIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *Handler) handleAPIListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleInstanceTablesPage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid instance id", http.StatusBadRequest)
		return
	}
	inst, err := h.service.GetInstance(r.Context(), uint(id))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if err := ui.InstanceTablesPage(inst, application.BuildTables(inst.Sections)).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type rowDeleteSignals struct {
	InstanceID uint `json:"instanceId"`
	SectionID  uint `json:"sectionId"`
	RowIndex   int  `json:"rowIndex"`
}

func (h *Handler) handleUIDeleteRow(w http.ResponseWriter, r *http.Request) {
	var sig rowDeleteSignals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		renderHTMLFragments(r.Context(), w, http.StatusBadRequest, ui.Flash("invalid signals", "error"))
		return
	}
	deleted, err := h.service.DeleteInstanceRow(r.Context(), sig.InstanceID, sig.SectionID, sig.RowIndex)
	if err != nil {
		renderHTMLFragments(r.Context(), w, statusFor(err), ui.Flash(err.Error(), "error"))
		return
	}
	tables, err := h.service.GetInstanceTable(r.Context(), sig.InstanceID)
	if err != nil {
		renderHTMLFragments(r.Context(), w, statusFor(err), ui.Flash(err.Error(), "error"))
		return
	}
	renderHTMLFragments(r.Context(), w, http.StatusOK,
		ui.Flash("deleted "+strconv.Itoa(deleted)+" cells", "info"),
		ui.InstanceTables(tables),
	)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.InfoContext(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get(actorHeader)
		if actor == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(application.WithActor(r.Context(), actor)))
	})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": name + " must be a positive integer", "kind": domain.KindInvalidArgument})
		return 0, false
	}
	return uint(id), true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "kind": domain.KindOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func renderHTMLFragments(ctx context.Context, w http.ResponseWriter, status int, fragments ...templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	for _, fragment := range fragments {
		if fragment == nil {
			continue
		}
		_ = fragment.Render(ctx, w)
	}
}
