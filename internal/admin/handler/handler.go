// Package handler exposes the admin console API: listing, searching and
// paginating the live contact registry, status edits, deletion, CSV export,
// and a server-sent-events stream carrying the registry's notifications.
// The surface is deliberately unauthenticated.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"contacthub/internal/contact/models"
	"contacthub/internal/registry"
	dErrors "contacthub/pkg/domain-errors"
	"contacthub/pkg/httputil"
)

// Handler serves the admin console API from the live registry.
type Handler struct {
	logger   *slog.Logger
	registry *registry.Registry
}

// New creates the admin Handler.
func New(reg *registry.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		registry: reg,
	}
}

// Register registers the admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	sub := chi.NewRouter()
	sub.Get("/admin/contacts", h.handleList)
	sub.Get("/admin/contacts/export", h.handleExport)
	sub.Get("/admin/contacts/{id}", h.handleDetail)
	sub.Patch("/admin/contacts/{id}/status", h.handleUpdateStatus)
	sub.Delete("/admin/contacts/{id}", h.handleDelete)
	sub.Get("/admin/events", h.handleEvents)
	sub.Get("/admin/stats", h.handleStats)
	r.Mount("/", sub)
}

// row augments a record with render-ready fields. Name and company come
// from uncontrolled input and are destined for markup, so they are
// HTML-escaped here; the status display value normalizes unknown statuses.
type row struct {
	models.ContactRecord
	NameHTML      string        `json:"nameHtml"`
	CompanyHTML   string        `json:"companyHtml"`
	StatusDisplay models.Status `json:"statusDisplay"`
}

type listResponse struct {
	Records    []row          `json:"records"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
	Pages      []int          `json:"pages"`
	Stats      registry.Stats `json:"stats"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := registry.Query{
		Filter: r.URL.Query().Get("filter"),
		Search: r.URL.Query().Get("search"),
		Page:   1,
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "page must be a number"))
			return
		}
		q.Page = page
	}

	view := h.registry.View(q)
	rows := make([]row, 0, len(view.Records))
	for _, rec := range view.Records {
		rows = append(rows, newRow(rec))
	}

	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Records:    rows,
		Total:      view.Total,
		Page:       view.Page,
		TotalPages: view.TotalPages,
		Pages:      view.Pages,
		Stats:      h.registry.Stats(),
	})
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, ok := h.registry.Get(id)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "contact not found"))
		return
	}

	// First view flips the read flag; best effort, detached from the
	// request lifetime.
	if !rec.Read {
		go h.registry.MarkRead(context.WithoutCancel(r.Context()), id)
	}

	httputil.WriteJSON(w, http.StatusOK, newRow(rec))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.registry.UpdateStatus(r.Context(), id, req.Status); err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) || dErrors.Is(err, dErrors.CodeNotFound) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.Error("failed to update contact status", "id", id, "error", err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	confirmed := r.URL.Query().Get("confirm") == "true"

	if err := h.registry.Delete(r.Context(), id, confirmed); err != nil {
		if dErrors.Is(err, dErrors.CodeBadRequest) || dErrors.Is(err, dErrors.CodeNotFound) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.Error("failed to delete contact", "id", id, "error", err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("contacts-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := h.registry.ExportCSV(w); err != nil {
		// Headers are out; all we can do is log.
		h.logger.Error("failed to stream contact export", "error", err)
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.registry.Stats())
}

// handleEvents streams registry notifications as server-sent events. The
// stream ends when the client disconnects.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	notifications := h.registry.Listen(r.Context())

	// Prime the client with current counters so dashboards render
	// immediately.
	h.writeEvent(w, registry.Notification{Type: registry.NoteRefresh, Stats: h.registry.Stats()})
	flusher.Flush()

	for n := range notifications {
		h.writeEvent(w, n)
		flusher.Flush()
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, n registry.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("marshal notification", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, data)
}

func newRow(rec models.ContactRecord) row {
	return row{
		ContactRecord: rec,
		NameHTML:      html.EscapeString(rec.Name),
		CompanyHTML:   html.EscapeString(rec.Company),
		StatusDisplay: rec.Status.Display(),
	}
}
