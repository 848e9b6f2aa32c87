package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contacthub/internal/contact/models"
	"contacthub/internal/intake"
	dErrors "contacthub/pkg/domain-errors"
	"contacthub/pkg/httputil"
)

// Service defines the interface for contact submission.
type Service interface {
	Submit(ctx context.Context, sub models.Submission, meta intake.Meta) (models.ContactRecord, error)
}

// Handler is the public contact-form endpoint.
type Handler struct {
	logger  *slog.Logger
	intake  Service
	limiter func(http.Handler) http.Handler
}

// New creates the intake Handler. limiter may be nil.
func New(svc Service, logger *slog.Logger, limiter func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:  logger,
		intake:  svc,
		limiter: limiter,
	}
}

// Register registers the public routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	sub := chi.NewRouter()
	if h.limiter != nil {
		sub.Use(h.limiter)
	}
	sub.Post("/contact", h.handleSubmit)
	r.Mount("/", sub)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sub models.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.logger.Warn("invalid contact submission body", "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec, err := h.intake.Submit(ctx, sub, intake.Meta{
		RemoteIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) {
			h.logger.Warn("contact submission rejected", "error", err)
			httputil.WriteError(w, err)
			return
		}
		h.logger.Error("contact submission failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
