// Package intake validates and stores contact-form submissions.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"contacthub/internal/analytics"
	"contacthub/internal/contact/models"
	"contacthub/internal/contact/store"
	"contacthub/internal/platform/metrics"
	dErrors "contacthub/pkg/domain-errors"
)

// Meta carries request-level annotations captured alongside the form
// fields. Both are best effort.
type Meta struct {
	RemoteIP  string
	UserAgent string
}

// Service handles contact submissions: validate, annotate, store once,
// then fire the analytics event.
type Service struct {
	store     store.Store
	publisher analytics.Publisher
	resolver  *IPResolver
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithIPResolver enables the external IP lookup fallback.
func WithIPResolver(r *IPResolver) Option {
	return func(s *Service) { s.resolver = r }
}

// New creates the intake service.
func New(st store.Store, publisher analytics.Publisher, logger *slog.Logger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("contact store is required")
	}
	if publisher == nil {
		publisher = analytics.Nop{}
	}

	svc := &Service{
		store:     st,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("contacthub/intake"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit validates the submission and writes exactly one record on success.
// Validation failures make no store call. The IP annotation and the
// analytics event never affect the outcome.
func (s *Service) Submit(ctx context.Context, sub models.Submission, meta Meta) (models.ContactRecord, error) {
	ctx, span := s.tracer.Start(ctx, "intake.Submit")
	defer span.End()

	if err := sub.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.SubmissionsRejected.Inc()
		}
		return models.ContactRecord{}, err
	}

	rec := models.ContactRecord{
		Name:      strings.TrimSpace(sub.Name),
		Email:     strings.TrimSpace(sub.Email),
		Company:   sub.Company,
		Phone:     sub.Phone,
		Service:   sub.Service,
		Message:   sub.Message,
		Status:    models.StatusNew,
		Read:      false,
		IP:        s.resolveIP(ctx, meta),
		UserAgent: summarizeUserAgent(meta.UserAgent),
	}

	stored, err := s.store.Insert(ctx, rec)
	if err != nil {
		s.logger.Error("storing contact submission", "error", err)
		return models.ContactRecord{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store contact submission")
	}

	if s.metrics != nil {
		s.metrics.ContactsCreated.Inc()
	}
	s.logger.Info("contact submission stored", "id", stored.ID, "service", stored.Service)
	s.publisher.ContactSubmitted(ctx, stored.Service)

	return stored, nil
}

// resolveIP prefers the connection's address; the external lookup covers
// deployments where that is not meaningful. Failure of both yields the
// sentinel.
func (s *Service) resolveIP(ctx context.Context, meta Meta) string {
	if meta.RemoteIP != "" {
		return meta.RemoteIP
	}
	if s.resolver != nil {
		return s.resolver.Resolve(ctx)
	}
	return models.IPUnknown
}

// summarizeUserAgent reduces a raw User-Agent header to "Browser version
// (OS)" so records stay readable.
func summarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if os := ua.OS(); os != "" {
		summary += " (" + os + ")"
	}
	return summary
}
