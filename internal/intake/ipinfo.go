package intake

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"contacthub/internal/contact/models"
)

// IPResolver asks an external ipify-style endpoint for the caller's public
// address. It is strictly best effort: any failure yields the "unknown"
// sentinel and must never block a submission.
type IPResolver struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewIPResolver creates a resolver against the given lookup URL.
func NewIPResolver(url string, logger *slog.Logger) *IPResolver {
	return &IPResolver{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
		logger: logger,
	}
}

// Resolve returns the looked-up IP or models.IPUnknown.
func (r *IPResolver) Resolve(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return models.IPUnknown
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("ip lookup failed", "error", err)
		return models.IPUnknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.IPUnknown
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.IP == "" {
		return models.IPUnknown
	}
	return body.IP
}
