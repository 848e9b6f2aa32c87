package intake

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"contacthub/internal/contact/models"
)

func TestIPResolverSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"203.0.113.1"}`))
	}))
	defer srv.Close()

	r := NewIPResolver(srv.URL, discardLogger())
	assert.Equal(t, "203.0.113.1", r.Resolve(context.Background()))
}

func TestIPResolverFailuresYieldSentinel(t *testing.T) {
	t.Run("unreachable endpoint", func(t *testing.T) {
		r := NewIPResolver("http://127.0.0.1:1", discardLogger())
		assert.Equal(t, models.IPUnknown, r.Resolve(context.Background()))
	})

	t.Run("non-200 response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		r := NewIPResolver(srv.URL, discardLogger())
		assert.Equal(t, models.IPUnknown, r.Resolve(context.Background()))
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()
		r := NewIPResolver(srv.URL, discardLogger())
		assert.Equal(t, models.IPUnknown, r.Resolve(context.Background()))
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"ip":"203.0.113.1"}`))
		}))
		defer srv.Close()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := NewIPResolver(srv.URL, discardLogger())
		assert.Equal(t, models.IPUnknown, r.Resolve(ctx))
	})
}
