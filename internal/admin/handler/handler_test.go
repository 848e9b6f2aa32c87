package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contacthub/internal/contact/models"
	"contacthub/internal/contact/store"
	"contacthub/internal/registry"
)

type env struct {
	store    *store.Memory
	registry *registry.Registry
	router   http.Handler
}

// newEnv wires a real registry over the in-memory store with the echo
// loop running, so mutations flow through the store and back.
func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mem := store.NewMemory()
	reg := registry.New(mem, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, reg.Open(ctx))
	require.NoError(t, reg.Load(ctx))
	go func() { _ = reg.Run(ctx) }()

	r := chi.NewRouter()
	New(reg, logger).Register(r)
	return &env{store: mem, registry: reg, router: r}
}

// add inserts through the store and waits for the echo to land.
func (e *env) add(t *testing.T, rec models.ContactRecord) models.ContactRecord {
	t.Helper()
	stored, err := e.store.Insert(context.Background(), rec)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := e.registry.Get(stored.ID)
		return ok
	}, time.Second, 5*time.Millisecond)
	return stored
}

func (e *env) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func sample(name string) models.ContactRecord {
	return models.ContactRecord{
		Name:   name,
		Email:  strings.ToLower(name) + "@example.com",
		Status: models.StatusNew,
	}
}

func TestListDefaultsToPageOne(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 12; i++ {
		e.add(t, sample("contact"+string(rune('a'+i))))
	}

	w := e.get("/admin/contacts")
	require.Equal(t, http.StatusOK, w.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Page, "no page param means page 1")
	assert.Len(t, resp.Records, 10)
	assert.Equal(t, 12, resp.Total)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Equal(t, []int{1, 2}, resp.Pages)
	assert.Equal(t, 12, resp.Stats.Total)
}

func TestListRejectsNonNumericPage(t *testing.T) {
	e := newEnv(t)
	w := e.get("/admin/contacts?page=two")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEscapesMarkupFields(t *testing.T) {
	e := newEnv(t)
	rec := sample("Mallory")
	rec.Name = `<script>alert(1)</script>`
	rec.Company = `Bobby "Tables" & Sons`
	e.add(t, rec)

	w := e.get("/admin/contacts")
	require.Equal(t, http.StatusOK, w.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt;", resp.Records[0].NameHTML)
	assert.NotContains(t, resp.Records[0].CompanyHTML, `"`)
	// The raw value stays untouched alongside the escaped one.
	assert.Equal(t, `<script>alert(1)</script>`, resp.Records[0].Name)
}

func TestDetailNotFound(t *testing.T) {
	e := newEnv(t)
	w := e.get("/admin/contacts/no-such-id")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDetailMarksRead(t *testing.T) {
	e := newEnv(t)
	stored := e.add(t, sample("Ada"))

	w := e.get("/admin/contacts/" + stored.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp row
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, stored.ID, resp.ID)

	// The flip is asynchronous: store first, then the echo updates the
	// registry.
	require.Eventually(t, func() bool {
		rec, ok := e.registry.Get(stored.ID)
		return ok && rec.Read
	}, time.Second, 5*time.Millisecond)
}

func TestUpdateStatus(t *testing.T) {
	e := newEnv(t)
	stored := e.add(t, sample("Ada"))

	req := httptest.NewRequest(http.MethodPatch, "/admin/contacts/"+stored.ID+"/status",
		strings.NewReader(`{"status":"replied"}`))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	require.Eventually(t, func() bool {
		rec, ok := e.registry.Get(stored.ID)
		return ok && rec.Status == models.StatusReplied
	}, time.Second, 5*time.Millisecond)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	e := newEnv(t)
	stored := e.add(t, sample("Ada"))

	req := httptest.NewRequest(http.MethodPatch, "/admin/contacts/"+stored.ID+"/status",
		strings.NewReader(`{"status":"archived"}`))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	rec, ok := e.registry.Get(stored.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusNew, rec.Status)
}

func TestUpdateStatusUnknownContact(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPatch, "/admin/contacts/ghost/status",
		strings.NewReader(`{"status":"replied"}`))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	e := newEnv(t)
	stored := e.add(t, sample("Ada"))

	req := httptest.NewRequest(http.MethodDelete, "/admin/contacts/"+stored.ID, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, ok := e.registry.Get(stored.ID)
	assert.True(t, ok, "unconfirmed delete must not remove the record")
}

func TestDeleteConfirmed(t *testing.T) {
	e := newEnv(t)
	stored := e.add(t, sample("Ada"))

	req := httptest.NewRequest(http.MethodDelete, "/admin/contacts/"+stored.ID+"?confirm=true", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	require.Eventually(t, func() bool {
		_, ok := e.registry.Get(stored.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestExportHeaders(t *testing.T) {
	e := newEnv(t)
	e.add(t, sample("Ada"))

	w := e.get("/admin/contacts/export")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
}

func TestStatsEndpoint(t *testing.T) {
	e := newEnv(t)
	e.add(t, sample("Ada"))
	closed := sample("Grace")
	closed.Status = models.StatusClosed
	e.add(t, closed)

	w := e.get("/admin/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats registry.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.StatusNew])
	assert.Equal(t, 1, stats.ByStatus[models.StatusClosed])
	assert.Equal(t, 2, stats.Today)
}

func TestEventsStreamPrimesWithRefresh(t *testing.T) {
	e := newEnv(t)
	e.add(t, sample("Ada"))

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/admin/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: refresh\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var n registry.Notification
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &n))
	assert.Equal(t, registry.NoteRefresh, n.Type)
	assert.Equal(t, 1, n.Stats.Total)
}
