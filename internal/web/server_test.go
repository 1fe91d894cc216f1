package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/aove-scheduler/internal/auth"
	"github.com/example/aove-scheduler/internal/internaltypes"
	"github.com/example/aove-scheduler/internal/kv"
	"github.com/example/aove-scheduler/internal/notify"
	"github.com/example/aove-scheduler/internal/runs"
)

// openSessions treats every request as user 1.
type openSessions struct{}

func (openSessions) Authenticate(_ context.Context, u, p string) (int64, error) {
	if u == "admin" && p == "password1" {
		return 1, nil
	}
	return 0, internaltypes.ErrUnauthorized
}
func (openSessions) SetSession(http.ResponseWriter, *http.Request, int64) error { return nil }
func (openSessions) ClearSession(http.ResponseWriter)                           {}
func (openSessions) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), 1)))
	})
}

type fakeHistory struct {
	run     runs.Run
	reports []runs.Report
}

func (f fakeHistory) Recent(context.Context, int) ([]runs.Run, error) {
	return []runs.Run{f.run}, nil
}

func (f fakeHistory) Get(_ context.Context, id uuid.UUID) (runs.Run, []runs.Report, error) {
	if id != f.run.ID {
		return runs.Run{}, nil, internaltypes.ErrNotFound
	}
	return f.run, f.reports, nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func newServer(seed map[string]string) (*Server, *kv.Memory, *recorder) {
	store := kv.NewMemory(seed)
	rec := &recorder{}
	finished := time.Date(2026, 10, 18, 8, 1, 0, 0, time.UTC)
	return &Server{
		Auth: openSessions{},
		Runs: fakeHistory{
			run: runs.Run{
				ID: uuid.MustParse("6f1c8f7e-6c1b-4b8e-9a55-0d3c2b1f0a11"), Mode: "daily", Status: runs.StatusFinished,
				Accounts: 1, StartedAt: finished.Add(-time.Minute), FinishedAt: &finished,
			},
			reports: []runs.Report{{Index: 1, Label: "alice", Body: "📌 Check-in: checked in"}},
		},
		Store:        store,
		Notify:       rec,
		BaseURL:      "https://aove.example.com/",
		CaptureToken: "cap-secret",
	}, store, rec
}

func do(t *testing.T, h http.Handler, method, target string, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func form(vals url.Values) (string, map[string]string) {
	return vals.Encode(), map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
}

func TestHealthz(t *testing.T) {
	s, _, _ := newServer(nil)
	rec := do(t, s.Routes(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestCapture_StoresRecordsID(t *testing.T) {
	s, store, notes := newServer(nil)
	rec := do(t, s.Routes(), http.MethodPost, "/capture/records-id",
		`{"recordsId":"rec-123","other":1}`, map[string]string{"X-Capture-Token": "cap-secret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	v, ok, err := store.Read(context.Background(), kv.KeyRecordsID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rec-123", v)

	require.Len(t, notes.msgs, 1)
	assert.Contains(t, notes.msgs[0].Body, "rec-123")
}

func TestCapture_NumericID(t *testing.T) {
	s, store, _ := newServer(nil)
	rec := do(t, s.Routes(), http.MethodPost, "/capture/records-id",
		`{"recordsId":1719238954936242177}`, map[string]string{"X-Capture-Token": "cap-secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	v, _, _ := store.Read(context.Background(), kv.KeyRecordsID)
	assert.Equal(t, "1719238954936242177", v)
}

func TestCapture_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		body   string
		status int
	}{
		{"no token", "", `{"recordsId":"x"}`, http.StatusForbidden},
		{"wrong token", "nope", `{"recordsId":"x"}`, http.StatusForbidden},
		{"bad json", "cap-secret", `{`, http.StatusUnprocessableEntity},
		{"missing field", "cap-secret", `{"other":1}`, http.StatusUnprocessableEntity},
		{"empty id", "cap-secret", `{"recordsId":"  "}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, store, _ := newServer(nil)
			rec := do(t, s.Routes(), http.MethodPost, "/capture/records-id", tc.body, map[string]string{"X-Capture-Token": tc.token})
			assert.Equal(t, tc.status, rec.Code)
			_, ok, _ := store.Read(context.Background(), kv.KeyRecordsID)
			assert.False(t, ok)
		})
	}
}

func TestCapture_DisabledWithoutToken(t *testing.T) {
	s, _, _ := newServer(nil)
	s.CaptureToken = ""
	rec := do(t, s.Routes(), http.MethodPost, "/capture/records-id", `{"recordsId":"x"}`, map[string]string{"X-Capture-Token": ""})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRunsPages(t *testing.T) {
	s, _, _ := newServer(nil)
	h := s.Routes()

	rec := do(t, h, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/runs/6f1c8f7e-6c1b-4b8e-9a55-0d3c2b1f0a11")

	rec = do(t, h, http.MethodGet, "/runs/6f1c8f7e-6c1b-4b8e-9a55-0d3c2b1f0a11", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	assert.Contains(t, rec.Body.String(), "Check-in: checked in")

	rec = do(t, h, http.MethodGet, "/runs/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/runs/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogin(t *testing.T) {
	s, _, _ := newServer(nil)
	h := s.Routes()

	body, hdr := form(url.Values{"username": {"admin"}, "password": {"password1"}})
	rec := do(t, h, http.MethodPost, "/login", body, hdr)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	body, hdr = form(url.Values{"username": {"admin"}, "password": {"wrong"}})
	rec = do(t, h, http.MethodPost, "/login", body, hdr)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username/password")
}

func TestAccounts_ListMasksTokens(t *testing.T) {
	s, _, _ := newServer(map[string]string{kv.KeyAccounts: "abcd1234efgh5678|alice"})
	rec := do(t, s.Routes(), http.MethodGet, "/accounts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	assert.Contains(t, rec.Body.String(), "abcd********5678")
	assert.NotContains(t, rec.Body.String(), "abcd1234efgh5678")
}

func TestAccounts_ShowsCaptureURL(t *testing.T) {
	s, _, _ := newServer(nil)
	rec := do(t, s.Routes(), http.MethodGet, "/accounts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://aove.example.com/capture/records-id")

	s.CaptureToken = ""
	rec = do(t, s.Routes(), http.MethodGet, "/accounts", "", nil)
	assert.NotContains(t, rec.Body.String(), "/capture/records-id")
}

func TestAccounts_AddKeepsMalformedStoredList(t *testing.T) {
	s, store, _ := newServer(map[string]string{kv.KeyAccounts: "t1|a@broken@t2|b"})

	body, hdr := form(url.Values{"token": {"t3"}, "label": {"c"}})
	rec := do(t, s.Routes(), http.MethodPost, "/accounts/add", body, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "entry 2")

	v, _, _ := store.Read(context.Background(), kv.KeyAccounts)
	assert.Equal(t, "t1|a@broken@t2|b", v)
}

func TestAccounts_AddAndReplace(t *testing.T) {
	s, store, _ := newServer(map[string]string{kv.KeyAccounts: "t1|a"})
	h := s.Routes()
	ctx := context.Background()

	body, hdr := form(url.Values{"token": {"t2"}, "label": {"b"}})
	rec := do(t, h, http.MethodPost, "/accounts/add", body, hdr)
	require.Equal(t, http.StatusFound, rec.Code)
	v, _, _ := store.Read(ctx, kv.KeyAccounts)
	assert.Equal(t, "t1|a@t2|b", v)

	body, hdr = form(url.Values{"token": {"t3@x"}, "label": {"c"}})
	rec = do(t, h, http.MethodPost, "/accounts/add", body, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, hdr = form(url.Values{"accounts": {"n1|x@broken@n2|y"}})
	rec = do(t, h, http.MethodPost, "/accounts", body, hdr)
	require.Equal(t, http.StatusFound, rec.Code)
	v, _, _ = store.Read(ctx, kv.KeyAccounts)
	assert.Equal(t, "n1|x@n2|y", v)

	body, hdr = form(url.Values{"accounts": {"   "}})
	rec = do(t, h, http.MethodPost, "/accounts", body, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	v, _, _ = store.Read(ctx, kv.KeyAccounts)
	assert.Equal(t, "n1|x@n2|y", v)
}
