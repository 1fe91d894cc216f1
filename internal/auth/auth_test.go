package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/aove-scheduler/internal/db"
	"github.com/example/aove-scheduler/internal/internaltypes"
	"github.com/example/aove-scheduler/internal/migrate"
)

func testStore(d *db.DB) *Store {
	return NewStore(d, bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32))
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "correct horse"))
	assert.False(t, CheckPassword(h, "battery staple"))
}

func TestSessionRoundTrip(t *testing.T) {
	s := testStore(nil)

	rec := httptest.NewRecorder()
	require.NoError(t, s.SetSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil), 42))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	sess, ok := s.GetSession(req)
	require.True(t, ok)
	assert.Equal(t, int64(42), sess.UserID)
}

func TestSessionFromOtherKeysRejected(t *testing.T) {
	other := NewStore(nil, bytes.Repeat([]byte{9}, 32), bytes.Repeat([]byte{8}, 32))
	rec := httptest.NewRecorder()
	require.NoError(t, other.SetSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil), 1))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	_, ok := testStore(nil).GetSession(req)
	assert.False(t, ok)
}

func TestRequireAuth(t *testing.T) {
	s := testStore(nil)
	var seen int64
	h := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	login := httptest.NewRecorder()
	require.NoError(t, s.SetSession(login, httptest.NewRequest(http.MethodPost, "/login", nil), 7))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), seen)
}

func TestTokenEqual(t *testing.T) {
	assert.True(t, TokenEqual("s3cret", "s3cret"))
	assert.False(t, TokenEqual("s3cret", "s3cre"))
	assert.False(t, TokenEqual("s3cret", "S3cret"))
	assert.False(t, TokenEqual("", ""))
}

func TestCreateAndAuthenticate(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := db.Open(ctx, url)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, migrate.Up(ctx, d))
	require.NoError(t, d.Exec(ctx, `DELETE FROM users WHERE username=$1`, "test-user"))

	s := testStore(d)
	assert.Error(t, s.CreateUser(ctx, "test-user", "short"))
	require.NoError(t, s.CreateUser(ctx, "test-user", "long enough pw"))

	id, err := s.Authenticate(ctx, "test-user", "long enough pw")
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.Authenticate(ctx, "test-user", "wrong password")
	assert.True(t, errors.Is(err, internaltypes.ErrUnauthorized))

	_, err = s.Authenticate(ctx, "nobody", "whatever")
	assert.True(t, errors.Is(err, internaltypes.ErrUnauthorized))
}
