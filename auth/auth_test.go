package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coffeefarm/middleware"
)

var testSecret = []byte("test-secret")

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Secret == nil {
		opts.Secret = testSecret
	}
	return NewService(opts)
}

func TestAnonymousSessionParses(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})

	sess, err := s.SignInAnonymously(ctx)
	require.NoError(t, err)
	assert.True(t, sess.Anonymous)
	assert.NotEmpty(t, sess.UserID)

	claims, err := s.Parse(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, claims.UserID)

	other, err := s.SignInAnonymously(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, sess.UserID, other.UserID)
}

func TestParseRejectsForeignAndExpired(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{TTL: time.Minute})
	sess, err := s.SignInAnonymously(ctx)
	require.NoError(t, err)

	foreign := newService(t, Options{Secret: []byte("other")})
	_, err = foreign.Parse(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = s.Parse(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Parse(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExchangeCustomToken(t *testing.T) {
	ctx := context.Background()
	shared := []byte("shared")
	s := newService(t, Options{Verifiers: []TokenVerifier{CustomTokenVerifier{Secret: shared}}})

	tok, err := SignCustomToken(shared, "farmer-7", time.Hour)
	require.NoError(t, err)

	sess, err := s.Bootstrap(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "farmer-7", sess.UserID)
	assert.False(t, sess.Anonymous)

	_, err = s.Exchange(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExchangeWithoutVerifier(t *testing.T) {
	s := newService(t, Options{})
	_, err := s.Exchange(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoVerifier)

	sess, err := s.Bootstrap(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, sess.Anonymous)
}

func TestRefreshRevokesOldSession(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})
	sess, err := s.SignInAnonymously(ctx)
	require.NoError(t, err)

	next, err := s.Refresh(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, next.UserID)

	_, err = s.Parse(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = s.Parse(ctx, next.Token)
	assert.NoError(t, err)
}

func TestLogoutRevokesAndReleases(t *testing.T) {
	ctx := context.Background()
	var dropped []string
	s := newService(t, Options{OnLogout: func(owner string) { dropped = append(dropped, owner) }})
	sess, err := s.SignInAnonymously(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx, sess.Token))
	assert.Equal(t, []string{sess.UserID}, dropped)

	_, err = s.Parse(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, s.Logout(ctx, sess.Token), ErrInvalidToken)
}

func TestMemorySessionsExpire(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySessions()
	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Put(ctx, "s1", "u", time.Minute))
	ok, _ := m.Active(ctx, "s1")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = m.Active(ctx, "s1")
	assert.False(t, ok)
}

func TestHandlersFlow(t *testing.T) {
	s := newService(t, Options{})
	h := &Handlers{Service: s, Logger: zap.NewNop()}
	router := httprouter.New()
	router.POST("/api/auth/anonymous", h.Anonymous)
	router.POST("/api/auth/logout", h.Logout)
	router.GET("/api/auth/me", middleware.Authenticate(s)(h.Me))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/anonymous", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	token := body.Data.Token

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), body.Data.UserID))

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBootstrapUsesInitialToken(t *testing.T) {
	ctx := context.Background()
	shared := []byte("shared")
	tok, err := SignCustomToken(shared, "farmer-1", time.Hour)
	require.NoError(t, err)
	s := newService(t, Options{
		Verifiers:    []TokenVerifier{CustomTokenVerifier{Secret: shared}},
		InitialToken: tok,
	})

	sess, err := s.Bootstrap(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "farmer-1", sess.UserID)

	owner, err := s.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "farmer-1", owner)
}
