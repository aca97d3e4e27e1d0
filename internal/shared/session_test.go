package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T, idle, maxAge time.Duration) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "console_session", "", idle, maxAge, false), mr
}

func roundTrip(t *testing.T, sm *SessionManager, cookie *http.Cookie, mutate func(*Session)) (*Session, *http.Cookie) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	if mutate != nil {
		mutate(sess)
	}
	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), res, req, sess))
	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)
	return sess, cookies[0]
}

func TestSessionPersistsUserAcrossRequests(t *testing.T) {
	sm, _ := newTestSessions(t, time.Hour, 0)
	_, cookie := roundTrip(t, sm, nil, func(s *Session) { s.SetUser("42") })

	sess, _ := roundTrip(t, sm, cookie, nil)
	assert.Equal(t, "42", sess.User())
	assert.Equal(t, cookie.Value, sess.ID)
}

func TestSessionIdleExpiryIsExtendedOnEachRequest(t *testing.T) {
	sm, mr := newTestSessions(t, 10*time.Minute, 0)
	_, cookie := roundTrip(t, sm, nil, func(s *Session) { s.SetUser("7") })

	mr.FastForward(8 * time.Minute)
	roundTrip(t, sm, cookie, nil)
	mr.FastForward(8 * time.Minute)

	sess, _ := roundTrip(t, sm, cookie, nil)
	assert.Equal(t, "7", sess.User())

	mr.FastForward(11 * time.Minute)
	sess, _ = roundTrip(t, sm, cookie, nil)
	assert.Empty(t, sess.User())
	assert.NotEqual(t, cookie.Value, sess.ID)
}

func TestSessionAbsoluteLifetime(t *testing.T) {
	sm, _ := newTestSessions(t, time.Hour, 2*time.Hour)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return base }
	_, cookie := roundTrip(t, sm, nil, func(s *Session) { s.SetUser("9") })

	sm.now = func() time.Time { return base.Add(3 * time.Hour) }
	sess, _ := roundTrip(t, sm, cookie, nil)
	assert.Empty(t, sess.User())
}

func TestSessionRenewDropsPreviousKey(t *testing.T) {
	sm, mr := newTestSessions(t, time.Hour, 0)
	_, cookie := roundTrip(t, sm, nil, nil)
	require.True(t, mr.Exists("session:"+cookie.Value))

	sess, renewed := roundTrip(t, sm, cookie, func(s *Session) {
		s.SetUser("3")
		sm.Renew(s)
	})
	assert.NotEqual(t, cookie.Value, renewed.Value)
	assert.Equal(t, sess.ID, renewed.Value)
	assert.False(t, mr.Exists("session:"+cookie.Value))
	assert.True(t, mr.Exists("session:"+renewed.Value))
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	sm, mr := newTestSessions(t, time.Hour, 0)
	_, cookie := roundTrip(t, sm, nil, nil)

	_, cleared := roundTrip(t, sm, cookie, func(s *Session) { sm.Destroy(s) })
	assert.Equal(t, -1, cleared.MaxAge)
	assert.False(t, mr.Exists("session:"+cookie.Value))
}

func TestFlashIsReadOnce(t *testing.T) {
	sm, _ := newTestSessions(t, time.Hour, 0)
	_, cookie := roundTrip(t, sm, nil, func(s *Session) {
		s.AddFlash(FlashMessage{Kind: "success", Message: "saved"})
	})

	var got *FlashMessage
	roundTrip(t, sm, cookie, func(s *Session) { got = s.PopFlash() })
	require.NotNil(t, got)
	assert.Equal(t, "saved", got.Message)

	roundTrip(t, sm, cookie, func(s *Session) { got = s.PopFlash() })
	assert.Nil(t, got)
}

func TestCSRFVerify(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "abc"}
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	again, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, m.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, "forged"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)

	m.Rotate(sess)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, token), ErrCSRFTokenMissing)
}

func TestUserIDFromContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	sess := &Session{}
	sess.SetUser("12")
	id, ok := UserIDFromContext(ContextWithSession(context.Background(), sess))
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	sess.SetUser("nope")
	_, ok = UserIDFromContext(ContextWithSession(context.Background(), sess))
	assert.False(t, ok)
}

func TestSessionKeysAreDerivedFromSecret(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sm := NewSessionManager(client, "console_session", "s3cret", time.Hour, 0, false)

	_, cookie := roundTrip(t, sm, nil, func(s *Session) { s.SetUser("5") })
	assert.False(t, mr.Exists("session:"+cookie.Value))
	assert.Len(t, mr.Keys(), 1)

	sess, _ := roundTrip(t, sm, cookie, nil)
	assert.Equal(t, "5", sess.User())
}
