package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager orchestrates cookie based sessions backed by Redis.
//
// Sessions expire after idle without a request and, independently, once
// maxAge has passed since they were created.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	secret     []byte
	idle       time.Duration
	maxAge     time.Duration
	secure     bool
	now        func() time.Time
}

// Session holds per-request session data.
type Session struct {
	ID        string
	values    map[string]string
	userID    string
	flashes   []FlashMessage
	createdAt time.Time
	isNew     bool
	dirty     bool
	destroyed bool
	rotated   string
}

type sessionPayload struct {
	Values    map[string]string `json:"values"`
	UserID    string            `json:"user_id"`
	Flashes   []FlashMessage    `json:"flashes"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewSessionManager constructs a SessionManager. A zero maxAge disables the
// absolute lifetime. When secret is set, Redis keys are derived from the
// cookie value with HMAC so stored keys cannot be replayed as cookies.
func NewSessionManager(client *redis.Client, cookieName, secret string, idle, maxAge time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		secret:     []byte(secret),
		idle:       idle,
		maxAge:     maxAge,
		secure:     secure,
		now:        time.Now,
	}
}

// Load loads or creates a new session for request.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	if sm.maxAge > 0 && !stored.CreatedAt.IsZero() && sm.now().Sub(stored.CreatedAt) > sm.maxAge {
		_ = sm.client.Del(ctx, sm.redisKey(cookie.Value)).Err()
		return sm.newSession(), nil
	}

	return &Session{
		ID:        cookie.Value,
		values:    stored.Values,
		userID:    stored.UserID,
		flashes:   stored.Flashes,
		createdAt: stored.CreatedAt,
	}, nil
}

// Commit persists the session and writes cookie headers as needed. Existing
// sessions have their idle expiry extended on every request.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.rotated != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.rotated)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.rotated = ""
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sessionPayload{Values: sess.values, UserID: sess.userID, Flashes: sess.flashes, CreatedAt: sess.createdAt})
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.idle).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	} else if err := sm.client.Expire(ctx, sm.redisKey(sess.ID), sm.idle).Err(); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  sm.now().Add(sm.idle),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// Renew issues a fresh session ID, keeping the data. The previous key is
// removed on commit. Call after a privilege change such as login.
func (sm *SessionManager) Renew(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.isNew {
		sess.rotated = sess.ID
	}
	sess.ID = uuid.NewString()
	sess.createdAt = sm.now().UTC()
	sess.dirty = true
}

// TTL exposes the idle timeout.
func (sm *SessionManager) TTL() time.Duration {
	return sm.idle
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetUser associates the session with a user ID.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the current user ID.
func (s *Session) User() string {
	return s.userID
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		values:    make(map[string]string),
		createdAt: sm.now().UTC(),
		isNew:     true,
		dirty:     true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	if len(sm.secret) == 0 {
		return "session:" + id
	}
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(id))
	return "session:" + hex.EncodeToString(mac.Sum(nil))
}
