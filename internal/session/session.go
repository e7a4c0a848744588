// Package session keeps logged-in users in a TTL store keyed by an opaque
// cookie value.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/chils-store/internal/domain/user"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

const (
	DefaultCookieName = "chils_session"
	DefaultTTL        = 24 * time.Hour

	keyPrefix = "session:"
	idBytes   = 32
)

// Session is the identity attached to a request.
type Session struct {
	ID        string    `json:"-"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      user.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists sessions with expiry.
type Store interface {
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisStore stores sessions as JSON strings and lets Redis expire them.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	if err := s.rdb.Set(ctx, keyPrefix+sess.ID, data, ttl).Err(); err != nil {
		return errors.Wrap(err, "save session")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, errors.Wrap(err, "get session")
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, "unmarshal session")
	}
	sess.ID = id
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

// Ping reports whether Redis is reachable. Used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Manager issues, resolves and revokes cookie sessions.
type Manager struct {
	store  Store
	cookie CookieConfig
	now    func() time.Time
}

func NewManager(store Store, cfg CookieConfig) *Manager {
	if cfg.Name == "" {
		cfg.Name = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Manager{store: store, cookie: cfg, now: time.Now}
}

// Start creates a session for u and sets the cookie on w.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, u *user.User) (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:        id,
		UserID:    u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Save(ctx, sess, m.cookie.TTL); err != nil {
		return nil, err
	}
	http.SetCookie(w, m.newCookie(id, int(m.cookie.TTL/time.Second)))
	return sess, nil
}

// Load resolves the session referenced by the request cookie.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cookie.Name)
	if err != nil || c.Value == "" {
		return nil, ErrNotFound
	}
	return m.store.Get(r.Context(), c.Value)
}

// End deletes the request's session, if any, and clears the cookie.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, m.newCookie("", -1))
	c, err := r.Cookie(m.cookie.Name)
	if err != nil || c.Value == "" {
		return nil
	}
	return m.store.Delete(r.Context(), c.Value)
}

func (m *Manager) newCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generate session id")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by NewContext.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
