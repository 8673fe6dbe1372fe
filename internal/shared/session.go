package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "lumen_session"

// ErrNoSession indicates the request carries no resolvable session.
var ErrNoSession = errors.New("no session")

// SessionManager resolves request sessions from Redis. Sessions are written by
// the upstream authentication service; this side only reads the identity the
// billing engine should trust.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
}

type sessionPayload struct {
	TenantID  int64  `json:"tenant_id"`
	ActorID   int64  `json:"actor_id"`
	ActorName string `json:"actor_name"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, ttl time.Duration) *SessionManager {
	return &SessionManager{client: client, ttl: ttl}
}

// Issue stores an identity and returns its session token. Used by seeding and
// tests; production tokens are minted by the auth service.
func (m *SessionManager) Issue(ctx context.Context, id Identity) (string, error) {
	token := uuid.NewString()
	raw, err := json.Marshal(sessionPayload{TenantID: id.TenantID, ActorID: id.ActorID, ActorName: id.ActorName})
	if err != nil {
		return "", err
	}
	if err := m.client.Set(ctx, sessionKey(token), raw, m.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Load resolves the identity for the request, refreshing the TTL.
func (m *SessionManager) Load(ctx context.Context, r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	raw, err := m.client.Get(ctx, sessionKey(cookie.Value)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	_ = m.client.Expire(ctx, sessionKey(cookie.Value), m.ttl).Err()
	return &Identity{TenantID: payload.TenantID, ActorID: payload.ActorID, ActorName: payload.ActorName}, nil
}

// Revoke deletes a session token.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	return m.client.Del(ctx, sessionKey(token)).Err()
}

func sessionKey(token string) string {
	return "session:" + token
}
