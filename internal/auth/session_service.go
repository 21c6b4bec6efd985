package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/models"
	"github.com/bsudfrance/bsf-server/pkg/crypto"
	"github.com/bsudfrance/bsf-server/pkg/metrics"
)

// Default session lifetimes, overridable through SessionConfig.
const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultRotateAfter = 3 * 24 * time.Hour
	DefaultIdleRotate  = 24 * time.Hour
)

var (
	// ErrSessionNotFound indicates that no live session matches the presented token.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionInvalidToken is returned when the supplied token is empty or malformed.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	TTL         time.Duration
	RotateAfter time.Duration
	IdleRotate  time.Duration
	TokenLength int
	Clock       func() time.Time
}

// ResolvedSession is the outcome of a successful token resolution. When the
// rotation policy fired, RotatedToken carries the replacement raw token the
// boundary must re-issue to the client; the presented token is already dead.
type ResolvedSession struct {
	Session      *models.Session
	User         *models.User
	RotatedToken string
}

// Rotated reports whether the resolution replaced the presented token.
func (r *ResolvedSession) Rotated() bool {
	return r.RotatedToken != ""
}

// SessionService manages creation, resolution, rotation, and revocation of
// cookie-backed login sessions. Only token hashes are persisted.
type SessionService struct {
	db          *gorm.DB
	ttl         time.Duration
	rotateAfter time.Duration
	idleRotate  time.Duration
	tokenLen    int
	now         func() time.Time
}

// NewSessionService constructs a session manager backed by the provided database.
func NewSessionService(db *gorm.DB, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	rotateAfter := cfg.RotateAfter
	if rotateAfter <= 0 {
		rotateAfter = DefaultRotateAfter
	}
	idleRotate := cfg.IdleRotate
	if idleRotate <= 0 {
		idleRotate = DefaultIdleRotate
	}
	length := cfg.TokenLength
	if length <= 0 {
		length = crypto.DefaultTokenLength
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SessionService{
		db:          db,
		ttl:         ttl,
		rotateAfter: rotateAfter,
		idleRotate:  idleRotate,
		tokenLen:    length,
		now:         clock,
	}, nil
}

// TTL exposes the configured session lifetime so the HTTP boundary can align
// cookie expiry with it.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Create opens a new session for the user and returns the raw token destined
// for the cookie. The token itself is never stored.
func (s *SessionService) Create(ctx context.Context, userID string) (string, *models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, errors.New("session service: user id is required")
	}

	token, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return "", nil, fmt.Errorf("session service: generate token: %w", err)
	}

	now := s.now()
	session := &models.Session{
		UserID:     userID,
		TokenHash:  crypto.HashToken(token),
		ExpiresAt:  now.Add(s.ttl),
		LastUsedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return "", nil, fmt.Errorf("session service: create session: %w", err)
	}

	metrics.ActiveSessions.Inc()

	return token, session, nil
}

// Resolve looks the token up among live sessions and applies the rotation
// policy. A missing, revoked, or expired session yields ErrSessionNotFound so
// the boundary can treat the caller as anonymous rather than failing.
func (s *SessionService) Resolve(ctx context.Context, token string) (*ResolvedSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionInvalidToken
	}

	now := s.now()

	var session models.Session
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("User.Member").
		Where("token_hash = ? AND revoked_at IS NULL AND expires_at > ?", crypto.HashToken(token), now).
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	if s.shouldRotate(&session, now) {
		return s.rotate(ctx, &session, now)
	}

	if err := s.db.WithContext(ctx).
		Model(&session).
		Update("last_used_at", now).Error; err != nil {
		return nil, fmt.Errorf("session service: touch session: %w", err)
	}
	session.LastUsedAt = now

	return &ResolvedSession{Session: &session, User: session.User}, nil
}

func (s *SessionService) shouldRotate(session *models.Session, now time.Time) bool {
	lastUsed := session.LastUsedAt
	if lastUsed.IsZero() {
		lastUsed = session.CreatedAt
	}
	return now.Sub(session.CreatedAt) > s.rotateAfter || now.Sub(lastUsed) > s.idleRotate
}

// rotate atomically revokes the presented session and inserts its replacement.
// The conditional update closes the race between two requests rotating the
// same session: only the winner creates a replacement, the loser resolves to
// anonymous and the client retries with whichever cookie was written last.
func (s *SessionService) rotate(ctx context.Context, session *models.Session, now time.Time) (*ResolvedSession, error) {
	newToken, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return nil, fmt.Errorf("session service: generate token: %w", err)
	}

	replacement := &models.Session{
		UserID:     session.UserID,
		TokenHash:  crypto.HashToken(newToken),
		ExpiresAt:  now.Add(s.ttl),
		LastUsedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Session{}).
			Where("id = ? AND revoked_at IS NULL", session.ID).
			Update("revoked_at", now)
		if result.Error != nil {
			return fmt.Errorf("revoke old session: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		if err := tx.Create(replacement).Error; err != nil {
			return fmt.Errorf("create replacement session: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session service: rotate: %w", err)
	}

	metrics.SessionRotations.Inc()

	return &ResolvedSession{
		Session:      replacement,
		User:         session.User,
		RotatedToken: newToken,
	}, nil
}

// Revoke marks every live session matching the token hash as revoked now.
// Unknown tokens are a no-op, which makes logout idempotent.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("token_hash = ? AND revoked_at IS NULL", crypto.HashToken(token)).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	return nil
}

// RevokeUserSessions revokes every live session belonging to a user, used when
// an account is deactivated.
func (s *SessionService) RevokeUserSessions(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("session service: user id is required")
	}

	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke user sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	return nil
}

// PurgeDeadSessions deletes revoked or expired rows whose state is older than
// the retention window. Live sessions are never touched; terminal rows remain
// queryable history until retention elapses.
func (s *SessionService) PurgeDeadSessions(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("session service: retention must be positive")
	}

	cutoff := s.now().Add(-retention)

	result := s.db.WithContext(ctx).
		Where("(revoked_at IS NOT NULL AND revoked_at < ?) OR expires_at < ?", cutoff, cutoff).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: purge sessions: %w", result.Error)
	}

	return result.RowsAffected, nil
}
