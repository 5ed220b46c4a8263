// Package session owns the admin session lifecycle: a Session is created by
// SignIn, passed explicitly into every operation and destroyed by SignOut.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/redis"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

type Session struct {
	AdminID   uuid.UUID
	Email     string
	Role      string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Authorizer is consulted first by every mutating operation.
type Authorizer interface {
	IsCurrentUserAdmin(ctx context.Context, s *Session) (bool, error)
}

type claims struct {
	AdminID string `json:"admin_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	admins      repository.AdminRepository
	redisClient redis.RedisClient
	secret      []byte
	ttl         time.Duration
	now         func() time.Time
}

func NewManager(admins repository.AdminRepository, redisClient redis.RedisClient, secret string, ttl time.Duration) *Manager {
	return &Manager{
		admins:      admins,
		redisClient: redisClient,
		secret:      []byte(secret),
		ttl:         ttl,
		now:         time.Now,
	}
}

func tokenKey(adminID uuid.UUID) string {
	return fmt.Sprintf("admin:%s:token", adminID)
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	tracer := otel.Tracer("session-manager")
	ctx, span := tracer.Start(ctx, "SignIn")
	defer span.End()

	admin, err := m.admins.GetByEmail(ctx, email)
	if err != nil {
		if !stderrors.Is(err, pkgerrors.ErrAdminNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "admin lookup failed")
			slog.Error("failed to look up admin", "email", email, "error", err)
			return nil, fmt.Errorf("failed to sign in: %w", err)
		}
		slog.Warn("sign in for unknown admin", "email", email)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		span.SetStatus(codes.Error, "invalid password")
		slog.Warn("invalid password", "email", email)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	now := m.now()
	c := claims{
		AdminID: admin.ID.String(),
		Role:    admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to generate JWT", "error", err)
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if err := m.redisClient.Set(ctx, tokenKey(admin.ID), token, m.ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store session")
		slog.Error("failed to cache JWT", "admin_id", admin.ID, "error", err)
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	slog.Info("admin signed in", "admin_id", admin.ID, "email", admin.Email)
	return &Session{
		AdminID:   admin.ID,
		Email:     admin.Email,
		Role:      admin.Role,
		Token:     token,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// SignOut revokes the session token. Any copy of the Session stops passing
// IsCurrentUserAdmin.
func (m *Manager) SignOut(ctx context.Context, s *Session) error {
	if s == nil {
		return pkgerrors.ErrNilSession
	}
	if err := m.redisClient.Del(ctx, tokenKey(s.AdminID)); err != nil {
		slog.Error("failed to revoke session", "admin_id", s.AdminID, "error", err)
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	slog.Info("admin signed out", "admin_id", s.AdminID)
	return nil
}

// Resume rebuilds a Session from a bearer token issued by SignIn.
func (m *Manager) Resume(ctx context.Context, token string) (*Session, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		return nil, pkgerrors.ErrSessionExpired
	}
	if err != nil || !parsed.Valid {
		slog.Warn("invalid session token", "error", err)
		return nil, pkgerrors.ErrInvalidToken
	}

	adminID, err := uuid.Parse(c.AdminID)
	if err != nil {
		return nil, pkgerrors.ErrInvalidToken
	}

	active, err := m.tokenActive(ctx, adminID, token)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, pkgerrors.ErrSessionExpired
	}

	s := &Session{
		AdminID: adminID,
		Email:   c.Subject,
		Role:    c.Role,
		Token:   token,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	s.ExpiresAt = c.ExpiresAt.Time
	return s, nil
}

func (m *Manager) tokenActive(ctx context.Context, adminID uuid.UUID, token string) (bool, error) {
	stored, err := m.redisClient.Get(ctx, tokenKey(adminID))
	if stderrors.Is(err, redis.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		slog.Error("failed to read session token", "admin_id", adminID, "error", err)
		return false, fmt.Errorf("failed to read session token: %w", err)
	}
	return stored == token, nil
}

// IsCurrentUserAdmin checks that the session is live and that its admin
// still holds the admin role. The role is read fresh, not from the token.
func (m *Manager) IsCurrentUserAdmin(ctx context.Context, s *Session) (bool, error) {
	if s == nil || s.Expired(m.now()) {
		return false, nil
	}

	active, err := m.tokenActive(ctx, s.AdminID, s.Token)
	if err != nil || !active {
		return false, err
	}

	admin, err := m.admins.GetByID(ctx, s.AdminID)
	if stderrors.Is(err, pkgerrors.ErrAdminNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load admin: %w", err)
	}
	return admin.Role == models.RoleAdmin, nil
}

var _ Authorizer = (*Manager)(nil)
