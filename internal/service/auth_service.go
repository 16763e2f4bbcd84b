package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/repository"
)

// Site roles a user account can hold.
const (
	SiteRoleSupervisor    = "supervisor"
	SiteRoleAreaManager   = "area_manager"
	SiteRoleSafetyOfficer = "safety_officer"
	SiteRoleSiteLeader    = "site_leader"
)

// AuthService handles registration, login and token verification.
type AuthService struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	log    zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, secret []byte, ttl time.Duration, log zerolog.Logger) *AuthService {
	return &AuthService{users: users, secret: secret, ttl: ttl, log: log}
}

func validSiteRole(role string) bool {
	switch role {
	case SiteRoleSupervisor, SiteRoleAreaManager, SiteRoleSafetyOfficer, SiteRoleSiteLeader:
		return true
	}
	return false
}

// Register creates a user account with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, email, name, password, role string) (*repository.User, error) {
	if email == "" {
		return nil, errors.InvalidInput("email", "an email is required")
	}
	if len(password) < 8 {
		return nil, errors.InvalidInput("password", "password must be at least 8 characters")
	}
	if !validSiteRole(role) {
		return nil, errors.InvalidInput("role", "unknown site role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}

	u := &repository.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", u.ID).Str("role", role).Msg("user registered")
	return u, nil
}

// Login verifies credentials and issues a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *repository.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Same error for unknown email and wrong password.
		return "", nil, errors.Unauthorized("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, errors.Unauthorized("invalid credentials")
	}

	claims := jwt.MapClaims{
		"user_id": u.ID,
		"role":    u.Role,
		"exp":     time.Now().Add(s.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to sign token")
	}
	return token, u, nil
}

// Identity is the authenticated caller extracted from a token. The core
// re-verifies it against permit slot bindings before acting; the role here
// is advisory.
type Identity struct {
	UserID string
	Role   string
}

// VerifyToken parses and validates a bearer token.
func (s *AuthService) VerifyToken(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthorized("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Unauthorized("invalid token claims")
	}
	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	if userID == "" {
		return nil, errors.Unauthorized("invalid token claims")
	}
	return &Identity{UserID: userID, Role: role}, nil
}
