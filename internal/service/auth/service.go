package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/teamroster/internal/domain"
	"github.com/splax/teamroster/internal/repository"
	"github.com/splax/teamroster/internal/service/rules"
	"github.com/splax/teamroster/pkg/config"
	"github.com/splax/teamroster/pkg/crypto"
	jwtpkg "github.com/splax/teamroster/pkg/jwt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidEmail        = errors.New("a valid email is required")
	ErrEmailTaken          = errors.New("email already registered")
	ErrAdminSignupDisabled = errors.New("admin signup is disabled")
	ErrTokenRequired       = errors.New("token required")
)

// Profiles is the document access the auth workflows need.
type Profiles interface {
	Get(ctx context.Context, actor rules.Actor, path string) (any, error)
	Set(ctx context.Context, actor rules.Actor, path string, value any) error
}

// Service handles authentication workflows.
type Service struct {
	users    repository.IdentityRepository
	profiles Profiles
	logger   *slog.Logger
	cfg      config.APIConfig
}

// New constructs a Service.
func New(users repository.IdentityRepository, profiles Profiles, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, profiles: profiles, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// SignupInput carries the registration form.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Signup registers an identity and writes its public profile.
func (s Service) Signup(ctx context.Context, in SignupInput) (*domain.Identity, domain.Profile, TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.Profile{}, TokenPair{}, ErrInvalidEmail
	}
	if err := crypto.ValidatePassword(in.Password); err != nil {
		return nil, domain.Profile{}, TokenPair{}, err
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return nil, domain.Profile{}, TokenPair{}, err
	}
	if role == domain.RoleAdmin && !s.cfg.AllowAdminSignup {
		return nil, domain.Profile{}, TokenPair{}, ErrAdminSignupDisabled
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, domain.Profile{}, TokenPair{}, err
	}
	identity := &domain.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.Profile{}, TokenPair{}, ErrEmailTaken
		}
		return nil, domain.Profile{}, TokenPair{}, err
	}

	profile := domain.Profile{ID: identity.ID, Name: strings.TrimSpace(in.Name), Email: email, Role: role}
	if err := s.profiles.Set(ctx, rules.SystemActor, domain.UserPath(identity.ID), profile.Document()); err != nil {
		s.logger.Error("profile write failed", "user_id", identity.ID, "error", err)
		if delErr := s.users.DeleteIdentity(context.WithoutCancel(ctx), identity.ID); delErr != nil {
			s.logger.Error("identity rollback failed", "user_id", identity.ID, "error", delErr)
		}
		return nil, domain.Profile{}, TokenPair{}, fmt.Errorf("write profile: %w", err)
	}

	tokens, err := s.issueTokens(identity)
	if err != nil {
		return nil, domain.Profile{}, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", identity.ID, "role", role)
	return identity, profile, tokens, nil
}

// Login authenticates an identity and returns tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.Identity, domain.Profile, TokenPair, error) {
	identity, err := s.users.GetIdentityByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Profile{}, TokenPair{}, ErrInvalidCredentials
		}
		return nil, domain.Profile{}, TokenPair{}, err
	}
	if err := crypto.ComparePassword(identity.PasswordHash, password); err != nil {
		return nil, domain.Profile{}, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(identity)
	if err != nil {
		return nil, domain.Profile{}, TokenPair{}, err
	}
	profile, err := s.Profile(ctx, identity)
	if err != nil {
		return nil, domain.Profile{}, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", identity.ID)
	return identity, profile, tokens, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s Service) Refresh(ctx context.Context, refreshToken string) (*domain.Identity, TokenPair, error) {
	trimmed := strings.TrimSpace(refreshToken)
	if trimmed == "" {
		return nil, TokenPair{}, ErrTokenRequired
	}
	claims, err := jwtpkg.ParseKind(trimmed, s.cfg.JWTSecret, jwtpkg.KindRefresh)
	if err != nil {
		return nil, TokenPair{}, err
	}
	identity, err := s.users.GetIdentityByID(ctx, claims.UserID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	tokens, err := s.issueTokens(identity)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return identity, tokens, nil
}

// Authorize validates an access token and returns the associated identity and claims.
// The stored role wins over the role claim.
func (s Service) Authorize(ctx context.Context, token string) (*domain.Identity, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, ErrTokenRequired
	}
	claims, err := jwtpkg.ParseKind(trimmed, s.cfg.JWTSecret, jwtpkg.KindAccess)
	if err != nil {
		return nil, nil, err
	}
	identity, err := s.users.GetIdentityByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return identity, claims, nil
}

// Profile reads the public profile of identity, falling back to identity fields when the
// document is missing.
func (s Service) Profile(ctx context.Context, identity *domain.Identity) (domain.Profile, error) {
	profile := domain.Profile{ID: identity.ID, Email: identity.Email, Role: identity.Role}
	node, err := s.profiles.Get(ctx, rules.SystemActor, domain.UserPath(identity.ID))
	if err != nil {
		return domain.Profile{}, err
	}
	if fields, ok := node.(map[string]any); ok {
		if name, ok := fields["name"].(string); ok {
			profile.Name = name
		}
		if email, ok := fields["email"].(string); ok && email != "" {
			profile.Email = email
		}
	}
	return profile, nil
}

func (s Service) issueTokens(identity *domain.Identity) (TokenPair, error) {
	role := string(identity.Role)
	access, err := jwtpkg.GenerateToken(identity.ID, role, jwtpkg.KindAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(identity.ID, role, jwtpkg.KindRefresh, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}
