package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/service/auth/tokenmanager"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
)

var ErrNoCredentials = errors.New("no credentials provided")

type Config struct {
	// Header to put access token to, 'Authorization' if empty
	AccessHeaderName string

	// Scheme prefix of the access header value, 'Bearer' if empty
	AccessAuthScheme string

	// Cookie to keep refresh token in, 'refreshtoken' if empty
	RefreshCookieName string
}

type tokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
	UseRefresh(ctx context.Context, refresh string) (models.RefreshToken, error)
	ParseAccess(ctx context.Context, access string) (tokenmanager.AccessTokenClaims, error)
}

type userService interface {
	CreateUser(ctx context.Context, username string, password string, role models.UserRole) (models.User, error)
	Login(ctx context.Context, username string, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

// Auth service
type AuthService struct {
	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string

	// Manager to issue token pairs (access and refresh)
	tokens tokenManager

	users userService
}

func NewService(cfg Config, tokens tokenManager, users userService) (*AuthService, error) {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	return &AuthService{
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		tokens:            tokens,
		users:             users,
	}, nil
}

// Register user and issue fresh token pair
func (s *AuthService) Register(ctx context.Context, username string, password string, role models.UserRole) (models.TokenPair, error) {
	user, err := s.users.CreateUser(ctx, username, password, role)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.issue(ctx, user)
}

// Login user and issue fresh token pair
// Returns apperrors.ErrUserNotFound if username or password doesn't match
func (s *AuthService) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.users.Login(ctx, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.issue(ctx, user)
}

// Refresh exchanges a refresh token for a new pair, the old one can't be used again
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.tokens.UseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.users.GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.issue(ctx, user)
}

// SetTokens writes access token to response header and refresh token to http only cookie
func (s *AuthService) SetTokens(ctx context.Context, w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		MaxAge:   int(time.Until(pair.Refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetRefresh reads refresh token from the request cookie
func (s *AuthService) GetRefresh(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", apperrors.ErrRefreshTokenNotFound
	}
	return cookie.Value, nil
}

// Auth returns the user whose access token is in the request header
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)
	if header == "" {
		return models.User{}, ErrNoCredentials
	}

	scheme, access, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) || access == "" {
		return models.User{}, fmt.Errorf("malformed %s header", s.accessHeaderName)
	}

	claims, err := s.tokens.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, err
	}

	return s.users.GetUserByID(ctx, claims.UserID)
}

func (s *AuthService) issue(ctx context.Context, user models.User) (models.TokenPair, error) {
	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return pair, fmt.Errorf("token could not generated, sorry. %w", err)
	}
	return pair, nil
}
