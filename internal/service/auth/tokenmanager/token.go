package tokenmanager

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
)

const (
	DefaultIssuer = "medipals"

	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 24 * time.Hour
	defaultSigningMethod   = "HS256"

	refreshTokenBytes = 32
)

var ErrInvalidAccess = errors.New("invalid access token")

// AccessTokenClaims identify the user and the role the token was issued for
// Subject repeats UserID for clients reading standard claims only
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID       `json:"uid"`
	Role   models.UserRole `json:"role"`
}

type Config struct {
	// Required
	SecretKey string

	// HMAC algorithm, HS256 if empty
	Alg string

	// Written to and required in access tokens, DefaultIssuer if empty
	Issuer string

	// Zero means default
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Allowed clock skew between instances
	Leeway time.Duration
}

type TokenManager struct {
	secret     []byte
	method     jwt.SigningMethod
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration

	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	alg := cmp.Or(cfg.Alg, defaultSigningMethod)
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing method %q, HMAC expected", alg)
	}

	return &TokenManager{
		secret:      []byte(cfg.SecretKey),
		method:      method,
		issuer:      cmp.Or(cfg.Issuer, DefaultIssuer),
		accessTTL:   cmp.Or(cfg.AccessTTL, defaultAccessTokenTTL),
		refreshTTL:  cmp.Or(cfg.RefreshTTL, defaultRefreshTokenTTL),
		leeway:      cfg.Leeway,
		refreshRepo: refreshRepo,
	}, nil
}

// GeneratePair signs an access token and stores a new single use refresh token
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	now := time.Now().Truncate(time.Second)

	access, err := m.signAccess(user, now)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := m.saveRefresh(ctx, user.ID, now)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: refresh.Token, ExpiresAt: refresh.ExpiresAt},
	}, nil
}

// UseRefresh marks the refresh token used, expired tokens are burnt too
func (m *TokenManager) UseRefresh(ctx context.Context, refresh string) (models.RefreshToken, error) {
	token, err := m.refreshRepo.GetAndMarkUsed(ctx, refresh)
	switch {
	case err != nil:
		return token, fmt.Errorf("refresh token: %w", err)
	case !token.ExpiresAt.After(time.Now()):
		return token, fmt.Errorf("refresh token of user %s: %w", token.UserID, apperrors.ErrRefreshTokenExpired)
	default:
		return token, nil
	}
}

// ParseAccess verifies signature, issuer and lifetime of the access token
func (m *TokenManager) ParseAccess(_ context.Context, access string) (AccessTokenClaims, error) {
	var claims AccessTokenClaims

	_, err := jwt.ParseWithClaims(access, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway),
	)
	switch {
	case err != nil:
		return claims, fmt.Errorf("%w: %w", ErrInvalidAccess, err)
	case claims.UserID == uuid.Nil || claims.Subject != claims.UserID.String():
		return claims, fmt.Errorf("%w: subject does not match user", ErrInvalidAccess)
	case !claims.Role.Valid():
		return claims, fmt.Errorf("%w: unknown role %q", ErrInvalidAccess, claims.Role)
	default:
		return claims, nil
	}
}

func (m *TokenManager) signAccess(user models.User, now time.Time) (models.IssuedToken, error) {
	expiresAt := now.Add(m.accessTTL)

	signed, err := jwt.NewWithClaims(m.method, AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: user.ID,
		Role:   user.Role,
	}).SignedString(m.secret)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("sign access token: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

func (m *TokenManager) saveRefresh(ctx context.Context, userID uuid.UUID, now time.Time) (models.RefreshToken, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return models.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}

	saved, err := m.refreshRepo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     base64.RawURLEncoding.EncodeToString(b),
		CreatedAt: now,
		ExpiresAt: now.Add(m.refreshTTL),
	})
	if err != nil {
		return saved, fmt.Errorf("save refresh token: %w", err)
	}
	return saved, nil
}
