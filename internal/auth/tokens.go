package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTTL  = 12 * time.Hour
	DefaultRefreshTTL = 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenConfig carries the signing material for a TokenService.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Identity is what a verified access token asserts about its bearer.
type Identity struct {
	UserID string
	Phone  string
	Role   string
}

type tokenClaims struct {
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 access and refresh tokens. Access
// and refresh tokens are signed with distinct secrets.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
	parser        *jwt.Parser
}

// NewTokenService validates cfg and builds a TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	s := &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// IssuePair signs a fresh access and refresh token for the user.
func (s *TokenService) IssuePair(phone, role, userID string) (TokenPair, error) {
	access, err := s.sign(tokenClaims{Phone: phone, Role: role, Type: tokenTypeAccess}, userID, s.accessTTL, s.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(tokenClaims{Type: tokenTypeRefresh}, userID, s.refreshTTL, s.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.accessTTL.Seconds())}, nil
}

// VerifyAccess returns the identity carried by a valid access token. Any
// verification failure yields false.
func (s *TokenService) VerifyAccess(token string) (*Identity, bool) {
	claims, ok := s.verify(token, s.accessSecret, tokenTypeAccess)
	if !ok {
		return nil, false
	}
	return &Identity{UserID: claims.Subject, Phone: claims.Phone, Role: claims.Role}, true
}

// VerifyRefresh returns the subject of a valid refresh token.
func (s *TokenService) VerifyRefresh(token string) (string, bool) {
	claims, ok := s.verify(token, s.refreshSecret, tokenTypeRefresh)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}

// Refresh issues a new access token for the subject of a valid refresh
// token. The refresh token itself is not rotated.
func (s *TokenService) Refresh(refreshToken, phone, role string) (string, bool) {
	userID, ok := s.VerifyRefresh(refreshToken)
	if !ok {
		return "", false
	}
	access, err := s.sign(tokenClaims{Phone: phone, Role: role, Type: tokenTypeAccess}, userID, s.accessTTL, s.accessSecret)
	if err != nil {
		return "", false
	}
	return access, true
}

// Expiration decodes the exp claim without verifying the signature. It is
// for reporting only and must never gate access.
func (s *TokenService) Expiration(token string) (time.Time, bool) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// AccessTTL is the lifetime of issued access tokens.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

func (s *TokenService) sign(claims tokenClaims, subject string, ttl time.Duration, secret []byte) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *TokenService) verify(token string, secret []byte, wantType string) (*tokenClaims, bool) {
	if token == "" {
		return nil, false
	}
	claims := &tokenClaims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if claims.Type != wantType || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}
