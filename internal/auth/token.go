package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/property-service/internal/domain"
)

const defaultScheme = "Bearer"

// TokenConfig carries the immutable key material and claim expectations.
type TokenConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	Scheme    string
	ClockSkew time.Duration
	TTL       time.Duration
	// Now overrides the wall clock; nil means time.Now.
	Now func() time.Time
}

// TokenManager verifies bearer JWTs. It holds no mutable state and is safe for concurrent use.
type TokenManager struct {
	secret   []byte
	issuer   string
	audience string
	scheme   string
	ttl      time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// Claims describes JWT payload.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims

	userID int64
}

// UserID returns the numeric subject validated during parsing.
func (c *Claims) UserID() int64 {
	return c.userID
}

// VerifiedToken pairs the raw bearer value with its validated claims.
type VerifiedToken struct {
	Raw    string
	Claims *Claims
}

// NewTokenManager builds a new manager.
func NewTokenManager(cfg TokenConfig) *TokenManager {
	if cfg.Scheme == "" {
		cfg.Scheme = defaultScheme
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.ClockSkew > 0 {
		options = append(options, jwt.WithLeeway(cfg.ClockSkew))
	}

	return &TokenManager{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		scheme:   cfg.Scheme,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		parser:   jwt.NewParser(options...),
	}
}

// GenerateToken signs a token for userID. Production tokens come from the login service;
// this is used by tests and local tooling.
func (tm *TokenManager) GenerateToken(userID int64, role domain.Role) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{tm.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Verify extracts the bearer token from an Authorization header value and validates it.
func (tm *TokenManager) Verify(header string) (*VerifiedToken, error) {
	raw, err := tm.BearerToken(header)
	if err != nil {
		return nil, err
	}
	claims, err := tm.ParseToken(raw)
	if err != nil {
		return nil, err
	}
	return &VerifiedToken{Raw: raw, Claims: claims}, nil
}

// BearerToken accepts exactly "<scheme> <token>" with a case-insensitive scheme.
func (tm *TokenManager) BearerToken(header string) (string, error) {
	if header == "" {
		return "", &CredentialError{Kind: CredentialMissing, Err: errors.New("missing authorization header")}
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], tm.scheme) || parts[1] == "" {
		return "", &CredentialError{Kind: CredentialMissing, Err: errors.New("invalid authorization header")}
	}
	return parts[1], nil
}

// ParseToken validates signature, issuer, audience and expiry and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := tm.parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, &CredentialError{Kind: CredentialMalformed, Err: fmt.Errorf("invalid subject %q", claims.Subject)}
	}
	claims.userID = userID
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &CredentialError{Kind: CredentialExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return &CredentialError{Kind: CredentialMalformed, Err: err}
	default:
		return &CredentialError{Kind: CredentialVerificationFailed, Err: err}
	}
}
