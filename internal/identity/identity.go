package identity

import (
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joseph-ayodele/clauseguard/constants"
)

var (
	ErrNotConfigured = errors.New("identity: no verification key configured")
	ErrInvalidToken  = errors.New("identity: invalid or expired session token")
)

// Identity is a read-only snapshot of an authenticated caller, taken once per request.
type Identity struct {
	ID    string
	Email string
	Role  string
	Plan  string
}

func (i *Identity) IsAdmin() bool {
	return i != nil && strings.EqualFold(i.Role, constants.RoleAdmin)
}

// AppMetadata is the server-controlled part of the session token.
type AppMetadata struct {
	Role string `json:"role,omitempty"`
	Plan string `json:"plan,omitempty"`
}

// Claims represents the session token claims issued by the identity store.
type Claims struct {
	Email       string      `json:"email,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Config for the Verifier. Exactly one of HMACSecret or PublicKeyPEM is expected.
type Config struct {
	Issuer       string
	Audience     string
	HMACSecret   string
	PublicKeyPEM string
	Leeway       time.Duration
}

// Verifier validates session tokens and turns them into identities.
type Verifier struct {
	key    any
	parser *jwt.Parser
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	v := &Verifier{}
	switch {
	case strings.TrimSpace(cfg.PublicKeyPEM) != "":
		key, methods, err := parsePublicKey([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, err
		}
		v.key = key
		opts = append(opts, jwt.WithValidMethods(methods))
	case cfg.HMACSecret != "":
		v.key = []byte(cfg.HMACSecret)
		opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	default:
		return &Verifier{}, nil
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

func parsePublicKey(pem []byte) (crypto.PublicKey, []string, error) {
	if k, err := jwt.ParseRSAPublicKeyFromPEM(pem); err == nil {
		return k, []string{"RS256", "RS384", "RS512", "PS256"}, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(pem); err == nil {
		return k, []string{"ES256", "ES384", "ES512"}, nil
	}
	if k, err := jwt.ParseEdPublicKeyFromPEM(pem); err == nil {
		return k, []string{"EdDSA"}, nil
	}
	return nil, nil, fmt.Errorf("identity: unsupported public key")
}

// Enabled reports whether any token can be verified at all.
func (v *Verifier) Enabled() bool {
	return v != nil && v.parser != nil
}

// Verify checks signature, expiry, audience and issuer and returns the caller's identity.
func (v *Verifier) Verify(token string) (*Identity, error) {
	if !v.Enabled() {
		return nil, ErrNotConfigured
	}
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &Identity{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.AppMetadata.Role,
		Plan:  claims.AppMetadata.Plan,
	}, nil
}

// IssueToken signs an HS256 session token for id. Used by local tooling and tests.
func IssueToken(secret, audience string, id Identity, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Email:       id.Email,
		AppMetadata: AppMetadata{Role: id.Role, Plan: id.Plan},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return s, expiresAt, nil
}
