package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"ms-booking/internal/config"
	"ms-booking/internal/models"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// staffRoles grant admin access when present in the token's roles.
var staffRoles = map[string]bool{"admin": true, "staff": true}

// Verifier turns a bearer token into the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (models.Actor, error)
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid Authorization header format")
	}
	return parts[1], nil
}

type claims struct {
	Email       string   `json:"email"`
	IsStaff     bool     `json:"is_staff"`
	Roles       []string `json:"roles"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

func (c *claims) actor() (models.Actor, error) {
	if c.Subject == "" {
		return models.Actor{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	staff := c.IsStaff
	for _, r := range append(c.Roles, c.RealmAccess.Roles...) {
		if staffRoles[strings.ToLower(r)] {
			staff = true
		}
	}
	return models.Actor{UserID: c.Subject, Email: c.Email, IsStaff: staff}, nil
}

// HS256Verifier checks tokens signed with a shared secret.
type HS256Verifier struct {
	secret []byte
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

func (v *HS256Verifier) Verify(_ context.Context, rawToken string) (models.Actor, error) {
	c := new(claims)
	_, err := jwt.ParseWithClaims(rawToken, c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return c.actor()
}

// Issue signs an access token for actor. Used by local tooling and tests.
func (v *HS256Verifier) Issue(actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Email:   actor.Email,
		IsStaff: actor.IsStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

// OIDCVerifier checks tokens against an OpenID Connect issuer.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	// access tokens carry no fixed audience
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (models.Actor, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	c := new(claims)
	if err := idToken.Claims(c); err != nil {
		return models.Actor{}, fmt.Errorf("%w: parse claims: %v", ErrUnauthenticated, err)
	}
	c.Subject = idToken.Subject
	return c.actor()
}

// NewVerifier prefers OIDC when an issuer is configured.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (Verifier, error) {
	if cfg.OIDCIssuer != "" {
		return NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth: neither OIDC_ISSUER nor JWT_SECRET is set")
	}
	return NewHS256Verifier(cfg.JWTSecret), nil
}
