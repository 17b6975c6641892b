// Package auth validates the bearer credentials presented by players over
// the websocket. The token issuer is an external collaborator; this package
// only verifies signatures and extracts a stable identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"github.com/critforge/sessiond/internal/wire"
)

var (
	ErrMissingToken = errors.New("auth: token is required")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Config holds the verification parameters, read from the environment so
// the signing secret never travels through CLI flags.
type Config struct {
	Secret   string `env:"SESSIOND_AUTH_SECRET"`
	Issuer   string `env:"SESSIOND_AUTH_ISSUER" envDefault:"critforge"`
	Audience string `env:"SESSIOND_AUTH_AUDIENCE" envDefault:"sessiond"`
}

// LoadConfigFromEnv reads the validator configuration.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse auth env: %w", err)
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return Config{}, fmt.Errorf("SESSIOND_AUTH_SECRET is required")
	}
	return cfg, nil
}

type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Validator verifies HS256 bearer tokens minted by the platform's account
// service.
type Validator struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewValidator(cfg Config) *Validator {
	return &Validator{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
}

// Validate checks the token signature and registered claims and returns the
// identity it carries.
func (v *Validator) Validate(token string) (wire.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return wire.Identity{}, ErrMissingToken
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return wire.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if parsed.Subject == "" {
		return wire.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	username := parsed.Username
	if username == "" {
		username = parsed.Subject
	}

	return wire.Identity{UserID: parsed.Subject, Username: username}, nil
}

// IssueToken mints a signed token for the given identity. The production
// issuer lives in the account service; this is used by the token command
// and by tests.
func IssueToken(cfg Config, identity wire.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: identity.Username,
	})
	return token.SignedString([]byte(cfg.Secret))
}
