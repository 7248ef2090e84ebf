package oauth2

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"restify/internal/common/errors"
)

// JWTBearerGrantType is the RFC 7523 grant type for signed assertions.
const JWTBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// assertionLifetime is the validity of a signed assertion. Google rejects anything above one hour.
const assertionLifetime = time.Hour

type assertionClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// ServiceAccountHandler authorizes a service account by exchanging an
// RS256-signed JWT assertion at the token endpoint.
type ServiceAccountHandler struct {
	*RefreshingHandler
	config *Config
	tokens *TokenClient
	email  string
	key    *rsa.PrivateKey
	now    func() time.Time
}

// NewServiceAccountHandler creates a handler signing assertions for email with key.
func NewServiceAccountHandler(config *Config, tokens *TokenClient, email string, key *rsa.PrivateKey) (*ServiceAccountHandler, error) {
	if email == "" {
		return nil, errors.ValidationError("service account email is required")
	}
	if key == nil {
		return nil, errors.ValidationError("service account key is required")
	}

	h := &ServiceAccountHandler{
		config: config,
		tokens: tokens,
		email:  email,
		key:    key,
		now:    time.Now,
	}
	h.RefreshingHandler = NewRefreshingHandler(config, tokens, h.requestToken)
	return h, nil
}

// LoadPrivateKey reads a PEM encoded RSA private key.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to read service account key %s", path)).WithCause(err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to parse service account key %s", path)).WithCause(err)
	}
	return key, nil
}

// Assertion returns the signed assertion presented to the token endpoint.
func (h *ServiceAccountHandler) Assertion() (string, error) {
	now := h.now()
	claims := assertionClaims{
		Scope: strings.Join(h.config.GrantedScopes(), " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.email,
			Audience:  jwt.ClaimStrings{h.config.TokenURL},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(h.key)
	if err != nil {
		return "", errors.InternalError("failed to sign assertion", err)
	}
	return signed, nil
}

func (h *ServiceAccountHandler) requestToken(ctx context.Context) (*State, error) {
	assertion, err := h.Assertion()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", JWTBearerGrantType)
	form.Set("assertion", assertion)

	return h.tokens.RequestToken(ctx, h.config.TokenURL, form, h.config.GrantedScopes())
}
