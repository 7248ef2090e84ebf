package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"restify/internal/circuitbreaker"
	"restify/internal/common/errors"
	"restify/internal/rest"
)

// DefaultTokenType is assumed when a token response omits token_type.
const DefaultTokenType = "Bearer"

// TokenResponse is the token endpoint answer defined by RFC 6749 section 5.1.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ParseTokenResponse decodes a token endpoint answer into a State granted at issuedAt.
// scopes are the scopes the context asked for; unknown fields are ignored.
func ParseTokenResponse(body []byte, issuedAt time.Time, scopes []string) (*State, error) {
	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.ValidationError("failed to decode token response").WithCause(err)
	}
	if resp.AccessToken == "" {
		return nil, errors.ValidationError("token response carries no access_token")
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}

	return NewState(
		resp.AccessToken,
		resp.RefreshToken,
		time.Duration(resp.ExpiresIn)*time.Second,
		tokenType,
		issuedAt,
		scopes,
	), nil
}

// TokenClient talks to token and revocation endpoints.
type TokenClient struct {
	client  *http.Client
	breaker *circuitbreaker.GoBreakerAdapter
	now     func() time.Time
}

// NewTokenClient creates a client sending requests with client, guarded by breaker.
// Either may be nil: http.DefaultClient is used and calls go unguarded.
func NewTokenClient(client *http.Client, breaker *circuitbreaker.GoBreakerAdapter) *TokenClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenClient{
		client:  client,
		breaker: breaker,
		now:     time.Now,
	}
}

// RequestToken posts form to tokenURL and parses the granted State.
// Non-2xx answers yield *rest.HTTPError.
func (c *TokenClient) RequestToken(ctx context.Context, tokenURL string, form url.Values, scopes []string) (*State, error) {
	issuedAt := c.now().UTC()

	body, err := c.do(ctx, "token request", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return ParseTokenResponse(body, issuedAt, scopes)
}

// Revoke revokes accessToken at the endpoint described by template.
//
// A 400 answer whose error code is invalid_token means the token is already
// unusable and counts as success. Every other non-2xx answer yields *rest.HTTPError.
func (c *TokenClient) Revoke(ctx context.Context, template, accessToken string) error {
	target := RevocationURL(template, accessToken)

	_, err := c.do(ctx, "revocation request", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	}, func(httpErr *rest.HTTPError) bool {
		return httpErr.StatusCode == http.StatusBadRequest && httpErr.Code == "invalid_token"
	})
	return err
}

// RevocationURL substitutes the query-escaped token into template.
// The template marks the token with {token} or a single %s; a template
// with neither gets the token appended as the token query parameter.
func RevocationURL(template, token string) string {
	escaped := url.QueryEscape(token)

	switch {
	case strings.Contains(template, "{token}"):
		return strings.ReplaceAll(template, "{token}", escaped)
	case strings.Count(template, "%s") == 1:
		return strings.Replace(template, "%s", escaped, 1)
	case strings.Contains(template, "?"):
		return template + "&token=" + escaped
	default:
		return template + "?token=" + escaped
	}
}

func (c *TokenClient) do(ctx context.Context, operation string, build func() (*http.Request, error), tolerate func(*rest.HTTPError) bool) ([]byte, error) {
	req, err := build()
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("failed to create %s", operation)).WithCause(err)
	}

	var body []byte
	send := func() error {
		resp, err := c.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return errors.ConnectionError(operation+" failed", err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return errors.ConnectionError(fmt.Sprintf("failed to read %s response", operation), err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			httpErr := rest.NewHTTPError(resp.StatusCode, body)
			if tolerate != nil && tolerate(httpErr) {
				return nil
			}
			return httpErr
		}
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(ctx, send)
	} else {
		err = send()
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}
