package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultContextName names the context built from RESTIFY_* variables.
const DefaultContextName = "default"

// Grant types
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantServiceAccount    = "service_account"
	GrantNone              = "none"
)

// Scope is a scope an authorization context knows about. Only granted scopes are requested.
type Scope struct {
	Name  string `json:"scope" validate:"required"`
	Grant bool   `json:"grant"`
}

// UnmarshalJSON accepts either a bare scope string or {"scope": "...", "grant": bool}.
// Grant defaults to true.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = Scope{Name: name, Grant: true}
		return nil
	}

	raw := struct {
		Name  string `json:"scope"`
		Grant *bool  `json:"grant"`
	}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Scope{Name: raw.Name, Grant: raw.Grant == nil || *raw.Grant}
	return nil
}

// AuthContext describes one named authorization context.
type AuthContext struct {
	Name          string  `json:"name" validate:"required"`
	Grant         string  `json:"grant" validate:"oneof=authorization_code client_credentials service_account none"`
	ClientID      string  `json:"client_id" validate:"required_unless=Grant none"`
	ClientSecret  string  `json:"client_secret"`
	AuthURL       string  `json:"auth_url" validate:"required_if=Grant authorization_code"`
	TokenURL      string  `json:"token_url" validate:"required_unless=Grant none"`
	RevocationURL string  `json:"revocation_url"`
	RedirectURL   string  `json:"redirect_url"`
	Scopes        []Scope `json:"scopes" validate:"dive"`
	BaseURL       string  `json:"base_url"`
	APIKey        string  `json:"api_key"`
	StoreFile     string  `json:"store_file"`

	ServiceAccountEmail   string `json:"service_account_email" validate:"required_if=Grant service_account"`
	ServiceAccountKeyFile string `json:"service_account_key_file" validate:"required_if=Grant service_account"`
}

// GrantedScopes returns the names of the scopes marked for granting, in declaration order.
func (a AuthContext) GrantedScopes() []string {
	granted := make([]string, 0, len(a.Scopes))
	for _, scope := range a.Scopes {
		if scope.Grant {
			granted = append(granted, scope.Name)
		}
	}
	return granted
}

var validate = validator.New()

// Validate checks required fields and endpoint URLs.
func (a AuthContext) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("authorization context %q: %w", a.Name, err)
	}

	endpoints := map[string]string{
		"auth_url":  a.AuthURL,
		"token_url": a.TokenURL,
		"base_url":  a.BaseURL,
		// The revocation template carries a {token} placeholder
		"revocation_url": strings.ReplaceAll(a.RevocationURL, "{token}", "token"),
	}
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := endpoints[name]
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("authorization context %q: %s must be an absolute URL", a.Name, name)
		}
	}

	return nil
}

// AuthContexts returns the default context from the environment, when it is
// configured, followed by the contexts in RESTIFY_CONTEXTS_FILE. Every context is validated
// and names must be unique.
func (c *Config) AuthContexts() ([]AuthContext, error) {
	var contexts []AuthContext

	if c.DefaultContext.ClientID != "" || c.DefaultContext.Grant == GrantNone {
		contexts = append(contexts, c.DefaultContext)
	}

	if c.ContextsFile != "" {
		fromFile, err := LoadContextsFile(c.ContextsFile)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, fromFile...)
	}

	if len(contexts) == 0 {
		return nil, fmt.Errorf("no authorization context configured: set RESTIFY_CLIENT_ID or RESTIFY_CONTEXTS_FILE")
	}

	seen := make(map[string]bool, len(contexts))
	for _, ctx := range contexts {
		if err := ctx.Validate(); err != nil {
			return nil, err
		}
		if seen[ctx.Name] {
			return nil, fmt.Errorf("authorization context %q is defined more than once", ctx.Name)
		}
		seen[ctx.Name] = true
	}

	return contexts, nil
}

// LoadContextsFile reads a JSON array of authorization contexts.
// A context without a grant uses the authorization code flow.
func LoadContextsFile(path string) ([]AuthContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contexts file %s: %w", path, err)
	}

	var contexts []AuthContext
	if err := json.Unmarshal(data, &contexts); err != nil {
		return nil, fmt.Errorf("failed to parse contexts file %s: %w", path, err)
	}

	for i := range contexts {
		if contexts[i].Grant == "" {
			contexts[i].Grant = GrantAuthorizationCode
		}
	}

	return contexts, nil
}
