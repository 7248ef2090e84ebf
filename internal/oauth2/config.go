package oauth2

import (
	"restify/internal/config"
)

// Scope is a scope known to an authorization context. Only granted scopes are requested.
type Scope struct {
	Name  string
	Grant bool
}

// Config holds the static settings of one authorization context.
type Config struct {
	Name          string
	ClientID      string
	ClientSecret  string
	AuthURL       string
	TokenURL      string
	RevocationURL string
	RedirectURL   string
	Scopes        []Scope
}

// GrantedScopes returns the names of the scopes marked for granting, in declaration order.
func (c *Config) GrantedScopes() []string {
	granted := make([]string, 0, len(c.Scopes))
	for _, scope := range c.Scopes {
		if scope.Grant {
			granted = append(granted, scope.Name)
		}
	}
	return granted
}

// ConfigFromContext maps a configured authorization context onto a Config.
func ConfigFromContext(ac config.AuthContext) *Config {
	scopes := make([]Scope, 0, len(ac.Scopes))
	for _, scope := range ac.Scopes {
		scopes = append(scopes, Scope{Name: scope.Name, Grant: scope.Grant})
	}

	return &Config{
		Name:          ac.Name,
		ClientID:      ac.ClientID,
		ClientSecret:  ac.ClientSecret,
		AuthURL:       ac.AuthURL,
		TokenURL:      ac.TokenURL,
		RevocationURL: ac.RevocationURL,
		RedirectURL:   ac.RedirectURL,
		Scopes:        scopes,
	}
}
