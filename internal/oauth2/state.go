package oauth2

import (
	"time"
)

// State holds the token material granted to an authorization context.
// The zero value and a disposed State are both expired and not refreshable.
type State struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	GrantedAt    time.Time     `json:"granted_at"`
	ExpiresIn    time.Duration `json:"expires_in"`
	ExpiresAt    time.Time     `json:"expires_at"`
	Scopes       []string      `json:"scopes"`
}

// NewState creates a State granted at grantedAt and valid for expiresIn.
// A nil scopes slice is stored as an empty one.
func NewState(accessToken, refreshToken string, expiresIn time.Duration, tokenType string, grantedAt time.Time, scopes []string) *State {
	granted := make([]string, len(scopes))
	copy(granted, scopes)

	grantedAt = grantedAt.UTC()
	return &State{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
		GrantedAt:    grantedAt,
		ExpiresIn:    expiresIn,
		ExpiresAt:    grantedAt.Add(expiresIn),
		Scopes:       granted,
	}
}

// IsExpired reports whether the access token has expired.
func (s *State) IsExpired() bool {
	return s.IsExpiredAt(time.Now().UTC())
}

// IsExpiredAt reports whether the access token is expired at t.
// The token is expired from ExpiresAt on.
func (s *State) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// IsRefreshable reports whether a refresh token is available.
func (s *State) IsRefreshable() bool {
	return s.RefreshToken != ""
}

// HasScopes returns the scopes in required that were not granted.
func (s *State) HasScopes(required ...string) []string {
	granted := make(map[string]struct{}, len(s.Scopes))
	for _, scope := range s.Scopes {
		granted[scope] = struct{}{}
	}

	var missing []string
	for _, scope := range required {
		if _, ok := granted[scope]; !ok {
			missing = append(missing, scope)
		}
	}
	return missing
}

// Clone returns a deep copy, so stores never share token material with a live context.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Scopes = append([]string(nil), s.Scopes...)
	if clone.Scopes == nil {
		clone.Scopes = []string{}
	}
	return &clone
}

// Dispose scrubs the token material. A disposed State is expired.
func (s *State) Dispose() {
	s.AccessToken = ""
	s.RefreshToken = ""
	s.TokenType = ""
	s.GrantedAt = time.Time{}
	s.ExpiresIn = 0
	s.ExpiresAt = time.Time{}
	s.Scopes = []string{}
}
