package oauth2

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	xoauth2 "golang.org/x/oauth2"
	"restify/internal/common/errors"
	"restify/internal/common/logging"
)

// OOBRedirectURL asks the authorization server to show the code to the user instead of redirecting.
const OOBRedirectURL = "urn:ietf:wg:oauth:2.0:oob"

// AccessCodeProvider lets the resource owner approve authURL and returns the authorization code.
type AccessCodeProvider interface {
	AccessCode(ctx context.Context, authURL string) (string, error)
}

// InteractiveHandler runs the authorization code grant with PKCE.
type InteractiveHandler struct {
	*RefreshingHandler
	config *Config
	tokens *TokenClient
	codes  AccessCodeProvider
}

// NewInteractiveHandler creates an authorization code handler asking codes for the code.
func NewInteractiveHandler(config *Config, tokens *TokenClient, codes AccessCodeProvider) *InteractiveHandler {
	h := &InteractiveHandler{config: config, tokens: tokens, codes: codes}
	h.RefreshingHandler = NewRefreshingHandler(config, tokens, h.authorize)
	return h
}

func (h *InteractiveHandler) redirectURL() string {
	if h.config.RedirectURL == "" {
		return OOBRedirectURL
	}
	return h.config.RedirectURL
}

// AuthCodeURL returns the consent URL for state and the PKCE verifier.
func (h *InteractiveHandler) AuthCodeURL(state, verifier string) string {
	endpoint := &xoauth2.Config{
		ClientID:    h.config.ClientID,
		RedirectURL: h.redirectURL(),
		Scopes:      h.config.GrantedScopes(),
		Endpoint: xoauth2.Endpoint{
			AuthURL:  h.config.AuthURL,
			TokenURL: h.config.TokenURL,
		},
	}
	return endpoint.AuthCodeURL(state, xoauth2.AccessTypeOffline, xoauth2.S256ChallengeOption(verifier))
}

func (h *InteractiveHandler) authorize(ctx context.Context) (*State, error) {
	verifier := xoauth2.GenerateVerifier()
	authURL := h.AuthCodeURL(uuid.NewString(), verifier)

	code, err := h.codes.AccessCode(ctx, authURL)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.InvalidOperationError("the access code could not be retrieved")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", h.redirectURL())
	form.Set("client_id", h.config.ClientID)
	form.Set("client_secret", h.config.ClientSecret)
	form.Set("code_verifier", verifier)

	return h.tokens.RequestToken(ctx, h.config.TokenURL, form, h.config.GrantedScopes())
}

// LoopbackCodeProvider receives the code on a local listener bound to the redirect URL.
type LoopbackCodeProvider struct {
	redirect *url.URL
	out      io.Writer
	logger   logging.Logger

	// Open presents the consent URL to the user. The default prints it to out.
	Open func(authURL string) error
}

// NewLoopbackCodeProvider creates a provider listening on redirectURL, which must be
// an http URL on a loopback host.
func NewLoopbackCodeProvider(redirectURL string, out io.Writer) (*LoopbackCodeProvider, error) {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Scheme != "http" || !IsLoopbackHost(u.Hostname()) || u.Port() == "" {
		return nil, errors.ConfigError(fmt.Sprintf("redirect URL %q is not an http loopback address with a port", redirectURL))
	}
	if u.Path == "" {
		u.Path = "/"
	}

	p := &LoopbackCodeProvider{
		redirect: u,
		out:      out,
		logger:   logging.GetGlobalLogger(),
	}
	p.Open = p.print
	return p, nil
}

// IsLoopbackHost reports whether host names the local machine.
func IsLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (p *LoopbackCodeProvider) print(authURL string) error {
	_, err := fmt.Fprintf(p.out, "Open the following URL in your browser to authorize:\n\n  %s\n\n", authURL)
	return err
}

type callbackResult struct {
	code string
	err  error
}

// AccessCode waits for the authorization server to redirect back with a code.
// The callback must carry the state parameter of authURL.
func (p *LoopbackCodeProvider) AccessCode(ctx context.Context, authURL string) (string, error) {
	parsed, err := url.Parse(authURL)
	if err != nil {
		return "", errors.ValidationError("invalid authorization URL").WithCause(err)
	}
	expectedState := parsed.Query().Get("state")

	listener, err := net.Listen("tcp", p.redirect.Host)
	if err != nil {
		return "", errors.ConnectionError("failed to listen for the authorization callback", err)
	}

	results := make(chan callbackResult, 1)
	router := mux.NewRouter()
	router.HandleFunc(p.redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		// Only a callback carrying the state may end the flow, a denial included
		if query.Get("state") != expectedState {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			p.logger.Warn("Ignoring authorization callback with unexpected state")
			return
		}

		var result callbackResult
		switch {
		case query.Get("error") != "":
			result.err = errors.AuthError("authorization was denied").WithCode(query.Get("error"))
		default:
			result.code = query.Get("code")
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if result.err != nil {
			fmt.Fprintf(w, "<p>Authorization failed: %s. You can close this window.</p>", html.EscapeString(query.Get("error")))
		} else {
			fmt.Fprint(w, "<p>Authorization complete. You can close this window.</p>")
		}

		select {
		case results <- result:
		default:
		}
	}).Methods(http.MethodGet)

	server := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			p.logger.Error("Authorization callback listener failed", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := p.Open(authURL); err != nil {
		return "", errors.InternalError("failed to present the authorization URL", err)
	}

	select {
	case result := <-results:
		return result.code, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// PromptCodeProvider prints the consent URL and reads the code the user pastes.
// Use it with OOBRedirectURL or a redirect page that displays the code.
//
// At most one read of in is pending at a time. A read left pending by a
// cancelled call answers the next call.
type PromptCodeProvider struct {
	in  *bufio.Reader
	out io.Writer

	mu      sync.Mutex
	reading bool
	lines   chan callbackResult
}

// NewPromptCodeProvider creates a provider reading codes from in and prompting on out.
func NewPromptCodeProvider(in io.Reader, out io.Writer) *PromptCodeProvider {
	return &PromptCodeProvider{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan callbackResult, 1),
	}
}

func (p *PromptCodeProvider) readLine() {
	line, err := p.in.ReadString('\n')
	if err != nil && !(stderrors.Is(err, io.EOF) && line != "") {
		p.lines <- callbackResult{err: errors.InternalError("failed to read the authorization code", err)}
		return
	}
	p.lines <- callbackResult{code: strings.TrimSpace(line)}
}

func (p *PromptCodeProvider) AccessCode(ctx context.Context, authURL string) (string, error) {
	if _, err := fmt.Fprintf(p.out, "Open the following URL in your browser to authorize:\n\n  %s\n\nEnter the authorization code: ", authURL); err != nil {
		return "", errors.InternalError("failed to prompt for the authorization code", err)
	}

	p.mu.Lock()
	if !p.reading {
		p.reading = true
		go p.readLine()
	}
	p.mu.Unlock()

	select {
	case result := <-p.lines:
		p.mu.Lock()
		p.reading = false
		p.mu.Unlock()
		return result.code, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
