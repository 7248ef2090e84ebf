package oauth2

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	goredis "github.com/go-redis/redis/v8"
	"restify/internal/circuitbreaker"
	"restify/internal/common/errors"
	"restify/internal/common/logging"
	"restify/internal/config"
	"restify/internal/crypto"
)

// Provider owns the authorization contexts of a process and the store backends they share.
type Provider struct {
	contexts map[string]*Context
	order    []string

	redis  *goredis.Client
	db     *sql.DB
	sealer *crypto.Sealer

	client   *http.Client
	breakers *circuitbreaker.Manager
	codes    AccessCodeProvider
	prompt   io.Writer
	logger   logging.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithCodeProvider sets how authorization code contexts obtain the code.
// By default a loopback redirect URL is served locally and any other redirect
// URL prompts on stdin.
func WithCodeProvider(codes AccessCodeProvider) ProviderOption {
	return func(p *Provider) {
		p.codes = codes
	}
}

// WithPromptOutput sets where consent URLs and prompts are written. The default is stderr.
func WithPromptOutput(w io.Writer) ProviderOption {
	return func(p *Provider) {
		p.prompt = w
	}
}

// NewProvider builds one Context per configured authorization context.
func NewProvider(ctx context.Context, cfg *config.Config, client *http.Client, opts ...ProviderOption) (*Provider, error) {
	authContexts, err := cfg.AuthContexts()
	if err != nil {
		return nil, errors.ConfigError("invalid authorization contexts").WithCause(err)
	}

	p := &Provider{
		contexts: make(map[string]*Context, len(authContexts)),
		client:   client,
		breakers: circuitbreaker.NewManager(circuitbreaker.OAuthConfig, logging.GetGlobalLogger()),
		prompt:   os.Stderr,
		logger:   logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.openBackend(ctx, cfg); err != nil {
		return nil, err
	}

	for _, ac := range authContexts {
		c, err := p.newContext(ctx, cfg, ac)
		if err != nil {
			p.closeBackend()
			return nil, fmt.Errorf("authorization context %q: %w", ac.Name, err)
		}
		p.contexts[ac.Name] = c
		p.order = append(p.order, ac.Name)
	}

	p.logger.Debug("Authorization contexts ready",
		logging.Field{Key: "contexts", Value: p.order},
		logging.Field{Key: "store", Value: cfg.StoreType},
	)
	return p, nil
}

func (p *Provider) openBackend(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreType {
	case config.StoreNone, config.StoreMemory:
		return nil
	}

	// Every persistent store seals what it writes
	sealer, err := crypto.NewSealer(cfg.StoreKey)
	if err != nil {
		return errors.ConfigError("invalid store key").WithCause(err)
	}
	p.sealer = sealer

	switch cfg.StoreType {
	case config.StoreRedis:
		db, _ := strconv.Atoi(cfg.RedisDB)
		poolSize, _ := strconv.Atoi(cfg.RedisPoolSize)
		p.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       db,
			PoolSize: poolSize,
		})
		if err := p.redis.Ping(ctx).Err(); err != nil {
			p.redis.Close()
			return errors.ConnectionError("failed to connect to redis", err)
		}
	case config.StoreSQLite:
		db, err := OpenDB(ctx, DialectSQLite, cfg.DatabasePath)
		if err != nil {
			return err
		}
		p.db = db
	case config.StorePostgres:
		db, err := OpenDB(ctx, DialectPostgres, cfg.PostgresDSN())
		if err != nil {
			return err
		}
		p.db = db
	}
	return nil
}

func (p *Provider) newStore(ctx context.Context, cfg *config.Config, ac config.AuthContext) (Store, error) {
	switch cfg.StoreType {
	case config.StoreNone:
		return NullStore{}, nil
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreFile:
		path := ac.StoreFile
		if path == "" {
			path = filepath.Join(cfg.StoreDir, ac.Name+".state")
		}
		return NewFileStore(path, p.sealer)
	case config.StoreRedis:
		return NewRedisStore(p.redis, ac.Name, p.sealer)
	case config.StoreSQLite:
		return NewSQLStore(ctx, p.db, DialectSQLite, ac.Name, p.sealer)
	case config.StorePostgres:
		return NewSQLStore(ctx, p.db, DialectPostgres, ac.Name, p.sealer)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown store type %q", cfg.StoreType))
	}
}

func (p *Provider) newHandler(oc *Config, ac config.AuthContext, tokens *TokenClient) (Handler, error) {
	switch ac.Grant {
	case config.GrantAuthorizationCode:
		codes, err := p.codeProvider(oc.RedirectURL)
		if err != nil {
			return nil, err
		}
		return NewInteractiveHandler(oc, tokens, codes), nil
	case config.GrantClientCredentials:
		return NewClientCredentialsHandler(oc, tokens), nil
	case config.GrantServiceAccount:
		key, err := LoadPrivateKey(ac.ServiceAccountKeyFile)
		if err != nil {
			return nil, err
		}
		return NewServiceAccountHandler(oc, tokens, ac.ServiceAccountEmail, key)
	case config.GrantNone:
		return NullHandler{}, nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown grant %q", ac.Grant))
	}
}

func (p *Provider) codeProvider(redirectURL string) (AccessCodeProvider, error) {
	if p.codes != nil {
		return p.codes, nil
	}
	if u, err := url.Parse(redirectURL); err == nil && u.Scheme == "http" && IsLoopbackHost(u.Hostname()) {
		return NewLoopbackCodeProvider(redirectURL, p.prompt)
	}
	return NewPromptCodeProvider(os.Stdin, p.prompt), nil
}

func (p *Provider) newContext(ctx context.Context, cfg *config.Config, ac config.AuthContext) (*Context, error) {
	oc := ConfigFromContext(ac)
	tokens := NewTokenClient(p.client, p.breakers.GetOrCreate("oauth2:"+ac.Name))

	store, err := p.newStore(ctx, cfg, ac)
	if err != nil {
		return nil, err
	}
	handler, err := p.newHandler(oc, ac, tokens)
	if err != nil {
		return nil, err
	}

	opts := []ContextOption{WithTokenClient(tokens)}
	if p.redis != nil {
		opts = append(opts, WithLocker(NewRedisLocker(p.redis, 0)))
	}
	return NewContext(oc, handler, store, opts...)
}

// Context returns the context registered under name.
func (p *Provider) Context(name string) (*Context, error) {
	c, ok := p.contexts[name]
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("authorization context %q", name))
	}
	return c, nil
}

// Default returns the context named config.DefaultContextName, or the first configured one.
func (p *Provider) Default() *Context {
	if c, ok := p.contexts[config.DefaultContextName]; ok {
		return c
	}
	return p.contexts[p.order[0]]
}

// Names returns the context names in configuration order.
func (p *Provider) Names() []string {
	return append([]string(nil), p.order...)
}

// Breakers returns the statistics of the token endpoint breakers.
func (p *Provider) Breakers() []circuitbreaker.Stats {
	return p.breakers.AllStats()
}

// Close releases the store backends. Contexts keep their stored authorization
// so the next run can restore it; use Context.Close to sign out.
func (p *Provider) Close() error {
	return p.closeBackend()
}

func (p *Provider) closeBackend() error {
	var errs []error
	if p.redis != nil {
		errs = append(errs, p.redis.Close())
	}
	if p.db != nil {
		errs = append(errs, p.db.Close())
	}
	return stderrors.Join(errs...)
}
