package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnvVars = []string{
	"LOG_LEVEL", "RESTIFY_HTTP_TIMEOUT", "RESTIFY_INSECURE_SKIP_VERIFY", "RESTIFY_ETAG_CACHE", "RESTIFY_ETAG_TTL",
	"RESTIFY_STORE", "RESTIFY_STORE_DIR", "RESTIFY_STORE_KEY",
	"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"DATABASE_PATH", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB", "POSTGRES_USER",
	"POSTGRES_PASSWORD", "POSTGRES_SSL_MODE",
	"RESTIFY_CONTEXTS_FILE", "RESTIFY_GRANT", "RESTIFY_CLIENT_ID", "RESTIFY_CLIENT_SECRET",
	"RESTIFY_AUTH_URL", "RESTIFY_TOKEN_URL", "RESTIFY_REVOCATION_URL", "RESTIFY_REDIRECT_URL",
	"RESTIFY_SCOPES", "RESTIFY_BASE_URL", "RESTIFY_API_KEY",
	"RESTIFY_SERVICE_ACCOUNT_EMAIL", "RESTIFY_SERVICE_ACCOUNT_KEY_FILE",
}

func clearTestEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range testEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearTestEnvVars(t)

	cfg := Load()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.False(t, cfg.InsecureSkipVerify)
	assert.True(t, cfg.ETagCache)
	assert.Equal(t, 10*time.Minute, cfg.ETagCacheTTL())
	assert.Equal(t, StoreFile, cfg.StoreType)
	assert.NotEmpty(t, cfg.StoreDir)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, "./restify.db", cfg.DatabasePath)
	assert.Equal(t, "restify", cfg.PostgresDB)
	assert.Equal(t, DefaultContextName, cfg.DefaultContext.Name)
	assert.Equal(t, GrantAuthorizationCode, cfg.DefaultContext.Grant)
	assert.Empty(t, cfg.DefaultContext.Scopes)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearTestEnvVars(t)
	t.Setenv("RESTIFY_STORE", "Redis")
	t.Setenv("RESTIFY_ETAG_CACHE", "false")
	t.Setenv("RESTIFY_ETAG_TTL", "90s")
	t.Setenv("RESTIFY_HTTP_TIMEOUT", "5s")
	t.Setenv("RESTIFY_CLIENT_ID", "client")
	t.Setenv("RESTIFY_SCOPES", "drive.read, drive.write,,")

	cfg := Load()

	assert.Equal(t, StoreRedis, cfg.StoreType)
	assert.False(t, cfg.ETagCache)
	assert.Equal(t, 90*time.Second, cfg.ETagCacheTTL())
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, "client", cfg.DefaultContext.ClientID)
	assert.Equal(t, []string{"drive.read", "drive.write"}, cfg.DefaultContext.GrantedScopes())
}

func TestGetBoolEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("RESTIFY_TEST_BOOL", "maybe")
	assert.True(t, getBoolEnv("RESTIFY_TEST_BOOL", true))
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HTTPTimeout:   "30s",
			StoreType:     StoreFile,
			StoreDir:      "/tmp/restify",
			StoreKey:      "passphrase",
			RedisAddress:  "localhost:6379",
			RedisDB:       "0",
			RedisPoolSize: "10",
			DatabasePath:  "./restify.db",
			PostgresHost:  "localhost",
			PostgresPort:  "5432",
			PostgresDB:    "restify",
			PostgresUser:  "postgres",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid file store", mutate: func(*Config) {}},
		{name: "memory store", mutate: func(c *Config) { c.StoreType = StoreMemory; c.StoreKey = "" }},
		{name: "bad timeout", mutate: func(c *Config) { c.HTTPTimeout = "soon" }, wantErr: "RESTIFY_HTTP_TIMEOUT"},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTPTimeout = "0s" }, wantErr: "RESTIFY_HTTP_TIMEOUT"},
		{name: "file store without key", mutate: func(c *Config) { c.StoreKey = "" }, wantErr: "RESTIFY_STORE_KEY"},
		{name: "redis store without key", mutate: func(c *Config) { c.StoreType = StoreRedis; c.StoreKey = "" }, wantErr: "RESTIFY_STORE_KEY"},
		{name: "sqlite store without key", mutate: func(c *Config) { c.StoreType = StoreSQLite; c.StoreKey = "" }, wantErr: "RESTIFY_STORE_KEY"},
		{name: "bad etag ttl", mutate: func(c *Config) { c.ETagCache = true; c.ETagTTL = "never" }, wantErr: "RESTIFY_ETAG_TTL"},
		{name: "etag ttl ignored when disabled", mutate: func(c *Config) { c.ETagTTL = "never" }},
		{name: "redis bad db", mutate: func(c *Config) { c.StoreType = StoreRedis; c.RedisDB = "16" }, wantErr: "REDIS_DB"},
		{name: "redis bad pool", mutate: func(c *Config) { c.StoreType = StoreRedis; c.RedisPoolSize = "0" }, wantErr: "REDIS_POOL_SIZE"},
		{name: "sqlite without path", mutate: func(c *Config) { c.StoreType = StoreSQLite; c.DatabasePath = "" }, wantErr: "DATABASE_PATH"},
		{name: "postgres bad port", mutate: func(c *Config) { c.StoreType = StorePostgres; c.PostgresPort = "x" }, wantErr: "POSTGRES_PORT"},
		{name: "unknown store", mutate: func(c *Config) { c.StoreType = "etcd" }, wantErr: "RESTIFY_STORE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_PostgresDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost: "db", PostgresPort: "5432", PostgresDB: "restify",
		PostgresUser: "u", PostgresPassword: "p", PostgresSSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 dbname=restify user=u password=p sslmode=disable", cfg.PostgresDSN())
}

func TestScope_UnmarshalJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contexts.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"name": "drive",
			"client_id": "id",
			"auth_url": "https://accounts.example.com/auth",
			"token_url": "https://accounts.example.com/token",
			"scopes": ["a", {"scope": "b"}, {"scope": "c", "grant": false}]
		}
	]`), 0600))

	contexts, err := LoadContextsFile(path)
	require.NoError(t, err)
	require.Len(t, contexts, 1)

	assert.Equal(t, GrantAuthorizationCode, contexts[0].Grant)
	assert.Equal(t, []Scope{{"a", true}, {"b", true}, {"c", false}}, contexts[0].Scopes)
	assert.Equal(t, []string{"a", "b"}, contexts[0].GrantedScopes())
}

func TestAuthContext_Validate(t *testing.T) {
	valid := func() AuthContext {
		return AuthContext{
			Name:          "drive",
			Grant:         GrantAuthorizationCode,
			ClientID:      "id",
			AuthURL:       "https://accounts.example.com/auth",
			TokenURL:      "https://accounts.example.com/token",
			RevocationURL: "https://accounts.example.com/revoke?token={token}",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*AuthContext)
		wantErr bool
	}{
		{"valid", func(*AuthContext) {}, false},
		{"missing name", func(a *AuthContext) { a.Name = "" }, true},
		{"unknown grant", func(a *AuthContext) { a.Grant = "password" }, true},
		{"missing client id", func(a *AuthContext) { a.ClientID = "" }, true},
		{"code flow without auth url", func(a *AuthContext) { a.AuthURL = "" }, true},
		{"client credentials without auth url", func(a *AuthContext) { a.Grant = GrantClientCredentials; a.AuthURL = "" }, false},
		{"service account without key", func(a *AuthContext) { a.Grant = GrantServiceAccount; a.ServiceAccountEmail = "sa@example.com" }, true},
		{"none grant needs nothing", func(a *AuthContext) { *a = AuthContext{Name: "public", Grant: GrantNone} }, false},
		{"relative token url", func(a *AuthContext) { a.TokenURL = "/token" }, true},
		{"empty scope name", func(a *AuthContext) { a.Scopes = []Scope{{Name: "", Grant: true}} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := valid()
			tt.mutate(&ctx)
			err := ctx.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_AuthContexts(t *testing.T) {
	clearTestEnvVars(t)

	t.Run("nothing configured", func(t *testing.T) {
		_, err := Load().AuthContexts()
		assert.Error(t, err)
	})

	t.Run("default context and file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "contexts.json")
		require.NoError(t, os.WriteFile(path, []byte(`[
			{"name": "machine", "grant": "client_credentials", "client_id": "m", "token_url": "https://auth.example.com/token"}
		]`), 0600))

		t.Setenv("RESTIFY_CLIENT_ID", "id")
		t.Setenv("RESTIFY_AUTH_URL", "https://auth.example.com/authorize")
		t.Setenv("RESTIFY_TOKEN_URL", "https://auth.example.com/token")
		t.Setenv("RESTIFY_CONTEXTS_FILE", path)

		contexts, err := Load().AuthContexts()
		require.NoError(t, err)
		require.Len(t, contexts, 2)
		assert.Equal(t, DefaultContextName, contexts[0].Name)
		assert.Equal(t, "machine", contexts[1].Name)
	})

	t.Run("duplicate names", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "contexts.json")
		require.NoError(t, os.WriteFile(path, []byte(`[
			{"name": "x", "grant": "none"},
			{"name": "x", "grant": "none"}
		]`), 0600))

		cfg := &Config{ContextsFile: path}
		_, err := cfg.AuthContexts()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "more than once")
	})

	t.Run("unreadable file", func(t *testing.T) {
		cfg := &Config{ContextsFile: filepath.Join(t.TempDir(), "missing.json")}
		_, err := cfg.AuthContexts()
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "contexts.json")
		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0600))

		_, err := LoadContextsFile(path)
		assert.Error(t, err)
	})
}
