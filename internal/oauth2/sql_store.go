package oauth2

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"restify/internal/common/errors"
	"restify/internal/crypto"
)

// Dialect selects the SQL driver and placeholder style of an SQLStore.
type Dialect string

const (
	// DialectSQLite uses github.com/mattn/go-sqlite3
	DialectSQLite Dialect = "sqlite3"
	// DialectPostgres uses pgx through database/sql
	DialectPostgres Dialect = "pgx"
)

const createStateTable = `CREATE TABLE IF NOT EXISTS authorization_states (
	name TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// OpenDB opens and pings a database for dialect.
func OpenDB(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported SQL dialect %q", dialect))
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, errors.ConnectionError("failed to open database", err)
	}
	if dialect == DialectSQLite {
		// SQLite serializes writers; one connection avoids "database is locked"
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.ConnectionError("failed to connect to database", err)
	}
	return db, nil
}

// SQLStore keeps the State of a context as one sealed row in authorization_states.
// Several contexts can share a database.
type SQLStore struct {
	db      *sql.DB
	sealer  *crypto.Sealer
	dialect Dialect
	name    string
	now     func() time.Time
}

// NewSQLStore creates a store for context name and makes sure the table exists.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, name string, sealer *crypto.Sealer) (*SQLStore, error) {
	if db == nil {
		return nil, errors.ValidationError("database is required")
	}
	if sealer == nil {
		return nil, errors.ValidationError("sealer is required")
	}
	if name == "" {
		return nil, errors.ValidationError("context name is required")
	}

	if _, err := db.ExecContext(ctx, createStateTable); err != nil {
		return nil, errors.ConnectionError("failed to create authorization_states table", err)
	}

	return &SQLStore{db: db, sealer: sealer, dialect: dialect, name: name, now: time.Now}, nil
}

// rebind rewrites ? placeholders for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

func (s *SQLStore) TryRestore(ctx context.Context) (*State, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT state FROM authorization_states WHERE name = ?`), s.name).Scan(&data)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.ConnectionError("failed to load authorization state", err)
	}

	var state State
	if err := s.sealer.OpenJSON([]byte(data), &state); err != nil {
		return nil, false, errors.InternalError("failed to open authorization state", err)
	}
	if state.Scopes == nil {
		state.Scopes = []string{}
	}

	return &state, true, nil
}

func (s *SQLStore) Store(ctx context.Context, state *State) error {
	if state == nil {
		return errors.ValidationError("state cannot be nil")
	}

	data, err := s.sealer.SealJSON(state)
	if err != nil {
		return errors.InternalError("failed to seal authorization state", err)
	}

	query := s.rebind(`INSERT INTO authorization_states (name, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, s.name, string(data), s.now().UTC()); err != nil {
		return errors.ConnectionError("failed to store authorization state", err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM authorization_states WHERE name = ?`), s.name); err != nil {
		return errors.ConnectionError("failed to clear authorization state", err)
	}
	return nil
}
