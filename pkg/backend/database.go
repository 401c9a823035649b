package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgshuttle/pgshuttle/pkg/config"
)

// Database identifies one backend target (a ServerConfig) and knows how to
// dial fresh connections to it. It holds no pooling state of its own —
// pkg/pool.Pool owns checkout/checkin/eviction for the *Session instances
// Dial produces.
type Database struct {
	config  config.ServerConfig
	secrets *config.SecretCache
	logger  *slog.Logger
}

// NewDatabase creates a Database bound to a single backend target.
func NewDatabase(cfg config.ServerConfig, secrets *config.SecretCache, logger *slog.Logger) *Database {
	return &Database{
		config:  cfg,
		secrets: secrets,
		logger:  logger,
	}
}

// Name identifies this target for logging, e.g. "mydb/primary".
func (d *Database) Name() string {
	if d.config.Role == "" {
		return d.config.Database
	}
	return fmt.Sprintf("%s/%s", d.config.Database, d.config.Role)
}

// Users returns the configured users allowed to connect to this target.
func (d *Database) Users() []config.UserConfig {
	return d.config.Users
}

// Dial opens a fresh backend connection for user and wraps it in a Session.
// The caller (pkg/pool.Pool) owns the Session's lifecycle from here:
// acquiring/releasing its reader and eventually closing the underlying
// connection.
func (d *Database) Dial(ctx context.Context, user config.UserConfig) (*Session, error) {
	username, err := d.secrets.Get(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve username: %w", err)
	}
	password, err := d.secrets.Get(ctx, user.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve password: %w", err)
	}

	connString := fmt.Sprintf("%s user=%s password=%s dbname=%s",
		d.config.Backend.ConnString(), quoteConnValue(username), quoteConnValue(password), quoteConnValue(d.config.Database))

	conn, err := pgconn.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Name(), err)
	}

	session, err := GetOrCreateSession(conn, d, user)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return session, nil
}

// quoteConnValue mirrors config.BackendConfig's libpq connection-string
// value quoting, which is unexported there.
func quoteConnValue(v string) string {
	if v == "" {
		return "''"
	}
	safe := true
	for _, r := range v {
		if r == ' ' || r == '\'' || r == '\\' {
			safe = false
			break
		}
	}
	if safe {
		return v
	}
	out := make([]rune, 0, len(v)+2)
	out = append(out, '\'')
	for _, r := range v {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	out = append(out, '\'')
	return string(out)
}
