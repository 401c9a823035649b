package config

import (
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"iter"
	"strings"
)

// ServerConfig configures a single backend target and the clients allowed
// to reach it. "Server" here names one [target, role] pool entry per
// SPEC_FULL §4.5 — a deployment with a primary and replicas lists one
// ServerConfig per role.
type ServerConfig struct {
	Listen               []ListenAddr    `json:"listen"`
	Database             string          `json:"database"`
	Role                 string          `json:"role,omitempty"` // "primary" (default), "replica", or a custom label
	Users                []UserConfig    `json:"users"`
	Backend              BackendConfig `json:"backend"`
	TrackExtraParameters []string      `json:"track_extra_parameters,omitempty"`
	TLS                  *JsonTLSConfig  `json:"tls,omitempty"`
}

// UserConfig configures authentication credentials for a user.
type UserConfig struct {
	Username SecretRef `json:"username"`
	Password SecretRef `json:"password"`
}

// BackendConfig configures the backend PostgreSQL server to proxy to, and
// the pool policy pkg/pool applies to connections made with it.
type BackendConfig struct {
	Host           string `json:"host"`
	Port           *uint16 `json:"port,omitempty"`
	SSLMode        *string `json:"ssl_mode,omitempty"`
	ConnectTimeout *string `json:"connect_timeout,omitempty"` // seconds

	// Pool policy, per SPEC_FULL §4.5. pkg/pool does not read
	// PoolMaxConnLifetime, PoolMaxConnLifetimeJitter or PoolMaxConnIdleTime:
	// pooled connections are not closed for age or idleness.
	PoolMaxConns              int32   `json:"pool_max_conns"`
	PoolMinConns              int32   `json:"pool_min_conns,omitempty"`
	PoolMaxConnLifetime       *string `json:"pool_max_conn_lifetime,omitempty"`
	PoolMaxConnLifetimeJitter *string `json:"pool_max_conn_lifetime_jitter,omitempty"`
	PoolMaxConnIdleTime       *string `json:"pool_max_conn_idle_time,omitempty"`
	PoolHealthCheckPeriod     *string `json:"pool_health_check_period,omitempty"`
	PoolMode                  string  `json:"pool_mode,omitempty"` // "session", "transaction" (default), "statement"
	ResetQuery                string  `json:"reset_query,omitempty"`

	DefaultStartupParameters PgStartupParameters `json:"default_startup_parameters,omitempty"`
}

// GetResetQuery returns the query the pool issues on checkin for a dirty
// session, defaulting to DISCARD ALL per SPEC_FULL §4.5.
func (b BackendConfig) GetResetQuery() string {
	if b.ResetQuery == "" {
		return "DISCARD ALL"
	}
	return b.ResetQuery
}

// GetPort returns the configured port, defaulting to 5432.
func (b BackendConfig) GetPort() uint16 {
	if b.Port == nil {
		return 5432
	}
	return *b.Port
}

// ConnString builds a libpq-style connection string suitable for
// pgconn.ParseConfig, carrying everything except the per-user credentials
// (which the caller supplies separately, since one BackendConfig serves
// every user in its ServerConfig.Users).
func (b BackendConfig) ConnString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "host=%s port=%d", quoteConnValue(b.Host), b.GetPort())
	if b.SSLMode != nil {
		fmt.Fprintf(&sb, " sslmode=%s", quoteConnValue(*b.SSLMode))
	}
	if b.ConnectTimeout != nil {
		fmt.Fprintf(&sb, " connect_timeout=%s", quoteConnValue(*b.ConnectTimeout))
	}
	for key, value := range b.DefaultStartupParameters.All() {
		fmt.Fprintf(&sb, " %s=%s", key, quoteConnValue(value))
	}
	return sb.String()
}

func quoteConnValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// PgStartupParameters is a map of PostgreSQL startup parameters
// that preserves insertion order (i.e., the order from the JSON file).
type PgStartupParameters struct {
	keys   []string
	values map[string]string
}

// All returns an iterator over parameters in insertion order.
func (p *PgStartupParameters) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, k := range p.keys {
			if !yield(k, p.values[k]) {
				return
			}
		}
	}
}

// UnmarshalJSON parses a JSON object, preserving key order from the file.
func (p *PgStartupParameters) UnmarshalJSON(data []byte) error {
	p.keys = nil
	p.values = make(map[string]string)

	dec := jsontext.NewDecoder(strings.NewReader(string(data)))
	tok, err := dec.ReadToken()
	if err != nil || tok.Kind() != '{' {
		return err
	}

	for dec.PeekKind() != '}' {
		keyTok, err := dec.ReadToken()
		if err != nil {
			return err
		}
		key := keyTok.String()

		valTok, err := dec.ReadToken()
		if err != nil {
			return err
		}
		val := valTok.String()

		p.keys = append(p.keys, key)
		p.values[key] = val
	}
	return nil
}

// MarshalJSON serializes parameters in insertion order.
func (p PgStartupParameters) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		keyBytes, _ := json.Marshal(k)
		valBytes, _ := json.Marshal(p.values[k])
		b.Write(keyBytes)
		b.WriteByte(':')
		b.Write(valBytes)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// ListenAddr is a network address suitable for net.Listen.
// It normalizes JSON input formats like "5432", ":5432", or "127.0.0.1:5432"
// into the "host:port" format expected by Go's net package.
type ListenAddr string

// UnmarshalJSON parses a listen address string and normalizes it.
func (l *ListenAddr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = ListenAddr(normalizeListenAddr(s))
	return nil
}

// String returns the normalized address string.
func (l ListenAddr) String() string {
	return string(l)
}

// normalizeListenAddr converts various address formats to "host:port".
// Accepts: "5432", ":5432", "127.0.0.1:5432"
func normalizeListenAddr(s string) string {
	if !strings.Contains(s, ":") {
		// Just a port number like "5432"
		return ":" + s
	}
	return s
}
