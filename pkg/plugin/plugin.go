// Package plugin implements the proxy's hook-dispatch mechanism: the
// ordered table of plugin callbacks consulted at every protocol boundary
// (startup, authentication, each client/backend message, binding a
// backend connection, and error paths).
//
// A plugin declares the hooks it wants not by registering named
// callbacks but by implementing the corresponding optional interface
// (StartupHook, ClientMessageHook, ...), the same pattern net/http uses
// for http.Flusher/http.Hijacker and database/sql uses for its optional
// driver interfaces. Dispatch walks a flat, priority-ordered slice per
// hook rather than a virtual-call hierarchy, per SPEC_FULL §4.6/§9.
package plugin

import (
	"context"
	"sync"

	"github.com/pgshuttle/pgshuttle/pkg/pgwire"
)

// Plugin is the minimum a registered plugin must implement. Plugins
// additionally implement whichever of the *Hook interfaces below they
// want consulted; implementing none of them is legal but useless.
type Plugin interface {
	// Name identifies the plugin in logs and in the per-session scratch
	// map (Session.Scratch uses it as the outer key).
	Name() string
}

// StartupHook is consulted once a client's StartupMessage has named a
// database but before authentication begins.
type StartupHook interface {
	Plugin
	OnStartup(ctx context.Context, sess *Session) Decision
}

// AuthenticateHook is consulted before the proxy authenticates a client.
// A Fail decision ends the session before authentication starts; any
// other decision lets the proxy's own SCRAM exchange go ahead.
type AuthenticateHook interface {
	Plugin
	OnAuthenticate(ctx context.Context, sess *Session) Decision
}

// ClientMessageHook is consulted for every framed message the client
// sends while bound to a backend (or about to become bound).
type ClientMessageHook interface {
	Plugin
	OnClientMessage(ctx context.Context, sess *Session, msg pgwire.ClientMessage) Decision
}

// BackendMessageHook is consulted for every framed message a backend
// sends back.
type BackendMessageHook interface {
	Plugin
	OnBackendMessage(ctx context.Context, sess *Session, msg pgwire.ServerMessage) Decision
}

// ParseHook is consulted specifically for extended-query Parse messages,
// in addition to (and after) the generic ClientMessageHook pass, letting
// a plugin narrowly interpose on prepared-statement creation without
// re-deriving the message type from ClientMessageHook on every call.
type ParseHook interface {
	Plugin
	OnParse(ctx context.Context, sess *Session, msg pgwire.ClientExtendedQueryParse) Decision
}

// QueryHook is consulted specifically for simple-query Query messages,
// in addition to (and after) the generic ClientMessageHook pass. This is
// the hook the "rewrite SELECT version()" scenario in SPEC_FULL §8 uses.
type QueryHook interface {
	Plugin
	OnQuery(ctx context.Context, sess *Session, msg pgwire.ClientSimpleQueryQuery) Decision
}

// CopyDataHook is consulted for each CopyData chunk flowing in either
// direction during a COPY stream. On a connection in the replication
// substate only ReplicationMessageHook is consulted, not this hook.
type CopyDataHook interface {
	Plugin
	OnCopyData(ctx context.Context, sess *Session, data []byte, fromClient bool) Decision
}

// ReplicationMessageHook is consulted for every message on a connection
// that has entered the replication substate (CopyBoth after
// START_REPLICATION), in place of the ordinary client/backend message
// hooks, since such connections never produce a ReadyForQuery for the
// pool invariants those hooks assume.
type ReplicationMessageHook interface {
	Plugin
	OnReplicationMessage(ctx context.Context, sess *Session, msg pgwire.Message, fromClient bool) Decision
}

// BindBackendHook is consulted once a backend connection has been
// checked out of the pool and bound to sess, before any message is
// forwarded to it.
type BindBackendHook interface {
	Plugin
	OnBindBackend(ctx context.Context, sess *Session) Decision
}

// ReleaseBackendHook is consulted immediately before a bound backend is
// checked back in to the pool (or evicted), while the binding is still
// live, so a plugin can inspect final state. Observational only: the
// session always proceeds with release regardless of what is returned,
// since pool lifecycle ownership cannot be made conditional on a plugin.
type ReleaseBackendHook interface {
	Plugin
	OnReleaseBackend(ctx context.Context, sess *Session) Decision
}

// ErrorHook is consulted whenever the session is about to surface an
// error to the client. Observational only: the error is already on its
// way to the client by the time this fires, so a Decision other than
// Forward has no effect on delivery.
type ErrorHook interface {
	Plugin
	OnError(ctx context.Context, sess *Session, cause error) Decision
}

// Session is the mutable context handed to every hook: the subset of a
// client session's identity and bookkeeping plugins are allowed to read,
// plus a per-plugin scratch area for stashing arbitrary per-session
// state across hook invocations (SPEC_FULL §3's "plugin context").
//
// It deliberately does not embed frontend.Session or backend.Session:
// pkg/frontend depends on pkg/plugin for dispatch, so the dependency
// cannot run the other way. Session is filled in and owned by the
// frontend session loop.
type Session struct {
	ClientPID       uint32
	User            string
	Database        string
	ApplicationName string
	RemoteAddr      string

	// TxStatus mirrors the currently-bound backend's transaction status
	// ('I'/'T'/'E'), or 'I' when unbound, per SPEC_FULL §3. It is 0 in
	// the startup and authenticate hooks, which run before the session's
	// state is initialised.
	TxStatus byte

	mu      sync.Mutex
	scratch map[string]map[string]any
}

// Scratch returns the scratch map reserved for the plugin named
// pluginName, creating it on first use. Plugins must not assume
// anything about concurrent access from outside their own hook
// invocations: hooks for a single session run strictly in sequence
// (SPEC_FULL §5), so no additional locking is needed inside a hook body.
func (s *Session) Scratch(pluginName string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scratch == nil {
		s.scratch = make(map[string]map[string]any)
	}
	m, ok := s.scratch[pluginName]
	if !ok {
		m = make(map[string]any)
		s.scratch[pluginName] = m
	}
	return m
}
