package plugin

import (
	"context"
	"encoding/json/jsontext"
	"fmt"
	"sort"
	"sync"

	"github.com/pgshuttle/pgshuttle/pkg/config"
	"github.com/pgshuttle/pgshuttle/pkg/pgwire"
)

// Factory constructs a Plugin from its configured settings blob.
// Plugins register a Factory under a stable name at init time (the same
// registration-by-side-effect idiom as database/sql.Register); the
// business logic behind a Factory is the plugin author's own and is
// explicitly out of scope for this package (SPEC_FULL §1).
type Factory func(settings jsontext.Value) (Plugin, error)

var (
	factoriesMu sync.Mutex
	factories   = map[string]Factory{}
)

// RegisterFactory makes a plugin factory available under name for use in
// a "plugins" config section entry. Intended to be called from an init
// function in the plugin's own package. Panics on a duplicate name,
// matching database/sql.Register's behavior for the same mistake.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("plugin: RegisterFactory called twice for %q", name))
	}
	factories[name] = f
}

// Registry holds the ordered, per-hook dispatch tables built from a
// set of registered plugins. It is immutable after Build returns.
type Registry struct {
	startup        []StartupHook
	authenticate   []AuthenticateHook
	clientMessage  []ClientMessageHook
	backendMessage []BackendMessageHook
	parse          []ParseHook
	query          []QueryHook
	copyData       []CopyDataHook
	replication    []ReplicationMessageHook
	bindBackend    []BindBackendHook
	releaseBackend []ReleaseBackendHook
	errorHook      []ErrorHook
}

// Build instantiates the plugin named in each entry of cfgs via the
// matching registered Factory, orders the result by declared Priority
// (stable sort, so equal priorities preserve config order), and buckets
// each plugin into the hook tables for whichever optional interfaces it
// implements.
func Build(cfgs []config.PluginConfig) (*Registry, error) {
	type ordered struct {
		priority int
		index    int
		plugin   Plugin
	}

	entries := make([]ordered, 0, len(cfgs))
	for i, c := range cfgs {
		factoriesMu.Lock()
		f, ok := factories[c.Name]
		factoriesMu.Unlock()
		if !ok {
			return nil, fmt.Errorf("plugin %q: no factory registered", c.Name)
		}
		p, err := f(c.Settings)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", c.Name, err)
		}
		entries = append(entries, ordered{priority: c.Priority, index: i, plugin: p})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].priority < entries[j].priority })

	r := &Registry{}
	for _, e := range entries {
		if h, ok := e.plugin.(StartupHook); ok {
			r.startup = append(r.startup, h)
		}
		if h, ok := e.plugin.(AuthenticateHook); ok {
			r.authenticate = append(r.authenticate, h)
		}
		if h, ok := e.plugin.(ClientMessageHook); ok {
			r.clientMessage = append(r.clientMessage, h)
		}
		if h, ok := e.plugin.(BackendMessageHook); ok {
			r.backendMessage = append(r.backendMessage, h)
		}
		if h, ok := e.plugin.(ParseHook); ok {
			r.parse = append(r.parse, h)
		}
		if h, ok := e.plugin.(QueryHook); ok {
			r.query = append(r.query, h)
		}
		if h, ok := e.plugin.(CopyDataHook); ok {
			r.copyData = append(r.copyData, h)
		}
		if h, ok := e.plugin.(ReplicationMessageHook); ok {
			r.replication = append(r.replication, h)
		}
		if h, ok := e.plugin.(BindBackendHook); ok {
			r.bindBackend = append(r.bindBackend, h)
		}
		if h, ok := e.plugin.(ReleaseBackendHook); ok {
			r.releaseBackend = append(r.releaseBackend, h)
		}
		if h, ok := e.plugin.(ErrorHook); ok {
			r.errorHook = append(r.errorHook, h)
		}
	}
	return r, nil
}

// Empty returns a Registry with no plugins registered, for sessions
// built without a "plugins" config section.
func Empty() *Registry { return &Registry{} }

// runChain is the shared left-to-right walk used by every dispatch
// method below: call is invoked for each hook in order with the current
// effective message; it returns the hook's Decision. runChain applies
// Replace decisions to advance the effective message and stops at the
// first terminal (Drop/Respond/Fail) decision, returning it alongside
// whatever the message had become by that point.
func runChain[M pgwire.Message, H any](hooks []H, call func(H, M) Decision, effective M) (M, Decision) {
	for _, h := range hooks {
		d := call(h, effective)
		switch d.kind {
		case kindForward:
			continue
		case kindReplace:
			if m, ok := d.replace.(M); ok {
				effective = m
			}
			continue
		default:
			return effective, d
		}
	}
	return effective, Forward()
}

// DispatchClientMessage runs the generic on_client_message hooks,
// followed by on_parse or on_query if msg is a Parse or Query message
// and the generic pass did not terminate. Returns the effective message
// (after any Replace decisions) and the decision that should govern what
// happens to it.
func (r *Registry) DispatchClientMessage(ctx context.Context, sess *Session, msg pgwire.ClientMessage) (pgwire.ClientMessage, Decision) {
	effective, decision := runChain(r.clientMessage, func(h ClientMessageHook, m pgwire.ClientMessage) Decision {
		return h.OnClientMessage(ctx, sess, m)
	}, msg)
	if decision.IsTerminal() {
		return effective, decision
	}

	switch m := effective.(type) {
	case pgwire.ClientExtendedQueryParse:
		var specific Decision
		effective, specific = runChain(r.parse, func(h ParseHook, m pgwire.ClientExtendedQueryParse) Decision {
			return h.OnParse(ctx, sess, m)
		}, m)
		if specific.IsTerminal() {
			return effective, specific
		}
	case pgwire.ClientSimpleQueryQuery:
		var specific Decision
		effective, specific = runChain(r.query, func(h QueryHook, m pgwire.ClientSimpleQueryQuery) Decision {
			return h.OnQuery(ctx, sess, m)
		}, m)
		if specific.IsTerminal() {
			return effective, specific
		}
	}

	if cd, ok := effective.(pgwire.ClientCopyCopyData); ok {
		if d := r.dispatchCopyData(ctx, sess, cd.T.Data, true); d.IsTerminal() {
			return effective, d
		}
	}

	return effective, Forward()
}

// DispatchBackendMessage runs the generic on_backend_message hooks (plus
// on_copy_data for CopyData messages), mirroring DispatchClientMessage
// for the opposite direction.
func (r *Registry) DispatchBackendMessage(ctx context.Context, sess *Session, msg pgwire.ServerMessage) (pgwire.ServerMessage, Decision) {
	effective, decision := runChain(r.backendMessage, func(h BackendMessageHook, m pgwire.ServerMessage) Decision {
		return h.OnBackendMessage(ctx, sess, m)
	}, msg)
	if decision.IsTerminal() {
		return effective, decision
	}

	if cd, ok := effective.(pgwire.ServerCopyCopyData); ok {
		if d := r.dispatchCopyData(ctx, sess, cd.T.Data, false); d.IsTerminal() {
			return effective, d
		}
	}

	return effective, Forward()
}

func (r *Registry) dispatchCopyData(ctx context.Context, sess *Session, data []byte, fromClient bool) Decision {
	for _, h := range r.copyData {
		d := h.OnCopyData(ctx, sess, data, fromClient)
		if !d.IsForward() {
			return d
		}
	}
	return Forward()
}

// DispatchReplicationMessage runs the on_replication_message hooks for a
// connection that has entered the replication substate.
func (r *Registry) DispatchReplicationMessage(ctx context.Context, sess *Session, msg pgwire.Message, fromClient bool) (pgwire.Message, Decision) {
	return runChain(r.replication, func(h ReplicationMessageHook, m pgwire.Message) Decision {
		return h.OnReplicationMessage(ctx, sess, m, fromClient)
	}, msg)
}

// DispatchStartup runs the on_startup hooks.
func (r *Registry) DispatchStartup(ctx context.Context, sess *Session) Decision {
	for _, h := range r.startup {
		if d := h.OnStartup(ctx, sess); !d.IsForward() {
			return d
		}
	}
	return Forward()
}

// DispatchAuthenticate runs the on_authenticate hooks.
func (r *Registry) DispatchAuthenticate(ctx context.Context, sess *Session) Decision {
	for _, h := range r.authenticate {
		if d := h.OnAuthenticate(ctx, sess); !d.IsForward() {
			return d
		}
	}
	return Forward()
}

// DispatchBindBackend runs the on_bind_backend hooks.
func (r *Registry) DispatchBindBackend(ctx context.Context, sess *Session) Decision {
	for _, h := range r.bindBackend {
		if d := h.OnBindBackend(ctx, sess); !d.IsForward() {
			return d
		}
	}
	return Forward()
}

// DispatchReleaseBackend runs the on_release_backend hooks.
func (r *Registry) DispatchReleaseBackend(ctx context.Context, sess *Session) Decision {
	for _, h := range r.releaseBackend {
		if d := h.OnReleaseBackend(ctx, sess); !d.IsForward() {
			return d
		}
	}
	return Forward()
}

// DispatchError runs the on_error hooks.
func (r *Registry) DispatchError(ctx context.Context, sess *Session, cause error) Decision {
	for _, h := range r.errorHook {
		if d := h.OnError(ctx, sess, cause); !d.IsForward() {
			return d
		}
	}
	return Forward()
}
