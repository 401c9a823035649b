package plugin

import (
	"context"
	"encoding/json/jsontext"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshuttle/pgshuttle/pkg/config"
	"github.com/pgshuttle/pgshuttle/pkg/pgwire"
)

// recordingPlugin implements ClientMessageHook and QueryHook, logging
// every call so tests can assert on ordering.
type recordingPlugin struct {
	name     string
	calls    *[]string
	decision Decision
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) OnClientMessage(ctx context.Context, sess *Session, msg pgwire.ClientMessage) Decision {
	*p.calls = append(*p.calls, p.name+":client")
	return p.decision
}

func (p *recordingPlugin) OnQuery(ctx context.Context, sess *Session, msg pgwire.ClientSimpleQueryQuery) Decision {
	*p.calls = append(*p.calls, p.name+":query")
	return Forward()
}

func newRegistryWith(hooks ...any) *Registry {
	r := &Registry{}
	for _, h := range hooks {
		if v, ok := h.(ClientMessageHook); ok {
			r.clientMessage = append(r.clientMessage, v)
		}
		if v, ok := h.(QueryHook); ok {
			r.query = append(r.query, v)
		}
	}
	return r
}

func TestDispatchClientMessage_AllForward(t *testing.T) {
	var calls []string
	a := &recordingPlugin{name: "a", calls: &calls, decision: Forward()}
	b := &recordingPlugin{name: "b", calls: &calls, decision: Forward()}
	r := newRegistryWith(a, b)

	query := pgwire.ClientSimpleQueryQuery{T: &pgproto3.Query{String: "SELECT 1"}}
	effective, decision := r.DispatchClientMessage(context.Background(), &Session{}, query)

	assert.True(t, decision.IsForward())
	assert.Equal(t, query, effective)
	assert.Equal(t, []string{"a:client", "b:client", "a:query", "b:query"}, calls)
}

func TestDispatchClientMessage_DropStopsChain(t *testing.T) {
	var calls []string
	a := &recordingPlugin{name: "a", calls: &calls, decision: Drop()}
	b := &recordingPlugin{name: "b", calls: &calls, decision: Forward()}
	r := newRegistryWith(a, b)

	query := pgwire.ClientSimpleQueryQuery{T: &pgproto3.Query{String: "SELECT 1"}}
	_, decision := r.DispatchClientMessage(context.Background(), &Session{}, query)

	require.True(t, decision.IsTerminal())
	assert.Equal(t, []string{"a:client"}, calls)
}

func TestDispatchClientMessage_ReplaceChainsToLaterPlugins(t *testing.T) {
	rewritten := pgwire.ClientSimpleQueryQuery{T: &pgproto3.Query{String: "SELECT 'river' AS version"}}

	var calls []string
	a := &recordingPlugin{name: "a", calls: &calls}
	b := &recordingPlugin{name: "b", calls: &calls, decision: Forward()}
	r := newRegistryWith(a, b)
	a.decision = Replace(rewritten)

	original := pgwire.ClientSimpleQueryQuery{T: &pgproto3.Query{String: "SELECT version()"}}
	effective, decision := r.DispatchClientMessage(context.Background(), &Session{}, original)

	assert.True(t, decision.IsForward())
	assert.Equal(t, rewritten, effective)
	assert.Equal(t, []string{"a:client", "b:client", "a:query", "b:query"}, calls)
}

func TestDispatchClientMessage_FailCarriesCause(t *testing.T) {
	boom := pgwire.NewErr(pgwire.ErrorFatal, "28P01", "nope", nil)
	r := newRegistryWith(&recordingPlugin{name: "a", calls: &[]string{}, decision: Fail(boom)})

	query := pgwire.ClientSimpleQueryQuery{T: &pgproto3.Query{String: "SELECT 1"}}
	_, decision := r.DispatchClientMessage(context.Background(), &Session{}, query)

	require.True(t, decision.IsTerminal())
	assert.Equal(t, boom, decision.Err())
}

func TestSessionScratch_IsolatedPerPlugin(t *testing.T) {
	sess := &Session{}
	sess.Scratch("a")["count"] = 1
	sess.Scratch("b")["count"] = 2

	assert.Equal(t, 1, sess.Scratch("a")["count"])
	assert.Equal(t, 2, sess.Scratch("b")["count"])
}

func TestBuild_UnknownFactoryErrors(t *testing.T) {
	_, err := Build([]config.PluginConfig{{Name: "does-not-exist"}})
	require.Error(t, err)
}

func TestRegisterFactory_DuplicateNamePanics(t *testing.T) {
	RegisterFactory("test-duplicate-factory", func(settings jsontext.Value) (Plugin, error) {
		return nil, nil
	})
	assert.Panics(t, func() {
		RegisterFactory("test-duplicate-factory", func(settings jsontext.Value) (Plugin, error) {
			return nil, nil
		})
	})
}
