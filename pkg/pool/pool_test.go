package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgshuttle/pgshuttle/pkg/backend"
	"github.com/pgshuttle/pgshuttle/pkg/pgwire"
)

func TestKey_String(t *testing.T) {
	assert.Equal(t, "app", Key{Database: "app"}.String())
	assert.Equal(t, "app/replica", Key{Database: "app", Role: "replica"}.String())
}

func sessionWithState(state pgwire.ProtocolState) *backend.Session {
	return &backend.Session{State: state}
}

func TestDirty_CleanSession(t *testing.T) {
	state := pgwire.NewProtocolState()
	state.TxStatus = pgwire.TxIdle
	assert.False(t, dirty(sessionWithState(state)))
}

func TestDirty_InTransaction(t *testing.T) {
	state := pgwire.NewProtocolState()
	state.TxStatus = pgwire.TxInTransaction
	assert.True(t, dirty(sessionWithState(state)))
}

func TestDirty_FailedTransaction(t *testing.T) {
	state := pgwire.NewProtocolState()
	state.TxStatus = pgwire.TxFailed
	assert.True(t, dirty(sessionWithState(state)))
}

func TestDirty_PendingSync(t *testing.T) {
	state := pgwire.NewProtocolState()
	state.TxStatus = pgwire.TxIdle
	state.SyncsInFlight = 1
	assert.True(t, dirty(sessionWithState(state)))
}

func TestDirty_LivePreparedStatement(t *testing.T) {
	state := pgwire.NewProtocolState()
	state.TxStatus = pgwire.TxIdle
	state.Statements.Alive["myplan"] = true
	assert.True(t, dirty(sessionWithState(state)))
}

func TestDirty_LivePortal(t *testing.T) {
	state := pgwire.NewProtocolState()
	state.TxStatus = pgwire.TxIdle
	state.Portals.Alive["myportal"] = true
	assert.True(t, dirty(sessionWithState(state)))
}

func TestDirty_ExecutingStatement(t *testing.T) {
	state := pgwire.NewProtocolState()
	state.TxStatus = pgwire.TxIdle
	name := "myplan"
	state.Statements.Executing = &name
	assert.True(t, dirty(sessionWithState(state)))
}
