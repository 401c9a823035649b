package plugin

import "github.com/pgshuttle/pgshuttle/pkg/pgwire"

// kind distinguishes the five outcomes a hook may return, per SPEC_FULL
// §4.6. Exactly one of these ever determines what actually happens to a
// message; ForwardDecision is the only one every later plugin also sees
// as a no-op.
type kind int

const (
	kindForward kind = iota
	kindReplace
	kindDrop
	kindRespond
	kindFail
)

// Decision is the value every hook returns. Construct one with Forward,
// Replace, Drop, Respond, or Fail; do not build the zero value directly.
type Decision struct {
	kind    kind
	replace pgwire.Message
	respond []pgwire.Message
	err     error
}

// Forward passes the message through unchanged. It is the default,
// no-op decision: a hook that has nothing to say about this message
// should return Forward().
func Forward() Decision { return Decision{kind: kindForward} }

// Replace substitutes msg for the message a plugin is examining. Later
// plugins in the same dispatch see msg, not the original, but dispatch
// continues: Replace is a transformation, not a terminal decision.
func Replace(msg pgwire.Message) Decision { return Decision{kind: kindReplace, replace: msg} }

// Drop suppresses the message: it is not forwarded to the peer, and
// dispatch stops (no later plugin is consulted for this message).
func Drop() Decision { return Decision{kind: kindDrop} }

// Respond synthesizes reply messages to the peer that sent the message
// under examination, without involving the other side of the
// connection, and stops dispatch. Used for e.g. answering a cached
// SELECT directly from a plugin.
func Respond(msgs ...pgwire.Message) Decision { return Decision{kind: kindRespond, respond: msgs} }

// Fail terminates the session with cause surfaced to the client as a
// protocol ErrorResponse, and stops dispatch.
func Fail(cause error) Decision { return Decision{kind: kindFail, err: cause} }

// IsForward reports whether d is the no-op decision.
func (d Decision) IsForward() bool { return d.kind == kindForward }

// IsTerminal reports whether d stops dispatch (Drop, Respond, or Fail).
// Replace is not terminal: it updates the effective message and lets
// dispatch continue to the next plugin.
func (d Decision) IsTerminal() bool {
	return d.kind == kindDrop || d.kind == kindRespond || d.kind == kindFail
}

// IsDrop reports whether d is a Drop decision.
func (d Decision) IsDrop() bool { return d.kind == kindDrop }

// IsRespond reports whether d is a Respond decision.
func (d Decision) IsRespond() bool { return d.kind == kindRespond }

// IsFail reports whether d is a Fail decision.
func (d Decision) IsFail() bool { return d.kind == kindFail }

// Err returns the cause passed to Fail, or nil for any other decision.
func (d Decision) Err() error { return d.err }

// ResponseMessages returns the messages passed to Respond, or nil for
// any other decision.
func (d Decision) ResponseMessages() []pgwire.Message { return d.respond }
