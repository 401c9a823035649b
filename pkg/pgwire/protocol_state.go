package pgwire

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgproto3"
)

// CopyMode tracks which direction (if any) a COPY stream is currently
// flowing, as signalled by the backend's CopyInResponse/CopyOutResponse/
// CopyBothResponse/CopyDone messages.
type CopyMode int

const (
	CopyNone CopyMode = iota
	CopyIn
	CopyOut
	CopyBoth
)

func (m CopyMode) String() string {
	switch m {
	case CopyIn:
		return "CopyIn"
	case CopyOut:
		return "CopyOut"
	case CopyBoth:
		return "CopyBoth"
	default:
		return "CopyNone"
	}
}

// NewProtocolState creates a new ProtocolState with all maps initialized.
func NewProtocolState() ProtocolState {
	return ProtocolState{
		TxStatus:          TxIdle,
		ParameterStatuses: ParameterStatuses{},
		Statements:        newNamedObjectState[bool](),
		Portals:           newNamedObjectState[bool](),
	}
}

func newNamedObjectState[T any]() NamedObjectState[T] {
	return NamedObjectState[T]{
		Alive:         make(map[string]T),
		PendingCreate: make(map[string]T),
		PendingClose:  make(map[string]T),
	}
}

// ProtocolState tracks everything about a PostgreSQL v3 session that the
// proxy needs in order to interpose on the wire without a real backend
// understanding of SQL: transaction status, which prepared statements and
// portals currently exist, whether the connection is mid-COPY, and how many
// extended-query Syncs are outstanding (a client may pipeline several
// Parse/Bind/Execute/Sync groups before reading any ReadyForQuery back).
//
// The same type drives both the client-facing session and the backend
// session; whichever side owns a given ProtocolState feeds it frontend
// messages through UpdateForFrontentMessage and backend messages through
// UpdateForServerMessage.
type ProtocolState struct {
	// Immutable once assigned by the backend.
	PID             uint32
	SecretCancelKey uint32

	// Dynamic.
	TxStatus          TxStatus
	ParameterStatuses ParameterStatuses

	// Once the client sends an extended-query message, the session is in
	// extended query mode until Terminate.
	ExtendedQueryMode bool

	// SyncsInFlight counts Sync messages the client has sent that the
	// backend has not yet answered with a matching ReadyForQuery. A client
	// may pipeline multiple Parse/Bind/Execute/Sync groups without waiting
	// for responses; each Sync produces exactly one ReadyForQuery.
	SyncsInFlight int

	// When an error is detected while processing any extended-query message,
	// the backend issues ErrorResponse, then reads and discards messages
	// until a Sync is reached, then issues ReadyForQuery and returns to
	// normal message processing. No skipping occurs if the error is
	// detected while processing Sync itself, so there is exactly one
	// ReadyForQuery per Sync.
	ServerIgnoringMessagesUntilSync bool

	// CopyMode tracks an in-progress COPY stream, if any.
	CopyMode CopyMode

	Statements NamedObjectState[bool]
	Portals    NamedObjectState[bool]
}

// NamedObjectState tracks the lifecycle of prepared statements or portals
// by name: which are confirmed alive, which are pending creation/close
// (sent but not yet acknowledged), and which one, if any, is currently
// executing or about to execute.
type NamedObjectState[T any] struct {
	Alive         map[string]T
	PendingCreate map[string]T
	PendingClose  map[string]T

	// Executing holds the name of the statement/portal currently being
	// executed by the backend, or nil if none.
	Executing *string

	// PendingExecute holds the name of a statement/portal the client has
	// asked to execute but whose execution has not yet been confirmed
	// underway, or nil.
	PendingExecute *string
}

// InTxOrQuery reports whether the session is inside a transaction, a
// failed transaction, or has a query/statement/portal currently executing
// or about to execute. The pool uses this to decide whether a connection
// is safe to return to idle.
func (s ProtocolState) InTxOrQuery() bool {
	if s.TxStatus == TxInTransaction || s.TxStatus == TxFailed {
		return true
	}
	if s.Statements.Executing != nil || s.Statements.PendingExecute != nil {
		return true
	}
	if s.Portals.Executing != nil || s.Portals.PendingExecute != nil {
		return true
	}
	return false
}

func (s *ProtocolState) UpdateForFrontentMessage(msg pgproto3.FrontendMessage) {
	switch msg := msg.(type) {
	case *pgproto3.Query:
		delete(s.Statements.Alive, "")
		query := msg.String
		s.Statements.Executing = &query
	case *pgproto3.FunctionCall:
		delete(s.Statements.Alive, "")
		name := ""
		s.Statements.Executing = &name
	case *pgproto3.Parse:
		s.ExtendedQueryMode = true
		s.Statements.PendingCreate[msg.Name] = true
	case *pgproto3.Bind:
		s.ExtendedQueryMode = true
		s.Portals.PendingCreate[msg.DestinationPortal] = true
	case *pgproto3.Describe:
		s.ExtendedQueryMode = true
	case *pgproto3.Execute:
		s.ExtendedQueryMode = true
		portal := msg.Portal
		s.Portals.Executing = &portal
	case *pgproto3.Close:
		s.ExtendedQueryMode = true
		if msg.ObjectType == ObjectTypePreparedStatement {
			s.Statements.PendingClose[msg.Name] = true
		} else {
			s.Portals.PendingClose[msg.Name] = true
		}
	case *pgproto3.Flush:
		s.ExtendedQueryMode = true
	case *pgproto3.Sync:
		s.ExtendedQueryMode = true
		s.SyncsInFlight++
	}
}

func (s *ProtocolState) UpdateForServerMessage(msg ServerMessage) {
	handlers := ServerMessageHandlers[struct{}]{
		Async:         wrapVoid(s.UpdateForServerAsyncMessage),
		Copy:          wrapVoid(s.UpdateForServerCopyMessage),
		ExtendedQuery: wrapVoid(s.UpdateForServerExtendedQueryMessage),
		Response:      wrapVoid(s.UpdateForServerResponseMessage),
	}
	_, _ = handlers.HandleDefault(msg, func(msg ServerMessage) (struct{}, error) { return struct{}{}, nil })
}

// These four handlers switch on the decoded pgproto3 message rather than
// on the pgwire wrapper type. A wrapper can reach here either as a value
// (the normal path, via ToServerMessage) or as a pointer (test helpers
// that build a wrapper with ServerParsed and convert its pointer to a
// concrete wrapper type), and those two forms are distinct dynamic types
// for a type switch; the underlying pgproto3 pointer is the same either
// way, so switching on msg.Server() avoids the mismatch.

func (s *ProtocolState) UpdateForServerExtendedQueryMessage(msg ServerExtendedQuery) {
	switch raw := msg.Server().(type) {
	case *pgproto3.ParseComplete:
		for name := range s.Statements.PendingCreate {
			s.Statements.Alive[name] = true
		}
		clear(s.Statements.PendingCreate)
	case *pgproto3.CloseComplete:
		for name := range s.Statements.PendingClose {
			s.Statements.Alive[name] = false
		}
		clear(s.Statements.PendingClose)
		for name := range s.Portals.PendingClose {
			s.Portals.Alive[name] = false
		}
		clear(s.Portals.PendingClose)
	case *pgproto3.BindComplete:
		for name := range s.Portals.PendingCreate {
			s.Portals.Alive[name] = true
		}
		clear(s.Portals.PendingCreate)
	case *pgproto3.NoData, *pgproto3.ParameterDescription, *pgproto3.PortalSuspended, *pgproto3.RowDescription:
		// No state change.
	default:
		panic(fmt.Sprintf("unexpected pgwire.ServerExtendedQuery: %T", raw))
	}
}

func (s *ProtocolState) UpdateForServerCopyMessage(msg ServerCopy) {
	switch raw := msg.Server().(type) {
	case *pgproto3.CopyInResponse:
		s.CopyMode = CopyIn
	case *pgproto3.CopyOutResponse:
		s.CopyMode = CopyOut
	case *pgproto3.CopyBothResponse:
		s.CopyMode = CopyBoth
	case *pgproto3.CopyData:
		// No state change.
	case *pgproto3.CopyDone:
		s.CopyMode = CopyNone
	default:
		panic(fmt.Sprintf("unexpected pgwire.ServerCopy: %T", raw))
	}
}

func (s *ProtocolState) UpdateForServerResponseMessage(msg ServerResponse) {
	switch raw := msg.Server().(type) {
	case *pgproto3.ReadyForQuery:
		s.CopyMode = CopyNone
		s.TxStatus = TxStatus(raw.TxStatus)
		s.ServerIgnoringMessagesUntilSync = false
		s.Statements.Executing = nil
		s.Portals.Executing = nil
		if s.SyncsInFlight > 0 {
			s.SyncsInFlight--
		}
	case *pgproto3.CommandComplete, *pgproto3.DataRow, *pgproto3.EmptyQueryResponse, *pgproto3.FunctionCallResponse:
		// No state change.
	case *pgproto3.ErrorResponse:
		if s.ExtendedQueryMode {
			s.ServerIgnoringMessagesUntilSync = true
		}
	default:
		panic(fmt.Sprintf("unexpected pgwire.ServerResponse: %T", raw))
	}
}

func (s *ProtocolState) UpdateForServerAsyncMessage(msg ServerAsync) {
	switch raw := msg.Server().(type) {
	case *pgproto3.NoticeResponse, *pgproto3.NotificationResponse:
		// No state change.
	case *pgproto3.ParameterStatus:
		if raw.Value == "" {
			delete(s.ParameterStatuses, raw.Name)
		} else {
			s.ParameterStatuses[raw.Name] = raw.Value
		}
	default:
		panic(fmt.Sprintf("unexpected pgwire.ServerAsync: %T", raw))
	}
}

func wrapVoid[T any](fn func(T)) func(T) (struct{}, error) {
	return func(t T) (struct{}, error) {
		fn(t)
		return struct{}{}, nil
	}
}
