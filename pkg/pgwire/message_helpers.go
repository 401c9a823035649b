package pgwire

import "github.com/jackc/pgx/v5/pgproto3"

// This file contains hand-written helper methods for message types that
// need a field pulled out without the caller re-deriving it from the
// underlying pgproto3 struct, plus the message-category predicates used
// by ProtocolState and the session loops to classify a message without
// allocating a wrapper.

// IsSimpleQueryModeMessage reports whether msg starts or belongs to the
// simple query sub-protocol.
func IsSimpleQueryModeMessage(msg pgproto3.FrontendMessage) bool {
	switch msg.(type) {
	case *pgproto3.Query, *pgproto3.FunctionCall:
		return true
	}
	return false
}

// IsExtendedQueryModeMessage reports whether msg belongs to the extended
// query sub-protocol (Parse/Bind/Execute/Describe/Close/Sync/Flush).
func IsExtendedQueryModeMessage(msg pgproto3.FrontendMessage) bool {
	switch msg.(type) {
	case *pgproto3.Parse, *pgproto3.Bind, *pgproto3.Execute, *pgproto3.Describe,
		*pgproto3.Close, *pgproto3.Sync, *pgproto3.Flush:
		return true
	}
	return false
}

// IsCopyModeMessage reports whether msg is part of a client-side COPY stream.
func IsCopyModeMessage(msg pgproto3.FrontendMessage) bool {
	switch msg.(type) {
	case *pgproto3.CopyData, *pgproto3.CopyDone, *pgproto3.CopyFail:
		return true
	}
	return false
}

// IsStartupModeMessage reports whether msg is part of client startup/
// authentication negotiation (StartupMessage, SSLRequest, GSSEncRequest,
// or one of the password/SASL response messages).
func IsStartupModeMessage(msg pgproto3.FrontendMessage) bool {
	switch msg.(type) {
	case *pgproto3.StartupMessage, *pgproto3.SSLRequest, *pgproto3.GSSEncRequest,
		*pgproto3.GSSResponse, *pgproto3.PasswordMessage, *pgproto3.SASLInitialResponse,
		*pgproto3.SASLResponse:
		return true
	}
	return false
}

// IsCancelMessage reports whether msg is a CancelRequest.
func IsCancelMessage(msg pgproto3.FrontendMessage) bool {
	_, ok := msg.(*pgproto3.CancelRequest)
	return ok
}

// IsTerminateConnMessage reports whether msg is a Terminate.
func IsTerminateConnMessage(msg pgproto3.FrontendMessage) bool {
	_, ok := msg.(*pgproto3.Terminate)
	return ok
}

// IsBackendStartupModeMessage reports whether msg is part of backend
// startup/authentication negotiation.
func IsBackendStartupModeMessage(msg pgproto3.BackendMessage) bool {
	switch msg.(type) {
	case *pgproto3.AuthenticationOk, *pgproto3.AuthenticationCleartextPassword,
		*pgproto3.AuthenticationMD5Password, *pgproto3.AuthenticationGSS,
		*pgproto3.AuthenticationGSSContinue, *pgproto3.AuthenticationSASL,
		*pgproto3.AuthenticationSASLContinue, *pgproto3.AuthenticationSASLFinal,
		*pgproto3.BackendKeyData:
		return true
	}
	return false
}

// IsBackendExtendedQueryModeMessage reports whether msg is a backend
// response specific to the extended query sub-protocol.
func IsBackendExtendedQueryModeMessage(msg pgproto3.BackendMessage) bool {
	switch msg.(type) {
	case *pgproto3.ParseComplete, *pgproto3.BindComplete, *pgproto3.CloseComplete,
		*pgproto3.ParameterDescription, *pgproto3.RowDescription, *pgproto3.NoData,
		*pgproto3.PortalSuspended:
		return true
	}
	return false
}

// IsBackendCopyModeMessage reports whether msg is part of a backend COPY stream.
func IsBackendCopyModeMessage(msg pgproto3.BackendMessage) bool {
	switch msg.(type) {
	case *pgproto3.CopyInResponse, *pgproto3.CopyOutResponse, *pgproto3.CopyBothResponse,
		*pgproto3.CopyData, *pgproto3.CopyDone:
		return true
	}
	return false
}

// IsBackendResponseMessage reports whether msg is a query-result/response message.
func IsBackendResponseMessage(msg pgproto3.BackendMessage) bool {
	switch msg.(type) {
	case *pgproto3.ReadyForQuery, *pgproto3.CommandComplete, *pgproto3.DataRow,
		*pgproto3.EmptyQueryResponse, *pgproto3.ErrorResponse, *pgproto3.FunctionCallResponse:
		return true
	}
	return false
}

// IsBackendAsyncMessage reports whether msg can arrive unsolicited, outside
// the normal request/response cadence.
func IsBackendAsyncMessage(msg pgproto3.BackendMessage) bool {
	switch msg.(type) {
	case *pgproto3.NoticeResponse, *pgproto3.NotificationResponse, *pgproto3.ParameterStatus:
		return true
	}
	return false
}

// DataSize returns the size of the COPY data payload.
func (m ClientCopyCopyData) DataSize() int {
	return len(m.T.Data)
}

// DataSize returns the size of the COPY data payload.
func (m ServerCopyCopyData) DataSize() int {
	return len(m.T.Data)
}

// TxStatusByte returns the transaction status byte: 'I' (idle),
// 'T' (in transaction) or 'E' (failed transaction).
func (m ServerResponseReadyForQuery) TxStatusByte() byte {
	return m.T.TxStatus
}
