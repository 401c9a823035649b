package pgwire

import "github.com/jackc/pgx/v5/pgproto3"

// Concrete message wrapper types and the category marker interfaces they
// implement. These exist so callers can type-switch on protocol category
// (ClientCopy, ServerResponse, ...) without re-deriving it from the
// underlying pgproto3 type on every message. ToClientMessage/ToServerMessage
// in messages.go construct these from a decoded pgproto3 message.

// --- client categories ---

type ClientCancel interface {
	ClientMessage
	clientCancel()
}

type ClientCopy interface {
	ClientMessage
	clientCopy()
}

type ClientSimpleQuery interface {
	ClientMessage
	clientSimpleQuery()
}

type ClientExtendedQuery interface {
	ClientMessage
	clientExtendedQuery()
}

type ClientTerminateConn interface {
	ClientMessage
	clientTerminateConn()
}

type ClientStartup interface {
	ClientMessage
	clientStartup()
}

// --- server categories ---

type ServerAsync interface {
	ServerMessage
	serverAsync()
}

type ServerCopy interface {
	ServerMessage
	serverCopy()
}

type ServerExtendedQuery interface {
	ServerMessage
	serverExtendedQuery()
}

type ServerResponse interface {
	ServerMessage
	serverResponse()
}

type ServerStartup interface {
	ServerMessage
	serverStartup()
}

// --- client: cancel ---

type ClientCancelCancelRequest struct{ T *pgproto3.CancelRequest }

func (m ClientCancelCancelRequest) PgwireMessage() pgproto3.Message   { return m.T }
func (m ClientCancelCancelRequest) Client() pgproto3.FrontendMessage  { return m.T }
func (ClientCancelCancelRequest) clientCancel()                       {}

// --- client: copy ---

type ClientCopyCopyData struct{ T *pgproto3.CopyData }
type ClientCopyCopyDone struct{ T *pgproto3.CopyDone }
type ClientCopyCopyFail struct{ T *pgproto3.CopyFail }

func (m ClientCopyCopyData) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientCopyCopyData) Client() pgproto3.FrontendMessage { return m.T }
func (ClientCopyCopyData) clientCopy()                        {}

func (m ClientCopyCopyDone) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientCopyCopyDone) Client() pgproto3.FrontendMessage { return m.T }
func (ClientCopyCopyDone) clientCopy()                        {}

func (m ClientCopyCopyFail) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientCopyCopyFail) Client() pgproto3.FrontendMessage { return m.T }
func (ClientCopyCopyFail) clientCopy()                        {}

// --- client: simple query ---

type ClientSimpleQueryQuery struct{ T *pgproto3.Query }
type ClientSimpleQueryFunctionCall struct{ T *pgproto3.FunctionCall }

func (m ClientSimpleQueryQuery) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientSimpleQueryQuery) Client() pgproto3.FrontendMessage { return m.T }
func (ClientSimpleQueryQuery) clientSimpleQuery()                 {}

func (m ClientSimpleQueryFunctionCall) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientSimpleQueryFunctionCall) Client() pgproto3.FrontendMessage { return m.T }
func (ClientSimpleQueryFunctionCall) clientSimpleQuery()                 {}

// --- client: extended query ---

type ClientExtendedQueryParse struct{ T *pgproto3.Parse }
type ClientExtendedQueryBind struct{ T *pgproto3.Bind }
type ClientExtendedQueryExecute struct{ T *pgproto3.Execute }
type ClientExtendedQuerySync struct{ T *pgproto3.Sync }
type ClientExtendedQueryDescribe struct{ T *pgproto3.Describe }
type ClientExtendedQueryClose struct{ T *pgproto3.Close }
type ClientExtendedQueryFlush struct{ T *pgproto3.Flush }

func (m ClientExtendedQueryParse) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientExtendedQueryParse) Client() pgproto3.FrontendMessage { return m.T }
func (ClientExtendedQueryParse) clientExtendedQuery()                {}

func (m ClientExtendedQueryBind) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientExtendedQueryBind) Client() pgproto3.FrontendMessage { return m.T }
func (ClientExtendedQueryBind) clientExtendedQuery()                {}

func (m ClientExtendedQueryExecute) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientExtendedQueryExecute) Client() pgproto3.FrontendMessage { return m.T }
func (ClientExtendedQueryExecute) clientExtendedQuery()                {}

func (m ClientExtendedQuerySync) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientExtendedQuerySync) Client() pgproto3.FrontendMessage { return m.T }
func (ClientExtendedQuerySync) clientExtendedQuery()                {}

func (m ClientExtendedQueryDescribe) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientExtendedQueryDescribe) Client() pgproto3.FrontendMessage { return m.T }
func (ClientExtendedQueryDescribe) clientExtendedQuery()                {}

func (m ClientExtendedQueryClose) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientExtendedQueryClose) Client() pgproto3.FrontendMessage { return m.T }
func (ClientExtendedQueryClose) clientExtendedQuery()                {}

func (m ClientExtendedQueryFlush) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientExtendedQueryFlush) Client() pgproto3.FrontendMessage { return m.T }
func (ClientExtendedQueryFlush) clientExtendedQuery()                {}

// --- client: terminate ---

type ClientTerminateConnTerminate struct{ T *pgproto3.Terminate }

func (m ClientTerminateConnTerminate) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientTerminateConnTerminate) Client() pgproto3.FrontendMessage { return m.T }
func (ClientTerminateConnTerminate) clientTerminateConn()                {}

// --- client: startup ---

type ClientStartupGSSEncRequest struct{ T *pgproto3.GSSEncRequest }
type ClientStartupGSSResponse struct{ T *pgproto3.GSSResponse }
type ClientStartupPasswordMessage struct{ T *pgproto3.PasswordMessage }
type ClientStartupSASLInitialResponse struct{ T *pgproto3.SASLInitialResponse }
type ClientStartupSASLResponse struct{ T *pgproto3.SASLResponse }
type ClientStartupSSLRequest struct{ T *pgproto3.SSLRequest }
type ClientStartupStartupMessage struct{ T *pgproto3.StartupMessage }

func (m ClientStartupGSSEncRequest) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientStartupGSSEncRequest) Client() pgproto3.FrontendMessage { return m.T }
func (ClientStartupGSSEncRequest) clientStartup()                     {}

func (m ClientStartupGSSResponse) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientStartupGSSResponse) Client() pgproto3.FrontendMessage { return m.T }
func (ClientStartupGSSResponse) clientStartup()                     {}

func (m ClientStartupPasswordMessage) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientStartupPasswordMessage) Client() pgproto3.FrontendMessage { return m.T }
func (ClientStartupPasswordMessage) clientStartup()                     {}

func (m ClientStartupSASLInitialResponse) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientStartupSASLInitialResponse) Client() pgproto3.FrontendMessage { return m.T }
func (ClientStartupSASLInitialResponse) clientStartup()                     {}

func (m ClientStartupSASLResponse) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientStartupSASLResponse) Client() pgproto3.FrontendMessage { return m.T }
func (ClientStartupSASLResponse) clientStartup()                     {}

func (m ClientStartupSSLRequest) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientStartupSSLRequest) Client() pgproto3.FrontendMessage { return m.T }
func (ClientStartupSSLRequest) clientStartup()                     {}

func (m ClientStartupStartupMessage) PgwireMessage() pgproto3.Message  { return m.T }
func (m ClientStartupStartupMessage) Client() pgproto3.FrontendMessage { return m.T }
func (ClientStartupStartupMessage) clientStartup()                     {}

// --- server: async ---

type ServerAsyncNoticeResponse struct{ T *pgproto3.NoticeResponse }
type ServerAsyncNotificationResponse struct{ T *pgproto3.NotificationResponse }
type ServerAsyncParameterStatus struct{ T *pgproto3.ParameterStatus }

func (m ServerAsyncNoticeResponse) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerAsyncNoticeResponse) Server() pgproto3.BackendMessage { return m.T }
func (ServerAsyncNoticeResponse) serverAsync()                      {}

func (m ServerAsyncNotificationResponse) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerAsyncNotificationResponse) Server() pgproto3.BackendMessage { return m.T }
func (ServerAsyncNotificationResponse) serverAsync()                      {}

func (m ServerAsyncParameterStatus) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerAsyncParameterStatus) Server() pgproto3.BackendMessage { return m.T }
func (ServerAsyncParameterStatus) serverAsync()                      {}

// --- server: copy ---

type ServerCopyCopyInResponse struct{ T *pgproto3.CopyInResponse }
type ServerCopyCopyOutResponse struct{ T *pgproto3.CopyOutResponse }
type ServerCopyCopyBothResponse struct{ T *pgproto3.CopyBothResponse }
type ServerCopyCopyData struct{ T *pgproto3.CopyData }
type ServerCopyCopyDone struct{ T *pgproto3.CopyDone }

func (m ServerCopyCopyInResponse) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerCopyCopyInResponse) Server() pgproto3.BackendMessage { return m.T }
func (ServerCopyCopyInResponse) serverCopy()                       {}

func (m ServerCopyCopyOutResponse) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerCopyCopyOutResponse) Server() pgproto3.BackendMessage { return m.T }
func (ServerCopyCopyOutResponse) serverCopy()                       {}

func (m ServerCopyCopyBothResponse) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerCopyCopyBothResponse) Server() pgproto3.BackendMessage { return m.T }
func (ServerCopyCopyBothResponse) serverCopy()                       {}

func (m ServerCopyCopyData) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerCopyCopyData) Server() pgproto3.BackendMessage { return m.T }
func (ServerCopyCopyData) serverCopy()                       {}

func (m ServerCopyCopyDone) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerCopyCopyDone) Server() pgproto3.BackendMessage { return m.T }
func (ServerCopyCopyDone) serverCopy()                       {}

// --- server: extended query ---

type ServerExtendedQueryParseComplete struct{ T *pgproto3.ParseComplete }
type ServerExtendedQueryBindComplete struct{ T *pgproto3.BindComplete }
type ServerExtendedQueryParameterDescription struct{ T *pgproto3.ParameterDescription }
type ServerExtendedQueryRowDescription struct{ T *pgproto3.RowDescription }
type ServerExtendedQueryNoData struct{ T *pgproto3.NoData }
type ServerExtendedQueryPortalSuspended struct{ T *pgproto3.PortalSuspended }
type ServerExtendedQueryCloseComplete struct{ T *pgproto3.CloseComplete }

func (m ServerExtendedQueryParseComplete) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerExtendedQueryParseComplete) Server() pgproto3.BackendMessage { return m.T }
func (ServerExtendedQueryParseComplete) serverExtendedQuery()              {}

func (m ServerExtendedQueryBindComplete) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerExtendedQueryBindComplete) Server() pgproto3.BackendMessage { return m.T }
func (ServerExtendedQueryBindComplete) serverExtendedQuery()              {}

func (m ServerExtendedQueryParameterDescription) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerExtendedQueryParameterDescription) Server() pgproto3.BackendMessage { return m.T }
func (ServerExtendedQueryParameterDescription) serverExtendedQuery()              {}

func (m ServerExtendedQueryRowDescription) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerExtendedQueryRowDescription) Server() pgproto3.BackendMessage { return m.T }
func (ServerExtendedQueryRowDescription) serverExtendedQuery()              {}

func (m ServerExtendedQueryNoData) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerExtendedQueryNoData) Server() pgproto3.BackendMessage { return m.T }
func (ServerExtendedQueryNoData) serverExtendedQuery()              {}

func (m ServerExtendedQueryPortalSuspended) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerExtendedQueryPortalSuspended) Server() pgproto3.BackendMessage { return m.T }
func (ServerExtendedQueryPortalSuspended) serverExtendedQuery()              {}

func (m ServerExtendedQueryCloseComplete) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerExtendedQueryCloseComplete) Server() pgproto3.BackendMessage { return m.T }
func (ServerExtendedQueryCloseComplete) serverExtendedQuery()              {}

// --- server: response ---

type ServerResponseReadyForQuery struct{ T *pgproto3.ReadyForQuery }
type ServerResponseCommandComplete struct{ T *pgproto3.CommandComplete }
type ServerResponseDataRow struct{ T *pgproto3.DataRow }
type ServerResponseEmptyQueryResponse struct{ T *pgproto3.EmptyQueryResponse }
type ServerResponseErrorResponse struct{ T *pgproto3.ErrorResponse }
type ServerResponseFunctionCallResponse struct{ T *pgproto3.FunctionCallResponse }

func (m ServerResponseReadyForQuery) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerResponseReadyForQuery) Server() pgproto3.BackendMessage { return m.T }
func (ServerResponseReadyForQuery) serverResponse()                   {}

func (m ServerResponseCommandComplete) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerResponseCommandComplete) Server() pgproto3.BackendMessage { return m.T }
func (ServerResponseCommandComplete) serverResponse()                   {}

func (m ServerResponseDataRow) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerResponseDataRow) Server() pgproto3.BackendMessage { return m.T }
func (ServerResponseDataRow) serverResponse()                   {}

func (m ServerResponseEmptyQueryResponse) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerResponseEmptyQueryResponse) Server() pgproto3.BackendMessage { return m.T }
func (ServerResponseEmptyQueryResponse) serverResponse()                   {}

func (m ServerResponseErrorResponse) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerResponseErrorResponse) Server() pgproto3.BackendMessage { return m.T }
func (ServerResponseErrorResponse) serverResponse()                   {}

func (m ServerResponseFunctionCallResponse) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerResponseFunctionCallResponse) Server() pgproto3.BackendMessage { return m.T }
func (ServerResponseFunctionCallResponse) serverResponse()                   {}

// --- server: startup/authentication ---

type ServerStartupAuthenticationCleartextPassword struct {
	T *pgproto3.AuthenticationCleartextPassword
}
type ServerStartupAuthenticationGSS struct{ T *pgproto3.AuthenticationGSS }
type ServerStartupAuthenticationGSSContinue struct{ T *pgproto3.AuthenticationGSSContinue }
type ServerStartupAuthenticationMD5Password struct{ T *pgproto3.AuthenticationMD5Password }
type ServerStartupAuthenticationOk struct{ T *pgproto3.AuthenticationOk }
type ServerStartupAuthenticationSASL struct{ T *pgproto3.AuthenticationSASL }
type ServerStartupAuthenticationSASLContinue struct{ T *pgproto3.AuthenticationSASLContinue }
type ServerStartupAuthenticationSASLFinal struct{ T *pgproto3.AuthenticationSASLFinal }
type ServerStartupBackendKeyData struct{ T *pgproto3.BackendKeyData }

func (m ServerStartupAuthenticationCleartextPassword) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerStartupAuthenticationCleartextPassword) Server() pgproto3.BackendMessage { return m.T }
func (ServerStartupAuthenticationCleartextPassword) serverStartup()                     {}

func (m ServerStartupAuthenticationGSS) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerStartupAuthenticationGSS) Server() pgproto3.BackendMessage { return m.T }
func (ServerStartupAuthenticationGSS) serverStartup()                    {}

func (m ServerStartupAuthenticationGSSContinue) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerStartupAuthenticationGSSContinue) Server() pgproto3.BackendMessage { return m.T }
func (ServerStartupAuthenticationGSSContinue) serverStartup()                    {}

func (m ServerStartupAuthenticationMD5Password) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerStartupAuthenticationMD5Password) Server() pgproto3.BackendMessage { return m.T }
func (ServerStartupAuthenticationMD5Password) serverStartup()                    {}

func (m ServerStartupAuthenticationOk) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerStartupAuthenticationOk) Server() pgproto3.BackendMessage { return m.T }
func (ServerStartupAuthenticationOk) serverStartup()                    {}

func (m ServerStartupAuthenticationSASL) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerStartupAuthenticationSASL) Server() pgproto3.BackendMessage { return m.T }
func (ServerStartupAuthenticationSASL) serverStartup()                    {}

func (m ServerStartupAuthenticationSASLContinue) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerStartupAuthenticationSASLContinue) Server() pgproto3.BackendMessage { return m.T }
func (ServerStartupAuthenticationSASLContinue) serverStartup()                    {}

func (m ServerStartupAuthenticationSASLFinal) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerStartupAuthenticationSASLFinal) Server() pgproto3.BackendMessage { return m.T }
func (ServerStartupAuthenticationSASLFinal) serverStartup()                    {}

func (m ServerStartupBackendKeyData) PgwireMessage() pgproto3.Message { return m.T }
func (m ServerStartupBackendKeyData) Server() pgproto3.BackendMessage { return m.T }
func (ServerStartupBackendKeyData) serverStartup()                    {}
