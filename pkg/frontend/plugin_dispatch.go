package frontend

import (
	"errors"

	"github.com/jackc/pgerrcode"

	"github.com/pgshuttle/pgshuttle/pkg/pgwire"
	"github.com/pgshuttle/pgshuttle/pkg/plugin"
)

// pluginOutcome tells a caller of one of the dispatchXThroughPlugins
// helpers below what to do next: keep handling the message normally
// (pluginContinue), stop because a plugin already fully answered it
// (pluginHandled), or stop because the session must end (pluginFailed,
// with the ErrorResponse already written to the client).
type pluginOutcome int

const (
	pluginContinue pluginOutcome = iota
	pluginHandled
	pluginFailed
)

// pluginSession lazily builds (and keeps refreshed) the plugin.Session
// view of this client session's identity and bookkeeping. The same
// *plugin.Session is reused for the life of the session so a plugin's
// Scratch map survives across every hook call for this client.
func (s *Session) pluginSession() *plugin.Session {
	if s.plugins == nil {
		s.plugins = &plugin.Session{}
	}
	s.plugins.ClientPID = s.state.PID
	s.plugins.User = s.userName
	s.plugins.Database = s.databaseName
	s.plugins.ApplicationName = s.startupParameters[pgwire.ParamApplicationName]
	if s.conn != nil {
		s.plugins.RemoteAddr = s.conn.RemoteAddr().String()
	}
	s.plugins.TxStatus = byte(s.state.TxStatus)
	return s.plugins
}

// dispatchClientThroughPlugins runs the registered plugins' on_client_
// message (and on_parse/on_query/on_copy_data) hooks over cm, per
// SPEC_FULL §4.6. A Respond decision here answers the client directly,
// as if a backend had produced the response, since the client is the
// peer that originated cm.
func (s *Session) dispatchClientThroughPlugins(cm pgwire.ClientMessage) (pgwire.ClientMessage, pluginOutcome) {
	if s.service.plugins == nil {
		return cm, pluginContinue
	}
	effective, decision := s.service.plugins.DispatchClientMessage(s.ctx, s.pluginSession(), cm)

	switch {
	case decision.IsFail():
		return effective, s.failFromPlugin(decision)
	case decision.IsRespond():
		for _, msg := range decision.ResponseMessages() {
			if sm, ok := msg.(pgwire.ServerMessage); ok {
				s.frontend.Send(sm.Server())
			}
		}
		if err := s.frontend.Flush(); err != nil {
			s.logger.Debug("failed to flush plugin response", "error", err)
		}
		return effective, pluginHandled
	case decision.IsDrop():
		return effective, pluginHandled
	default:
		return effective, pluginContinue
	}
}

// dispatchBackendThroughPlugins mirrors dispatchClientThroughPlugins for
// messages arriving from the bound backend. A Respond decision here
// answers the backend directly (the backend is the originating peer),
// without involving the client.
func (s *Session) dispatchBackendThroughPlugins(sm pgwire.ServerMessage) (pgwire.ServerMessage, pluginOutcome) {
	if s.service.plugins == nil {
		return sm, pluginContinue
	}
	effective, decision := s.service.plugins.DispatchBackendMessage(s.ctx, s.pluginSession(), sm)

	switch {
	case decision.IsFail():
		return effective, s.failFromPlugin(decision)
	case decision.IsRespond():
		if s.backendSession != nil {
			for _, msg := range decision.ResponseMessages() {
				if cm, ok := msg.(pgwire.ClientMessage); ok {
					if err := s.backendSession.WriteMsg(cm.Client()); err != nil {
						s.logger.Debug("failed to write plugin response to backend", "error", err)
					}
				}
			}
		}
		return effective, pluginHandled
	case decision.IsDrop():
		return effective, pluginHandled
	default:
		return effective, pluginContinue
	}
}

// dispatchReplicationThroughPlugins runs the on_replication_message hooks
// for a session that has entered the replication substate (SPEC_FULL
// §4.5), in place of the ordinary client/backend message hooks: every
// CopyData frame carrying WAL data or a standby status update goes
// through here instead, tagged with which side it came from.
func (s *Session) dispatchReplicationThroughPlugins(msg pgwire.Message, fromClient bool) (pgwire.Message, pluginOutcome) {
	if s.service.plugins == nil {
		return msg, pluginContinue
	}
	effective, decision := s.service.plugins.DispatchReplicationMessage(s.ctx, s.pluginSession(), msg, fromClient)

	switch {
	case decision.IsFail():
		return effective, s.failFromPlugin(decision)
	case decision.IsRespond():
		for _, resp := range decision.ResponseMessages() {
			if fromClient {
				if sm, ok := resp.(pgwire.ServerMessage); ok {
					s.frontend.Send(sm.Server())
				}
			} else if s.backendSession != nil {
				if cm, ok := resp.(pgwire.ClientMessage); ok {
					if err := s.backendSession.WriteMsg(cm.Client()); err != nil {
						s.logger.Debug("failed to write plugin response to backend", "error", err)
					}
				}
			}
		}
		if fromClient {
			if err := s.frontend.Flush(); err != nil {
				s.logger.Debug("failed to flush plugin response", "error", err)
			}
		}
		return effective, pluginHandled
	case decision.IsDrop():
		return effective, pluginHandled
	default:
		return effective, pluginContinue
	}
}

// failFromPlugin surfaces a plugin's Fail decision to the client as a
// protocol ErrorResponse (preserving severity/code/message if the cause
// is a *pgwire.Err, per the PluginFatal error kind in SPEC_FULL §7) and
// reports that the session must end.
func (s *Session) failFromPlugin(decision plugin.Decision) pluginOutcome {
	cause := decision.Err()
	var pgErr *pgwire.Err
	if errors.As(cause, &pgErr) {
		s.sendError(pgwire.Severity(pgErr.Severity), pgErr.Code, pgErr.Message)
	} else {
		s.sendError(pgwire.ErrorFatal, pgerrcode.InternalError, cause.Error())
	}
	return pluginFailed
}
