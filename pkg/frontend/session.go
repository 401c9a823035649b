package frontend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand/v2"
	"net"
	"runtime"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/pgshuttle/pgshuttle/pkg/backend"
	"github.com/pgshuttle/pgshuttle/pkg/config"
	"github.com/pgshuttle/pgshuttle/pkg/pgwire"
	"github.com/pgshuttle/pgshuttle/pkg/plugin"
	"github.com/pgshuttle/pgshuttle/pkg/pool"
)

// Session represents a client's session with the Service. Its lifetime
// spans from TCP accept to connection close; across that lifetime it may
// acquire and release many different pooled backend.Session instances,
// one per command cycle in transaction/statement pool mode, or one for
// the whole session in session pool mode.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	service   *Service
	conn      net.Conn
	logger    *slog.Logger
	tlsConfig *tls.Config
	secrets   *config.SecretCache
	config    *config.Config

	// The client.
	frontend Frontend
	recv     *EventLoopRecv

	// Populated during startup.
	startupParameters map[string]string
	databaseName      string
	userName          string
	serverConfig      config.ServerConfig
	userConfig        config.UserConfig
	tlsState          *tls.ConnectionState
	trackedParameters []string

	// Client's view of the server's session state.
	state pgwire.ProtocolState

	// poolKey and backendSession are set while a backend connection is
	// checked out; both nil/zero when idle between command cycles. mu
	// guards backendSession against the concurrent read a CancelRequest
	// arriving on a different connection performs.
	mu             sync.Mutex
	poolKey        pool.Key
	backendSession *backend.Session

	// replicating is set once the client's StartupMessage requested
	// streaming/logical replication; such a session's bound backend is
	// permanently checked out (pkg/pool.CheckoutReplication) and is
	// driven through the replication substate instead of the ordinary
	// simple/extended-query loop, per SPEC_FULL §4.3/§4.5.
	replicating bool

	// plugins is this session's persistent plugin.Session view, reused
	// across every hook call so per-plugin Scratch state survives for
	// the life of the connection.
	plugins *plugin.Session
}

// Close cancels the session's context and releases associated resources.
func (s *Session) Close() {
	s.cancel()
	if s.recv != nil {
		s.recv.Close()
	}
	s.releaseBackend()
	s.service.cancelRegistry.unregister(s)
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("error closing client connection", "error", err)
		}
	}
}

// Run handles the full lifecycle of a client session: TLS negotiation,
// startup, authentication, and the steady-state proxy loop.
func (s *Session) Run() {
	defer s.Close()

	s.frontend = Frontend{ctx: s.ctx, Backend: pgproto3.NewBackend(s.conn, s.conn)}
	s.enableTracing()

	if err := s.handleStartup(); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) && !errors.Is(err, errSessionDone) {
			s.logger.Error("startup failed", "error", err)
		}
		return
	}

	s.logger = s.logger.With("user", s.userName, "database", s.databaseName)

	if err := s.authenticate(); err != nil {
		s.logger.Error("authentication failed", "error", err)
		return
	}

	s.initSessionProcessState()
	s.sendInitialParameterStatuses()
	s.sendBackendKeyData()
	s.sendReadyForQuery()

	s.recv = NewEventLoopRecv(s.ctx, s.readClientMessage)

	for {
		cm, err := s.recv.RecvFrontend()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				s.logger.Debug("client read failed", "error", err)
			}
			return
		}

		if err := s.handleClientMessage(cm); err != nil {
			if !errors.Is(err, errSessionDone) {
				s.logger.Warn("session ended with error", "error", err)
			}
			return
		}
	}
}

// errSessionDone signals a clean session end (client terminated, or an
// unrecoverable protocol error already reported to the client).
var errSessionDone = errors.New("session done")

// handleClientMessage dispatches one frontend message received while
// idle (no backend checked out). Simple/extended-query messages escalate
// into runWithBackend, which keeps driving the loop until the backend
// connection can be safely returned to the pool.
func (s *Session) handleClientMessage(cm pgwire.ClientMessage) error {
	effective, outcome := s.dispatchClientThroughPlugins(cm)
	switch outcome {
	case pluginFailed:
		return errSessionDone
	case pluginHandled:
		return nil
	}
	cm = effective

	handlers := pgwire.ClientMessageHandlers[error]{
		TerminateConn: func(pgwire.ClientTerminateConn) (error, error) {
			s.logger.Info("client terminated connection")
			return errSessionDone, nil
		},
		Cancel: func(pgwire.ClientCancel) (error, error) {
			s.sendError(pgwire.ErrorFatal, pgerrcode.ProtocolViolation, "cancel request received on an established connection")
			return errSessionDone, nil
		},
		Startup: func(pgwire.ClientStartup) (error, error) {
			s.sendError(pgwire.ErrorFatal, pgerrcode.ProtocolViolation, "startup already completed")
			return errSessionDone, nil
		},
		Copy: func(pgwire.ClientCopy) (error, error) {
			s.sendError(pgwire.ErrorFatal, pgerrcode.ProtocolViolation, "not in COPY mode")
			return errSessionDone, nil
		},
		SimpleQuery: func(msg pgwire.ClientSimpleQuery) (error, error) {
			return s.runWithBackend(msg), nil
		},
		ExtendedQuery: func(msg pgwire.ClientExtendedQuery) (error, error) {
			return s.runWithBackend(msg), nil
		},
	}

	result, dispatchErr := handlers.Handle(cm)
	if dispatchErr != nil {
		return dispatchErr
	}
	return result
}

// runWithBackend acquires a pooled backend connection, forwards firstMsg
// to it, and keeps relaying frontend/backend messages until the session
// returns to an idle, checkin-safe state (or the client disconnects, or
// the backend connection is lost). The acquired connection stays on s for
// the next call if the client pipelines more work before going idle.
func (s *Session) runWithBackend(first pgwire.ClientMessage) error {
	if s.backendSession == nil {
		if err := s.acquireBackend(); err != nil {
			s.sendError(pgwire.ErrorFatal, pgerrcode.CannotConnectNow, fmt.Sprintf("failed to acquire backend: %v", err))
			return errSessionDone
		}
	}

	if err := s.forwardToBackend(first); err != nil {
		s.evictBackend(pool.EvictConnectionLost)
		s.sendError(pgwire.ErrorFatal, pgerrcode.ConnectionException, "lost connection to backend")
		return errSessionDone
	}

	for {
		if s.backendSession == nil {
			// Checked back in after the last message; back to the idle loop.
			return nil
		}

		msg, err := s.recv.RecvAny()
		if err != nil {
			s.evictBackend(pool.EvictConnectionLost)
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				s.logger.Debug("error during backend-attached read", "error", err)
			}
			return errSessionDone
		}

		switch m := msg.(type) {
		case pgwire.ClientMessage:
			if pgwire.IsTerminateConnMessage(m.Client()) {
				return errSessionDone
			}
			var effective pgwire.ClientMessage
			if s.replicating {
				eff, outcome := s.dispatchReplicationThroughPlugins(m, true)
				switch outcome {
				case pluginFailed:
					return errSessionDone
				case pluginHandled:
					continue
				}
				cm, ok := eff.(pgwire.ClientMessage)
				if !ok {
					cm = m
				}
				effective = cm
			} else {
				eff, outcome := s.dispatchClientThroughPlugins(m)
				switch outcome {
				case pluginFailed:
					return errSessionDone
				case pluginHandled:
					continue
				}
				effective = eff
			}
			if err := s.forwardToBackend(effective); err != nil {
				s.evictBackend(pool.EvictConnectionLost)
				s.sendError(pgwire.ErrorFatal, pgerrcode.ConnectionException, "lost connection to backend")
				return errSessionDone
			}
		case pgwire.ServerMessage:
			if !s.handleBackendMessage(m) {
				return errSessionDone
			}
		}
	}
}

func (s *Session) forwardToBackend(cm pgwire.ClientMessage) error {
	s.state.UpdateForFrontentMessage(cm.Client())
	return s.backendSession.WriteMsg(cm.Client())
}

// handleBackendMessage relays a backend message to the client and updates
// both the client's tracked state and, on ReadyForQuery, checks the
// connection back in if it is now safe to do so. Returns false if a
// plugin failed the session, in which case the caller must end it.
func (s *Session) handleBackendMessage(sm pgwire.ServerMessage) bool {
	// State tracking always observes what the backend actually said,
	// independent of anything a plugin does to the copy sent onward to
	// the client: the pool's idle/dirty invariants (SPEC_FULL §3) must
	// reflect the real backend, not a plugin's fiction.
	s.state.UpdateForServerMessage(sm)
	_, isReadyForQuery := sm.Server().(*pgproto3.ReadyForQuery)

	if s.replicating {
		eff, outcome := s.dispatchReplicationThroughPlugins(sm, false)
		if outcome == pluginFailed {
			return false
		}
		if outcome != pluginHandled {
			effective, ok := eff.(pgwire.ServerMessage)
			if !ok {
				effective = sm
			}
			s.frontend.Send(effective.Server())
			if err := s.frontend.Flush(); err != nil {
				s.logger.Debug("failed to flush to client", "error", err)
			}
		}
		return true
	}

	effective, outcome := s.dispatchBackendThroughPlugins(sm)
	if outcome == pluginFailed {
		return false
	}
	if outcome != pluginHandled {
		s.frontend.Send(effective.Server())
		if err := s.frontend.Flush(); err != nil {
			s.logger.Debug("failed to flush to client", "error", err)
		}
	}
	if isReadyForQuery {
		s.checkinIfIdle()
	}
	return true
}

func (s *Session) checkinIfIdle() {
	if s.replicating {
		return
	}
	if s.state.InTxOrQuery() || s.state.SyncsInFlight != 0 {
		return
	}
	if s.serverConfig.Backend.PoolMode == "transaction" || s.serverConfig.Backend.PoolMode == "statement" || s.serverConfig.Backend.PoolMode == "" {
		s.releaseBackend()
	}
}

func (s *Session) acquireBackend() error {
	var session *backend.Session
	var err error
	if s.replicating {
		session, err = s.service.pool.CheckoutReplication(s.ctx, s.poolKey, s.userConfig)
	} else {
		session, err = s.service.pool.Checkout(s.ctx, s.poolKey, s.userConfig)
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.backendSession = session
	s.mu.Unlock()
	s.recv.SetBackend(s.readBackendMessage)

	if s.service.plugins != nil {
		if d := s.service.plugins.DispatchBindBackend(s.ctx, s.pluginSession()); d.IsFail() {
			s.service.pool.Evict(s.poolKey, session, pool.EvictConnectionLost)
			s.mu.Lock()
			s.backendSession = nil
			s.mu.Unlock()
			s.recv.ClearBackend()
			return d.Err()
		}
	}
	return nil
}

func (s *Session) releaseBackend() {
	s.mu.Lock()
	session := s.backendSession
	s.backendSession = nil
	s.mu.Unlock()
	if session == nil {
		return
	}
	if s.service.plugins != nil {
		s.service.plugins.DispatchReleaseBackend(s.ctx, s.pluginSession())
	}
	s.recv.ClearBackend()
	if s.replicating {
		// A replication connection is permanently checked out (it is
		// never idle-safe to hand to another client); ending the client
		// session closes it outright instead of returning it to the pool.
		s.service.pool.Evict(s.poolKey, session, pool.EvictClosed)
		return
	}
	s.service.pool.Checkin(s.ctx, s.poolKey, session)
}

func (s *Session) evictBackend(reason pool.EvictReason) {
	s.mu.Lock()
	session := s.backendSession
	s.backendSession = nil
	s.mu.Unlock()
	if session == nil {
		return
	}
	s.recv.ClearBackend()
	s.service.pool.Evict(s.poolKey, session, reason)
}

func (s *Session) readClientMessage(context.Context) (*pgwire.ClientMessage, error) {
	raw, err := s.frontend.Receive()
	if err != nil {
		return nil, err
	}
	cm, ok := pgwire.ToClientMessage(raw)
	if !ok {
		return nil, fmt.Errorf("unsupported client message: %T", raw)
	}
	return &cm, nil
}

func (s *Session) readBackendMessage(context.Context) (*pgwire.ServerMessage, error) {
	result, ok := <-s.backendSession.Recv()
	if !ok {
		return nil, fmt.Errorf("backend reader closed")
	}
	if result.Error != nil {
		return nil, result.Error
	}
	sm, ok := pgwire.ToServerMessage(result.Value)
	if !ok {
		return nil, fmt.Errorf("unsupported backend message: %T", result.Value)
	}
	return &sm, nil
}

// handleStartup processes the initial connection: TLS negotiation and
// the startup message, resolving which ServerConfig and UserConfig this
// session talks to.
func (s *Session) handleStartup() error {
	startupMsg, err := s.frontend.ReceiveStartupMessage()
	if err != nil {
		return fmt.Errorf("failed to read startup message: %w", err)
	}

	if _, ok := startupMsg.(*pgproto3.SSLRequest); ok {
		if err := s.handleSSLRequest(); err != nil {
			return fmt.Errorf("SSL negotiation failed: %w", err)
		}
		startupMsg, err = s.frontend.ReceiveStartupMessage()
		if err != nil {
			return fmt.Errorf("failed to read startup message after TLS: %w", err)
		}
	}

	if _, ok := startupMsg.(*pgproto3.GSSEncRequest); ok {
		if _, err := s.conn.Write([]byte{'N'}); err != nil {
			return fmt.Errorf("failed to decline GSS encryption: %w", err)
		}
		startupMsg, err = s.frontend.ReceiveStartupMessage()
		if err != nil {
			return fmt.Errorf("failed to read startup message after GSS decline: %w", err)
		}
	}

	if cr, ok := startupMsg.(*pgproto3.CancelRequest); ok {
		secretKey := make([]byte, 4)
		binary.BigEndian.PutUint32(secretKey, cr.SecretKey)
		if err := s.service.cancelRegistry.cancel(s.ctx, cr.ProcessID, secretKey); err != nil {
			s.logger.Warn("failed to forward cancel request", "error", err)
		}
		return errSessionDone
	}

	startup, ok := startupMsg.(*pgproto3.StartupMessage)
	if !ok {
		return fmt.Errorf("expected StartupMessage, got %T", startupMsg)
	}

	s.startupParameters = startup.Parameters
	s.userName = startup.Parameters[pgwire.ParamUser]
	s.databaseName = startup.Parameters[pgwire.ParamDatabase]

	if s.userName == "" {
		s.sendError(pgwire.ErrorFatal, pgerrcode.InvalidAuthorizationSpecification, "no user specified")
		return errors.New("no user specified in startup message")
	}
	if s.databaseName == "" {
		s.databaseName = s.userName
	}

	server, ok := s.service.findServer(s.databaseName)
	if !ok {
		s.sendError(pgwire.ErrorFatal, pgerrcode.InvalidCatalogName, fmt.Sprintf("database %q does not exist", s.databaseName))
		return fmt.Errorf("unknown database: %s", s.databaseName)
	}
	s.serverConfig = server
	s.poolKey = pool.Key{Database: server.Database, Role: server.Role}

	if server.TLS != nil && server.TLS.Required() && s.tlsState == nil {
		s.sendError(pgwire.ErrorFatal, pgerrcode.ProtocolViolation, "SSL/TLS required")
		return errors.New("SSL/TLS required but client did not request SSL")
	}

	userConfig, err := s.findUserConfig(server)
	if err != nil {
		s.sendError(pgwire.ErrorFatal, pgerrcode.InvalidAuthorizationSpecification, fmt.Sprintf("user %q does not exist", s.userName))
		return err
	}
	s.userConfig = userConfig

	if replValue := startup.Parameters[pgwire.ParamReplication]; replValue != "" && replValue != "false" && replValue != "0" {
		s.replicating = true
	}

	if s.service.plugins != nil {
		if d := s.service.plugins.DispatchStartup(s.ctx, s.pluginSession()); d.IsFail() {
			s.sendError(pgwire.ErrorFatal, pgerrcode.ProtocolViolation, d.Err().Error())
			return d.Err()
		}
	}

	return nil
}

func (s *Session) handleSSLRequest() error {
	if s.tlsConfig == nil {
		_, err := s.conn.Write([]byte{'N'})
		return err
	}

	if _, err := s.conn.Write([]byte{'S'}); err != nil {
		return err
	}

	tlsConn := tls.Server(s.conn, s.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}

	s.conn = tlsConn
	state := tlsConn.ConnectionState()
	s.tlsState = &state

	s.frontend = Frontend{ctx: s.ctx, Backend: pgproto3.NewBackend(s.conn, s.conn)}
	s.enableTracing()

	return nil
}

// findUserConfig finds the user configuration matching the session's
// username among server's configured users.
func (s *Session) findUserConfig(server config.ServerConfig) (config.UserConfig, error) {
	for _, user := range server.Users {
		username, err := s.secrets.Get(s.ctx, user.Username)
		if err != nil {
			continue
		}
		if username == s.userName {
			return user, nil
		}
	}
	return config.UserConfig{}, fmt.Errorf("user not found: %s", s.userName)
}

// authenticate performs client authentication via SCRAM-SHA-256, or
// SCRAM-SHA-256-PLUS when the client connected over TLS: the only methods
// a Session offers, matching modern PostgreSQL defaults.
func (s *Session) authenticate() error {
	if s.service.plugins != nil {
		if d := s.service.plugins.DispatchAuthenticate(s.ctx, s.pluginSession()); d.IsFail() {
			s.sendError(pgwire.ErrorFatal, pgerrcode.InvalidAuthorizationSpecification, d.Err().Error())
			return d.Err()
		}
	}

	username, err := s.secrets.Get(s.ctx, s.userConfig.Username)
	if err != nil {
		return fmt.Errorf("failed to get username: %w", err)
	}
	password, err := s.secrets.Get(s.ctx, s.userConfig.Password)
	if err != nil {
		return fmt.Errorf("failed to get password: %w", err)
	}

	creds := NewUserSecretData(username, password)

	method := AuthMethodSCRAMSHA256
	if s.tlsState != nil {
		method = AuthMethodSCRAMSHA256Plus
	}

	authSession, err := NewAuthSession(s.frontend.Backend, creds, method, s.tlsState)
	if err != nil {
		return fmt.Errorf("failed to create auth session: %w", err)
	}

	if err := authSession.Run(); err != nil {
		_ = authSession.SendError()
		return err
	}

	return nil
}

func (s *Session) initSessionProcessState() {
	s.state.PID = s.service.allocPID()
	s.logger = s.logger.With("pid", s.state.PID)
	s.state.SecretCancelKey = rand.Uint32()
	s.state.ParameterStatuses = maps.Clone(pgwire.BaseParameterStatuses)
	maps.Copy(s.state.ParameterStatuses, maps.Collect(s.serverConfig.Backend.DefaultStartupParameters.All()))
	s.state.TxStatus = pgwire.TxIdle

	if len(s.serverConfig.TrackExtraParameters) > 0 {
		s.trackedParameters = append(s.trackedParameters, pgwire.BaseTrackedParameters...)
		s.trackedParameters = append(s.trackedParameters, s.serverConfig.TrackExtraParameters...)
	} else {
		s.trackedParameters = pgwire.BaseTrackedParameters
	}

	s.service.cancelRegistry.register(s)
}

func (s *Session) sendReadyForQuery() {
	s.frontend.Send(&pgproto3.ReadyForQuery{TxStatus: byte(s.state.TxStatus)})
	if err := s.frontend.Flush(); err != nil {
		s.logger.Debug("failed to flush ReadyForQuery", "error", err)
	}
}

func (s *Session) sendBackendKeyData() {
	s.frontend.Send(&pgproto3.BackendKeyData{
		ProcessID: s.state.PID,
		SecretKey: s.state.SecretCancelKey,
	})
}

func (s *Session) sendInitialParameterStatuses() {
	for key, value := range s.state.ParameterStatuses {
		s.frontend.Send(&pgproto3.ParameterStatus{Name: key, Value: value})
	}
}

// sendError sends an error response to the client.
func (s *Session) sendError(severity pgwire.Severity, code string, message string) {
	_, file, line, _ := runtime.Caller(1)

	s.logger.Warn("sent error to client", "severity", severity, "code", code, "message", message, "file", file, "line", line)

	if s.service.plugins != nil {
		// Observational only: SPEC_FULL §7 forbids swallowing an error
		// the client was already going to see, so on_error cannot veto
		// delivery, only watch it go by.
		s.service.plugins.DispatchError(s.ctx, s.pluginSession(), pgwire.NewErr(severity, code, message, nil))
	}

	s.frontend.Send(&pgproto3.ErrorResponse{
		Severity: string(severity),
		Code:     code,
		Message:  message,
		File:     file,
		Line:     int32(line),
		Hint:     "pgshuttle proxy error",
	})
	if err := s.frontend.Flush(); err != nil {
		s.logger.Error("error flushing to client", "error", err)
	}
}

// enableTracing enables pgproto3 protocol tracing if debug logging is enabled.
func (s *Session) enableTracing() {
	if s.logger.Enabled(s.ctx, slog.LevelDebug) {
		s.frontend.Trace(&slogTraceWriter{session: s}, pgproto3.TracerOptions{
			SuppressTimestamps: true,
		})
	}
}

// slogTraceWriter implements io.Writer to convert pgproto3 trace output to slog debug calls.
type slogTraceWriter struct {
	session *Session
	buf     bytes.Buffer
}

func (w *slogTraceWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	w.buf.Write(p)

	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			w.buf.Write(line)
			break
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		if len(line) > 0 {
			w.session.logger.Debug("pgproto3", "trace", string(line))
		}
	}

	return n, nil
}

// Frontend wraps pgproto3.Backend (which, despite the name, is the half
// of pgproto3 that plays the server role and receives FrontendMessages)
// so every Receive respects the session's context.
type Frontend struct {
	*pgproto3.Backend
	ctx context.Context
}

func (f *Frontend) Receive() (pgproto3.FrontendMessage, error) {
	if err := f.ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	msg, err := f.Backend.Receive()
	if err != nil {
		return nil, err
	}
	if err := f.ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	return msg, nil
}
