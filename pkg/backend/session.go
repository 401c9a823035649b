package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/jackc/puddle/v2"
	"github.com/pgshuttle/pgshuttle/pkg/config"
	"github.com/pgshuttle/pgshuttle/pkg/pgwire"
)

const SessionExtraDataKey = "pgwire_session"

// Session with the backend.
// Each PgConn in our connection pool gets its own Session once we acquire it
// the first time.
type Session struct {
	DB                *Database
	Conn              *pgconn.PgConn
	User              config.UserConfig
	UserName          string
	State             pgwire.ProtocolState
	TrackedParameters []string

	// Ticket holds the global connection-ticket resource pkg/pool reserved
	// for this session, released back to the pool's ceiling when the
	// underlying connection is closed. nil for permanently-checked-out
	// replication sessions, which are excluded from that ceiling.
	Ticket *puddle.Resource[struct{}]

	logger *slog.Logger

	// reader delivers decoded backend messages in the background while the
	// session is acquired. Only valid between Acquire and Release.
	reader <-chan BufferedReadResult[pgproto3.BackendMessage]
	stop   func()
}

func GetSession(conn *pgconn.PgConn) *Session {
	custonData := conn.CustomData()
	if existingUntyped, ok := custonData[SessionExtraDataKey]; ok {
		return existingUntyped.(*Session)
	}
	return nil
}

func GetOrCreateSession(conn *pgconn.PgConn, db *Database, user config.UserConfig) (*Session, error) {
	if existing := GetSession(conn); existing != nil {
		if existing.DB == db && existing.User == user {
			return existing, nil
		} else {
			return nil, fmt.Errorf("backend session mismatch: existing (db %p, user %v) != new (db %p, user %v)", existing.DB, existing.User, db, user)
		}
	}

	tracked := pgwire.BaseTrackedParameters
	if len(db.config.TrackExtraParameters) > 0 {
		tracked = make([]string, 0, len(pgwire.BaseTrackedParameters)+len(db.config.TrackExtraParameters))
		tracked = append(tracked, pgwire.BaseTrackedParameters...)
		tracked = append(tracked, db.config.TrackExtraParameters...)
	}

	username := conn.ParameterStatus(pgwire.ParamUser)
	if username == "" {
		// TODO: this seems silly
		getNameCtx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()
		var err error
		username, err = db.secrets.Get(getNameCtx, user.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to get username: %w", err)
		}
	}

	state := pgwire.NewProtocolState()
	state.PID = conn.PID()
	state.SecretCancelKey = conn.SecretKey()
	state.TxStatus = pgwire.TxStatus(conn.TxStatus())

	session := &Session{
		DB:                db,
		Conn:              conn,
		UserName:          username,
		User:              user,
		State:             state,
		TrackedParameters: tracked,
	}
	session.updateState()
	session.logger = db.logger.With("session", session.String())

	conn.CustomData()[SessionExtraDataKey] = session
	return session, nil
}

func (s *Session) String() string {
	return fmt.Sprintf("%s@%s?pid=%d", s.UserName, s.DB.Name(), s.Conn.PID())
}

func (s *Session) ParameterStatusChanges(keys []string, since pgwire.ParameterStatuses) pgwire.ParameterStatusDiff {
	return since.DiffToTip(s.updateParameterStatuses(keys))
}

// Acquire starts the background reader that decodes backend messages off
// the wire as they arrive, so the session loop can select between the
// backend's reader channel and the client's without blocking on either.
func (s *Session) Acquire() error {
	if s.reader != nil {
		return fmt.Errorf("session already acquired")
	}
	s.updateParameterStatuses(s.TrackedParameters)
	s.State.TxStatus = pgwire.TxStatus(s.Conn.TxStatus())

	reader := NewBufferedReader(func(ctx context.Context) (*pgproto3.BackendMessage, error) {
		msg, err := s.Conn.Frontend().Receive()
		if err != nil {
			return nil, err
		}
		return &msg, nil
	})
	s.reader = reader.Start()
	s.stop = reader.Stop

	return nil
}

// Release stops the background reader. The connection itself is returned
// to the pool by the caller.
func (s *Session) Release() {
	if s.stop != nil {
		s.stop()
		s.reader = nil
		s.stop = nil
	}
}

// Recv returns the channel of decoded backend messages for an acquired
// session. Only valid between Acquire and Release.
func (s *Session) Recv() <-chan BufferedReadResult[pgproto3.BackendMessage] {
	return s.reader
}

func (s *Session) WriteMsg(msg pgproto3.FrontendMessage) error {
	s.Conn.Frontend().Send(msg)
	return s.Conn.Frontend().Flush()
}

func (s *Session) Flush() error {
	return s.Conn.Frontend().Flush()
}

func (s *Session) updateParameterStatuses(keys []string) pgwire.ParameterStatuses {
	parameterStatuses := s.State.ParameterStatuses
	for _, key := range keys {
		value := s.Conn.ParameterStatus(key)
		if value == "" {
			delete(s.State.ParameterStatuses, key)
		} else {
			parameterStatuses[key] = value
		}
	}
	return parameterStatuses
}

func (s *Session) updateState() {
	s.updateParameterStatuses(s.TrackedParameters)
	s.State.TxStatus = pgwire.TxStatus(s.Conn.TxStatus())
}
