package frontend

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
)

// cancelRegistry tracks live sessions by their synthesized backend PID so a
// CancelRequest arriving on a fresh connection (per the wire protocol, a
// cancel is never sent on the session it targets) can be matched back to
// the session's currently-checked-out backend connection and forwarded.
type cancelRegistry struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{sessions: make(map[uint32]*Session)}
}

func (r *cancelRegistry) register(s *Session) {
	r.mu.Lock()
	r.sessions[s.state.PID] = s
	r.mu.Unlock()
}

func (r *cancelRegistry) unregister(s *Session) {
	r.mu.Lock()
	if r.sessions[s.state.PID] == s {
		delete(r.sessions, s.state.PID)
	}
	r.mu.Unlock()
}

// cancel looks up the session owning pid and, if secretKey matches the key
// it handed out in BackendKeyData, asks its currently-checked-out backend
// connection to cancel whatever it is running. A mismatched secret key or
// an idle session (nothing to cancel) are both silently ignored, matching
// real PostgreSQL's refusal to acknowledge cancel requests either way.
func (r *cancelRegistry) cancel(ctx context.Context, pid uint32, secretKey []byte) error {
	r.mu.RLock()
	s, ok := r.sessions[pid]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	expected := make([]byte, 4)
	binary.BigEndian.PutUint32(expected, s.state.SecretCancelKey)
	backendSession := s.backendSession
	s.mu.Unlock()

	if !constantTimeCompare(secretKey, expected) {
		return nil
	}
	if backendSession == nil {
		return nil
	}

	if err := backendSession.Conn.CancelRequest(ctx); err != nil {
		return fmt.Errorf("failed to forward cancel request: %w", err)
	}
	return nil
}
