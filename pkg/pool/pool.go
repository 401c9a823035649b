package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/jackc/puddle/v2"

	"github.com/pgshuttle/pgshuttle/pkg/backend"
	"github.com/pgshuttle/pgshuttle/pkg/config"
	"github.com/pgshuttle/pgshuttle/pkg/pgwire"
)

// Key identifies one [target, role] pool entry: a database name paired
// with the role (primary/replica/custom) of the backend serving it, per
// SPEC_FULL §4.5.
type Key struct {
	Database string
	Role     string
}

func (k Key) String() string {
	if k.Role == "" {
		return k.Database
	}
	return k.Database + "/" + k.Role
}

// EvictReason records why a session left the pool, for logging and metrics.
type EvictReason string

const (
	EvictIdleTimeout    EvictReason = "idle_timeout"
	EvictMaxLifetime    EvictReason = "max_lifetime"
	EvictResetFailed    EvictReason = "reset_failed"
	EvictHealthCheck    EvictReason = "health_check_failed"
	EvictClosed         EvictReason = "pool_closed"
	EvictConnectionLost EvictReason = "connection_lost"
)

// target holds the per-[target,role] state: a Database dialer, a free
// list of idle sessions, and the pool policy from its BackendConfig.
type target struct {
	key Key
	db  *backend.Database
	cfg config.BackendConfig

	mu             sync.Mutex
	idle           *list.List // list of *idleEntry, front = most recently released
	permanent      map[*backend.Session]bool
	permanentCount int
	totalCreated   int32
}

type idleEntry struct {
	session   *backend.Session
	idleSince time.Time
	createdAt time.Time
}

// Pool manages backend.Session connections across every configured
// [target, role] entry, enforcing a single global connection ceiling
// (puddle's ticket resource) while giving each
// target its own free list, reset policy, and health checker.
type Pool struct {
	logger *slog.Logger

	tickets *puddle.Pool[struct{}]
	waiter  *fairWaiter[string]

	mu      sync.RWMutex
	targets map[Key]*target

	closeOnce sync.Once
	closeChan chan struct{}
}

// NewPool constructs a Pool from every server entry in cfg, dialing no
// connections eagerly — MinConnections are filled in by Start.
func NewPool(cfg *config.Config, secrets *config.SecretCache, logger *slog.Logger, maxConns int32) (*Pool, error) {
	tickets, err := puddle.NewPool(&puddle.Config[struct{}]{
		Constructor: func(ctx context.Context) (struct{}, error) { return struct{}{}, nil },
		Destructor:  func(struct{}) {},
		MaxSize:     maxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection ticket pool: %w", err)
	}

	p := &Pool{
		logger:    logger,
		tickets:   tickets,
		targets:   make(map[Key]*target),
		closeChan: make(chan struct{}),
	}

	keys := make([]string, 0, len(cfg.Servers))
	for _, server := range cfg.Servers {
		key := Key{Database: server.Database, Role: server.Role}
		t := &target{
			key:       key,
			db:        backend.NewDatabase(server, secrets, logger),
			cfg:       server.Backend,
			idle:      list.New(),
			permanent: make(map[*backend.Session]bool),
		}
		p.targets[key] = t
		keys = append(keys, key.String())
	}

	p.waiter = newFairWaiter[string](maxConns, keys)
	p.waiter.setStealFunc(p.tryStealIdle)

	return p, nil
}

// Start fills every target's MinConnections and launches the background
// health-check loop. Call once after NewPool.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.RLock()
	targets := make([]*target, 0, len(p.targets))
	for _, t := range p.targets {
		targets = append(targets, t)
	}
	p.mu.RUnlock()

	for _, t := range targets {
		if len(t.db.Users()) == 0 {
			continue
		}
		user := t.db.Users()[0]
		for i := int32(0); i < t.cfg.PoolMinConns; i++ {
			session, err := p.dial(ctx, t, user)
			if err != nil {
				return fmt.Errorf("failed to fill min connections for %s: %w", t.key, err)
			}
			t.mu.Lock()
			t.idle.PushFront(&idleEntry{session: session, idleSince: time.Now(), createdAt: time.Now()})
			t.mu.Unlock()
		}
	}

	go p.healthCheckLoop()
	return nil
}

// Checkout returns an idle session for key if one is available, reserving
// a new connection slot and dialing otherwise. At the global connection
// ceiling it blocks in the ticket pool until a ticket is released or ctx
// is done. Checkout never reserves slots in p.waiter, so waitForTurn does
// not queue callers round-robin, and no idle session of another target is
// closed to make room.
func (p *Pool) Checkout(ctx context.Context, key Key, user config.UserConfig) (*backend.Session, error) {
	t, err := p.targetFor(key)
	if err != nil {
		return nil, err
	}

	if session := t.popIdle(user); session != nil {
		if err := session.Acquire(); err != nil {
			_ = p.closeSession(t, session)
			return p.Checkout(ctx, key, user)
		}
		return session, nil
	}

	if err := p.waiter.waitForTurn(ctx, key.String()); err != nil {
		return nil, err
	}

	r, err := p.tickets.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve connection ticket: %w", err)
	}

	session, err := p.dial(ctx, t, user)
	if err != nil {
		r.Release()
		return nil, err
	}
	session.Ticket = r
	t.mu.Lock()
	t.totalCreated++
	t.mu.Unlock()

	if err := session.Acquire(); err != nil {
		_ = p.closeSession(t, session)
		return nil, err
	}
	return session, nil
}

// Checkin returns session to its target's idle list after verifying it is
// safe to reuse: idle transaction status, no pending Syncs, and no live
// prepared statements/portals left over from the previous client. A dirty
// session is reset with the target's ResetQuery before becoming visible
// again; if the reset fails the session is evicted instead.
func (p *Pool) Checkin(ctx context.Context, key Key, session *backend.Session) {
	t, err := p.targetFor(key)
	if err != nil {
		session.Release()
		if session.Ticket != nil {
			session.Ticket.Release()
		}
		_ = session.Conn.Close(ctx)
		return
	}

	session.Release()

	if t.permanent[session] {
		return
	}

	if dirty(session) {
		if err := session.Acquire(); err != nil {
			p.evictLocked(t, session, EvictResetFailed)
			return
		}
		if err := session.WriteMsg(&pgproto3.Query{String: t.cfg.GetResetQuery()}); err != nil {
			p.evictLocked(t, session, EvictResetFailed)
			return
		}
		if err := drainUntilReady(session); err != nil {
			p.evictLocked(t, session, EvictResetFailed)
			return
		}
		session.Release()
	}

	t.mu.Lock()
	t.idle.PushFront(&idleEntry{session: session, idleSince: time.Now()})
	t.mu.Unlock()

	p.waiter.signalNextWaiter()
}

// CheckoutReplication acquires a session for streaming replication and
// marks it permanently checked out: it is excluded from MaxConnections
// accounting and never returned by Checkout/health-check sweeps, per
// SPEC_FULL §4.5.
func (p *Pool) CheckoutReplication(ctx context.Context, key Key, user config.UserConfig) (*backend.Session, error) {
	t, err := p.targetFor(key)
	if err != nil {
		return nil, err
	}
	session, err := p.dial(ctx, t, user)
	if err != nil {
		return nil, err
	}
	if err := session.Acquire(); err != nil {
		_ = session.Conn.Close(ctx)
		return nil, err
	}

	t.mu.Lock()
	t.permanent[session] = true
	t.permanentCount++
	t.mu.Unlock()
	return session, nil
}

// Evict removes session from its target and closes the underlying
// connection, releasing its ticket (if any) back to the pool.
func (p *Pool) Evict(key Key, session *backend.Session, reason EvictReason) {
	t, err := p.targetFor(key)
	if err != nil {
		return
	}
	t.mu.Lock()
	p.evictLocked(t, session, reason)
	t.mu.Unlock()
}

// evictLocked must be called with t.mu held, or from a context where no
// other goroutine can observe session in t.idle/t.permanent concurrently.
func (p *Pool) evictLocked(t *target, session *backend.Session, reason EvictReason) {
	if _, ok := t.permanent[session]; ok {
		delete(t.permanent, session)
		t.permanentCount--
	}
	_ = p.closeSession(t, session)
	p.logger.Info("evicted backend session", "target", t.key, "session", session.String(), "reason", reason)
}

func (p *Pool) closeSession(t *target, session *backend.Session) error {
	session.Release()
	if session.Ticket != nil {
		session.Ticket.Release()
		session.Ticket = nil
	}
	p.waiter.signalNextWaiter()
	return session.Conn.Close(context.Background())
}

func (p *Pool) targetFor(key Key) (*target, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.targets[key]
	if !ok {
		return nil, fmt.Errorf("pool: unknown target %s", key)
	}
	return t, nil
}

func (t *target) popIdle(user config.UserConfig) *backend.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	for e := t.idle.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*idleEntry)
		if entry.session.User == user {
			t.idle.Remove(e)
			return entry.session
		}
	}
	return nil
}

// dial reserves a ticket-free connection by calling the target's Database
// dialer directly; the caller is responsible for ticket bookkeeping.
func (p *Pool) dial(ctx context.Context, t *target, user config.UserConfig) (*backend.Session, error) {
	dialCtx := ctx
	if t.cfg.ConnectTimeout != nil {
		if secs, err := time.ParseDuration(*t.cfg.ConnectTimeout + "s"); err == nil {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, secs)
			defer cancel()
		}
	}
	return t.db.Dial(dialCtx, user)
}

// tryStealIdle closes one idle session belonging to a target other than
// exclude, freeing a ticket for the caller's target. Returns true on
// success, mirroring the teacher's cross-pool connection stealing.
func (p *Pool) tryStealIdle(exclude string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for key, t := range p.targets {
		if key.String() == exclude {
			continue
		}
		t.mu.Lock()
		if t.idle.Len() > 0 {
			e := t.idle.Back()
			entry := e.Value.(*idleEntry)
			t.idle.Remove(e)
			t.mu.Unlock()
			_ = p.closeSession(t, entry.session)
			return true
		}
		t.mu.Unlock()
	}
	return false
}

// healthCheckLoop periodically pings the oldest idle session of every
// target with SELECT 1, evicting any that fail to respond.
func (p *Pool) healthCheckLoop() {
	ticker := time.NewTicker(healthCheckInterval(p))
	defer ticker.Stop()
	for {
		select {
		case <-p.closeChan:
			return
		case <-ticker.C:
			p.runHealthChecks()
		}
	}
}

func healthCheckInterval(p *Pool) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.targets {
		if t.cfg.PoolHealthCheckPeriod != nil {
			if d, err := time.ParseDuration(*t.cfg.PoolHealthCheckPeriod); err == nil {
				return d
			}
		}
	}
	return 30 * time.Second
}

func (p *Pool) runHealthChecks() {
	p.mu.RLock()
	targets := make([]*target, 0, len(p.targets))
	for _, t := range p.targets {
		targets = append(targets, t)
	}
	p.mu.RUnlock()

	for _, t := range targets {
		t.mu.Lock()
		var oldest *list.Element
		var oldestTime time.Time
		for e := t.idle.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*idleEntry)
			if oldest == nil || entry.idleSince.Before(oldestTime) {
				oldest = e
				oldestTime = entry.idleSince
			}
		}
		if oldest == nil {
			t.mu.Unlock()
			continue
		}
		entry := oldest.Value.(*idleEntry)
		t.idle.Remove(oldest)
		t.mu.Unlock()

		if err := pingSession(entry.session); err != nil {
			p.logger.Warn("health check failed", "target", t.key, "error", err)
			t.mu.Lock()
			p.evictLocked(t, entry.session, EvictHealthCheck)
			t.mu.Unlock()
			continue
		}

		entry.idleSince = time.Now()
		t.mu.Lock()
		t.idle.PushFront(entry)
		t.mu.Unlock()
	}
}

func pingSession(session *backend.Session) error {
	if err := session.Acquire(); err != nil {
		return err
	}
	defer session.Release()
	if err := session.WriteMsg(&pgproto3.Query{String: "SELECT 1"}); err != nil {
		return err
	}
	return drainUntilReady(session)
}

// drainUntilReady reads backend messages from an acquired session until a
// ReadyForQuery is seen, returning the first error encountered (including
// an ErrorResponse, surfaced as an error so the caller evicts).
func drainUntilReady(session *backend.Session) error {
	ch := session.Recv()
	timeout := time.NewTimer(5 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case result, ok := <-ch:
			if !ok {
				return errors.New("pool: backend reader closed during drain")
			}
			if result.Error != nil {
				return result.Error
			}
			switch m := result.Value.(type) {
			case *pgproto3.ErrorResponse:
				return fmt.Errorf("pool: reset query failed: %s", m.Message)
			case *pgproto3.ReadyForQuery:
				return nil
			}
		case <-timeout.C:
			return errors.New("pool: timed out draining reset query response")
		}
	}
}

// dirty reports whether session must be reset before returning to the
// idle list: mid-transaction, Syncs outstanding, or prepared
// statements/portals the next client did not ask for.
func dirty(session *backend.Session) bool {
	s := session.State
	if s.TxStatus != pgwire.TxIdle {
		return true
	}
	if s.SyncsInFlight != 0 {
		return true
	}
	if s.InTxOrQuery() {
		return true
	}
	if len(s.Statements.Alive) > 0 || len(s.Portals.Alive) > 0 {
		return true
	}
	return false
}

// Close shuts down the pool, closing every idle and permanently-checked-out
// session and releasing all tickets.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closeChan)
		p.mu.RLock()
		defer p.mu.RUnlock()
		for _, t := range p.targets {
			t.mu.Lock()
			for e := t.idle.Front(); e != nil; e = e.Next() {
				entry := e.Value.(*idleEntry)
				_ = p.closeSession(t, entry.session)
			}
			t.idle.Init()
			for session := range t.permanent {
				_ = session.Conn.Close(context.Background())
			}
			t.mu.Unlock()
		}
		p.tickets.Close()
	})
}

// Stats reports pool occupancy for a single target, for metrics export.
type Stats struct {
	Key            Key
	Idle           int
	Permanent      int
	TotalCreated   int32
	GlobalDBConns  int32
	GlobalMaxConns int32
}

// StatsFor returns current occupancy for key.
func (p *Pool) StatsFor(key Key) (Stats, error) {
	t, err := p.targetFor(key)
	if err != nil {
		return Stats{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Key:            key,
		Idle:           t.idle.Len(),
		Permanent:      t.permanentCount,
		TotalCreated:   t.totalCreated,
		GlobalDBConns:  p.waiter.currentDBConns(),
		GlobalMaxConns: p.waiter.maxConns,
	}, nil
}
