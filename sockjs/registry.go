package sockjs

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// sessionRegistry owns the id -> session map. It is mutated by request
// goroutines and read by the shared scheduler; sessions carry their own
// atomic state so the registry never holds a lock while touching one.
type sessionRegistry struct {
	sessions sync.Map // session id -> *Session
}

func (r *sessionRegistry) get(id string) (*Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// getOrStore returns the existing session for id, or stores sess and
// returns it as new. A closed id is removed before reuse is possible,
// never resurrected.
func (r *sessionRegistry) getOrStore(id string, sess *Session) (*Session, bool) {
	v, loaded := r.sessions.LoadOrStore(id, sess)
	return v.(*Session), !loaded
}

func (r *sessionRegistry) remove(id string) {
	r.sessions.Delete(id)
}

func (r *sessionRegistry) len() int {
	n := 0
	r.sessions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// scheduler is the single periodic task shared by all sessions of one
// Handler. Each tick it emits due heartbeats and evicts sessions whose
// inactivity exceeds the disconnect delay. It never blocks a request
// goroutine and never closes a session while ranging the map.
type scheduler struct {
	registry  *sessionRegistry
	interval  time.Duration
	heartbeat time.Duration
	expiry    time.Duration
	logger    zerolog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func newScheduler(registry *sessionRegistry, opts *Options) *scheduler {
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &scheduler{
		registry:  registry,
		interval:  interval,
		heartbeat: opts.HeartbeatInterval,
		expiry:    opts.DisconnectDelay,
		logger:    opts.Logger,
		stopCh:    make(chan struct{}),
	}
}

func (sc *scheduler) run() {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			sc.tick(now)
		case <-sc.stopCh:
			return
		}
	}
}

func (sc *scheduler) stop() { sc.stopOnce.Do(func() { close(sc.stopCh) }) }

func (sc *scheduler) tick(now time.Time) {
	var expired []*Session
	sc.registry.sessions.Range(func(_, v interface{}) bool {
		sess := v.(*Session)
		sess.heartbeat(now, sc.heartbeat)
		// a session with an attached receiver is kept alive by its
		// heartbeat writes; only detached sessions idle out
		if !sess.hasReceiver() && sess.idleSince(now) > sc.expiry {
			expired = append(expired, sess)
		}
		return true
	})
	if len(expired) == 0 {
		return
	}
	// closing may invoke application callbacks and transport I/O, so it
	// happens after the Range, outside any registry critical section
	ids := make([]string, 0, len(expired))
	for _, sess := range expired {
		sess.closing(3000, "Go away!")
		sess.close()
		sc.registry.remove(sess.ID())
		ids = append(ids, sess.ID())
	}
	sc.logger.Info().
		Strs("sessions", ids).
		Dur("disconnect_delay", sc.expiry).
		Msg("evicted expired sessions")
}
