package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ReconcilerState is the lifecycle of a polling reconciler.
type ReconcilerState int

const (
	// Idle: constructed, not yet started.
	Idle ReconcilerState = iota
	// Polling: a session is active and status reads are scheduled.
	Polling
	// Stopped: cancelled, session lost, or terminally ended. Final.
	Stopped
)

// StatusReader is the single read the reconciler needs. *Client satisfies
// it; tests substitute a fake.
type StatusReader interface {
	Status(ctx context.Context, sessionID string) (*StatusInfo, error)
}

const (
	DefaultPollInterval = 2 * time.Second
	DefaultEndedGrace   = 10 * time.Second
)

// ReconcilerConfig carries tuning and notification callbacks. All callbacks
// are optional and are invoked from the reconciler's own goroutines; none
// fire after the reconciler has stopped.
type ReconcilerConfig struct {
	// Interval between status reads. A design parameter, not a correctness
	// requirement; tests shrink it for determinism.
	Interval time.Duration
	// EndedGrace is how long to keep polling after status is first observed
	// as ended. Ended is terminal, so there is nothing to watch afterwards.
	EndedGrace time.Duration
	// InitialStatus seeds the status cache so the first read does not fire a
	// spurious change notification. Defaults to "waiting".
	InitialStatus string

	// OnStatusChange fires once per observed status edge, never on repeats.
	OnStatusChange func(previous, current string)
	// OnAgentJoined fires on each false-to-true edge of agent presence.
	OnAgentJoined func(identity string)
	// OnSessionLost fires exactly once when the service reports the session
	// gone; the reconciler stops itself first.
	OnSessionLost func(err error)
	// OnPollError fires on transient failures. Polling continues; a network
	// hiccup must not evict a user from a live session. Defaults to logging.
	OnPollError func(err error)
}

// Reconciler keeps a remote participant's cached view of one session
// consistent with the server by polling the status endpoint and emitting
// edge-triggered notifications. One instance runs per active session; at
// most one status read is in flight at a time (busy ticks are skipped, not
// queued).
type Reconciler struct {
	reader    StatusReader
	sessionID string
	cfg       ReconcilerConfig

	mu            sync.Mutex
	state         ReconcilerState
	inFlight      bool
	lastStatus    string
	agentJoined   bool
	agentIdentity string
	endedSeen     time.Time
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewReconciler(reader StatusReader, sessionID string, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.EndedGrace <= 0 {
		cfg.EndedGrace = DefaultEndedGrace
	}
	if cfg.InitialStatus == "" {
		cfg.InitialStatus = StatusWaiting
	}
	return &Reconciler{
		reader:     reader,
		sessionID:  sessionID,
		cfg:        cfg,
		state:      Idle,
		lastStatus: cfg.InitialStatus,
		done:       make(chan struct{}),
	}
}

// Start begins polling. It is a no-op unless the reconciler is Idle. The
// loop exits when ctx is cancelled, Stop is called, the session is lost, or
// the ended grace period elapses.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.state != Idle {
		r.mu.Unlock()
		return
	}
	r.state = Polling
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go r.run(ctx)
}

// Stop cancels polling and waits for the loop to exit. Safe to call from any
// exit path, repeatedly.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.state == Idle {
		r.state = Stopped
		r.mu.Unlock()
		return
	}
	r.state = Stopped
	cancel := r.cancel
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-r.done
}

func (r *Reconciler) State() ReconcilerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastStatus returns the most recently cached session status.
func (r *Reconciler) LastStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStatus
}

// AgentIdentity returns the moderator identity once observed; it is retained
// even if later status reads omit it.
func (r *Reconciler) AgentIdentity() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agentIdentity
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			if r.state == Polling {
				r.state = Stopped
			}
			r.mu.Unlock()
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick launches a status read unless one is already outstanding. The read
// runs on its own goroutine so a slow response never delays the schedule;
// overlapping ticks are skipped, bounding concurrent requests at one.
func (r *Reconciler) tick(ctx context.Context) {
	r.mu.Lock()
	if r.state != Polling || r.inFlight {
		r.mu.Unlock()
		return
	}
	r.inFlight = true
	r.mu.Unlock()

	go r.poll(ctx)
}

func (r *Reconciler) poll(ctx context.Context) {
	st, err := r.reader.Status(ctx, r.sessionID)

	r.mu.Lock()
	r.inFlight = false
	if r.state != Polling {
		// Stopped while the read was in flight; no callbacks.
		r.mu.Unlock()
		return
	}

	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// The server lost the record (restart, stale id). This is the
			// authoritative termination path: stop and tell the owner once.
			r.state = Stopped
			cancel := r.cancel
			lost := r.cfg.OnSessionLost
			r.mu.Unlock()
			cancel()
			if lost != nil {
				lost(err)
			}
			return
		}
		onErr := r.cfg.OnPollError
		r.mu.Unlock()
		if onErr != nil {
			onErr(err)
		} else {
			log.Printf("Status poll failed: session=%s err=%v", r.sessionID, err)
		}
		return
	}

	var notifications []func()

	if st.Status != r.lastStatus {
		previous, current := r.lastStatus, st.Status
		r.lastStatus = current
		if cb := r.cfg.OnStatusChange; cb != nil {
			notifications = append(notifications, func() { cb(previous, current) })
		}
	}

	if st.AgentJoined && !r.agentJoined {
		identity := st.AgentIdentity
		if identity == "" {
			identity = r.agentIdentity
		}
		if cb := r.cfg.OnAgentJoined; cb != nil {
			notifications = append(notifications, func() { cb(identity) })
		}
	}
	r.agentJoined = st.AgentJoined
	if st.AgentIdentity != "" {
		r.agentIdentity = st.AgentIdentity
	}

	var cancel context.CancelFunc
	if st.Status == StatusEnded {
		now := time.Now()
		if r.endedSeen.IsZero() {
			r.endedSeen = now
		} else if now.Sub(r.endedSeen) >= r.cfg.EndedGrace {
			r.state = Stopped
			cancel = r.cancel
		}
	} else {
		r.endedSeen = time.Time{}
	}
	r.mu.Unlock()

	for _, notify := range notifications {
		notify()
	}
	if cancel != nil {
		cancel()
	}
}
