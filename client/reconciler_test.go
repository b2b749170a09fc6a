package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// scriptedReader replays a fixed sequence of status responses; the final
// step repeats once the script is exhausted.
type scriptedReader struct {
	mu    sync.Mutex
	steps []scriptStep
	calls int
}

type scriptStep struct {
	info *StatusInfo
	err  error
}

func statusStep(status string) scriptStep {
	return scriptStep{info: &StatusInfo{SessionID: "s1", Status: status}}
}

func agentStep(status string, joined bool, identity string) scriptStep {
	return scriptStep{info: &StatusInfo{SessionID: "s1", Status: status, AgentJoined: joined, AgentIdentity: identity}}
}

func (f *scriptedReader) Status(ctx context.Context, sessionID string) (*StatusInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	f.calls++
	step := f.steps[idx]
	if step.err != nil {
		return nil, step.err
	}
	info := *step.info
	return &info, nil
}

func (f *scriptedReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// notifyLog records callback invocations for assertion.
type notifyLog struct {
	mu            sync.Mutex
	statusChanges []string
	agentJoins    []string
	lost          int
	pollErrs      int
}

func (n *notifyLog) config() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:   2 * time.Millisecond,
		EndedGrace: time.Hour,
		OnStatusChange: func(previous, current string) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.statusChanges = append(n.statusChanges, previous+"->"+current)
		},
		OnAgentJoined: func(identity string) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.agentJoins = append(n.agentJoins, identity)
		},
		OnSessionLost: func(err error) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.lost++
		},
		OnPollError: func(err error) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.pollErrs++
		},
	}
}

func (n *notifyLog) snapshot() (changes []string, joins []string, lost, pollErrs int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.statusChanges...), append([]string(nil), n.agentJoins...), n.lost, n.pollErrs
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestStatusChangeIsEdgeTriggered(t *testing.T) {
	reader := &scriptedReader{steps: []scriptStep{
		statusStep(StatusWaiting),
		statusStep(StatusWaiting),
		statusStep(StatusInSession),
		statusStep(StatusInSession),
		statusStep(StatusEnded),
	}}
	notes := &notifyLog{}

	r := NewReconciler(reader, "s1", notes.config())
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool { return reader.callCount() >= 7 })
	r.Stop()

	changes, _, lost, _ := notes.snapshot()
	want := []string{"waiting->in_session", "in_session->ended"}
	if len(changes) != len(want) {
		t.Fatalf("status changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %q, want %q", i, changes[i], want[i])
		}
	}
	if lost != 0 {
		t.Errorf("session-lost fired %d times, want 0", lost)
	}
}

func TestAgentJoinedEdge(t *testing.T) {
	reader := &scriptedReader{steps: []scriptStep{
		agentStep(StatusInSession, false, ""),
		agentStep(StatusInSession, true, "agent-moderator-3"),
		agentStep(StatusInSession, true, "agent-moderator-3"),
		// Identity omitted on later reads stays retained.
		agentStep(StatusInSession, true, ""),
	}}
	notes := &notifyLog{}
	cfg := notes.config()
	cfg.InitialStatus = StatusInSession

	r := NewReconciler(reader, "s1", cfg)
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool { return reader.callCount() >= 6 })
	r.Stop()

	_, joins, _, _ := notes.snapshot()
	if len(joins) != 1 {
		t.Fatalf("agent-joined fired %d times, want 1: %v", len(joins), joins)
	}
	if joins[0] != "agent-moderator-3" {
		t.Errorf("agent identity = %q, want agent-moderator-3", joins[0])
	}
	if got := r.AgentIdentity(); got != "agent-moderator-3" {
		t.Errorf("retained identity = %q, want agent-moderator-3", got)
	}
}

func TestAgentRejoinFiresAgain(t *testing.T) {
	reader := &scriptedReader{steps: []scriptStep{
		agentStep(StatusInSession, true, "agent-moderator-1"),
		agentStep(StatusInSession, false, ""),
		agentStep(StatusInSession, true, "agent-moderator-2"),
	}}
	notes := &notifyLog{}
	cfg := notes.config()
	cfg.InitialStatus = StatusInSession

	r := NewReconciler(reader, "s1", cfg)
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool { return reader.callCount() >= 4 })
	r.Stop()

	_, joins, _, _ := notes.snapshot()
	if len(joins) != 2 {
		t.Fatalf("agent-joined fired %d times, want 2 (join, rejoin): %v", len(joins), joins)
	}
}

func TestSessionLostStopsPolling(t *testing.T) {
	notFound := fmt.Errorf("GET /api/sessions/s1/status: %w", ErrSessionNotFound)
	reader := &scriptedReader{steps: []scriptStep{
		statusStep(StatusWaiting),
		{err: notFound},
	}}
	notes := &notifyLog{}

	r := NewReconciler(reader, "s1", notes.config())
	r.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool { return r.State() == Stopped })

	callsAtStop := reader.callCount()
	time.Sleep(20 * time.Millisecond)
	if got := reader.callCount(); got != callsAtStop {
		t.Errorf("polling continued after session lost: %d -> %d calls", callsAtStop, got)
	}

	_, _, lost, _ := notes.snapshot()
	if lost != 1 {
		t.Errorf("session-lost fired %d times, want exactly 1", lost)
	}

	// Stop after self-stop is safe.
	r.Stop()
}

func TestTransientErrorKeepsPolling(t *testing.T) {
	reader := &scriptedReader{steps: []scriptStep{
		statusStep(StatusWaiting),
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		statusStep(StatusInSession),
	}}
	notes := &notifyLog{}

	r := NewReconciler(reader, "s1", notes.config())
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool {
		changes, _, _, _ := notes.snapshot()
		return len(changes) > 0
	})
	r.Stop()

	changes, _, lost, pollErrs := notes.snapshot()
	if changes[0] != "waiting->in_session" {
		t.Errorf("change = %q, want waiting->in_session after transient errors", changes[0])
	}
	if pollErrs < 2 {
		t.Errorf("poll errors reported = %d, want >= 2", pollErrs)
	}
	if lost != 0 {
		t.Errorf("transient errors fired session-lost %d times, want 0", lost)
	}
}

func TestNoOverlappingReads(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	active, maxActive, calls := 0, 0, 0

	reader := statusFunc(func(ctx context.Context, sessionID string) (*StatusInfo, error) {
		mu.Lock()
		active++
		calls++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		<-block
		mu.Lock()
		active--
		mu.Unlock()
		return &StatusInfo{SessionID: sessionID, Status: StatusWaiting}, nil
	})

	r := NewReconciler(reader, "s1", ReconcilerConfig{Interval: time.Millisecond, EndedGrace: time.Hour})
	r.Start(context.Background())

	// Many ticks elapse while the first read is stuck in flight.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	callsWhileBlocked := calls
	mu.Unlock()

	close(block)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Errorf("max concurrent reads = %d, want 1", maxActive)
	}
	if callsWhileBlocked != 1 {
		t.Errorf("reads issued while blocked = %d, want 1 (busy ticks skipped)", callsWhileBlocked)
	}
}

type statusFunc func(ctx context.Context, sessionID string) (*StatusInfo, error)

func (f statusFunc) Status(ctx context.Context, sessionID string) (*StatusInfo, error) {
	return f(ctx, sessionID)
}

func TestStopsAfterEndedGrace(t *testing.T) {
	reader := &scriptedReader{steps: []scriptStep{statusStep(StatusEnded)}}
	notes := &notifyLog{}
	cfg := notes.config()
	cfg.EndedGrace = 5 * time.Millisecond

	r := NewReconciler(reader, "s1", cfg)
	r.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool { return r.State() == Stopped })

	_, _, lost, _ := notes.snapshot()
	if lost != 0 {
		t.Errorf("ended session fired session-lost %d times, want 0", lost)
	}
	if got := r.LastStatus(); got != StatusEnded {
		t.Errorf("cached status = %q, want ended", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	reader := &scriptedReader{steps: []scriptStep{statusStep(StatusWaiting)}}

	r := NewReconciler(reader, "s1", ReconcilerConfig{Interval: time.Millisecond})
	r.Start(context.Background())
	r.Stop()
	r.Stop()

	if r.State() != Stopped {
		t.Errorf("state = %v, want Stopped", r.State())
	}

	callsAtStop := reader.callCount()
	time.Sleep(10 * time.Millisecond)
	if got := reader.callCount(); got != callsAtStop {
		t.Errorf("ticks continued after Stop: %d -> %d calls", callsAtStop, got)
	}
}

func TestStopBeforeStart(t *testing.T) {
	r := NewReconciler(&scriptedReader{steps: []scriptStep{statusStep(StatusWaiting)}}, "s1", ReconcilerConfig{})
	r.Stop()
	r.Stop()
	if r.State() != Stopped {
		t.Errorf("state = %v, want Stopped", r.State())
	}

	// Start after Stop stays stopped.
	r.Start(context.Background())
	if r.State() != Stopped {
		t.Errorf("Start revived a stopped reconciler")
	}
}

func TestContextCancelStops(t *testing.T) {
	reader := &scriptedReader{steps: []scriptStep{statusStep(StatusWaiting)}}
	ctx, cancel := context.WithCancel(context.Background())

	r := NewReconciler(reader, "s1", ReconcilerConfig{Interval: time.Millisecond})
	r.Start(ctx)

	waitFor(t, 2*time.Second, func() bool { return reader.callCount() >= 2 })
	cancel()

	waitFor(t, 2*time.Second, func() bool { return r.State() == Stopped })
}
