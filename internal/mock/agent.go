// Package mock simulates the external moderator agent for local development
// and demos. The real agent runtime dispatches into the media room on its
// own; with -mock, a fake agent attaches to each started session's room
// after a short delay so the agent-joined flow can be exercised end to end
// without LiveKit.
package mock

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/leverai/focusgroup/internal/media"
	"github.com/leverai/focusgroup/internal/session"
)

const DefaultJoinDelay = 2 * time.Second

type AgentSimulator struct {
	store     *session.Store
	rooms     *media.Memory
	joinDelay time.Duration
	interval  time.Duration

	mu      sync.Mutex
	seen    map[string]time.Time // session id -> first observed in_session
	joined  map[string]string    // session id -> simulated agent identity
	nextSeq int
}

func NewAgentSimulator(store *session.Store, rooms *media.Memory, joinDelay time.Duration) *AgentSimulator {
	if joinDelay < 0 {
		joinDelay = DefaultJoinDelay
	}
	return &AgentSimulator{
		store:     store,
		rooms:     rooms,
		joinDelay: joinDelay,
		interval:  500 * time.Millisecond,
		seen:      make(map[string]time.Time),
		joined:    make(map[string]string),
	}
}

func (g *AgentSimulator) Start(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	log.Printf("Agent simulator started: join_delay=%s", g.joinDelay)

	for {
		select {
		case <-ctx.Done():
			log.Println("Agent simulator stopped")
			return
		case <-ticker.C:
			g.sweep(time.Now())
		}
	}
}

// sweep walks the registry once: attach the fake agent to rooms of sessions
// that have been in_session for at least joinDelay, detach it from ended
// ones.
func (g *AgentSimulator) sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, rec := range g.store.All() {
		switch rec.Status {
		case session.InSession:
			if _, ok := g.joined[rec.ID]; ok {
				continue
			}
			first, ok := g.seen[rec.ID]
			if !ok {
				g.seen[rec.ID] = now
				continue
			}
			if now.Sub(first) < g.joinDelay {
				continue
			}
			g.nextSeq++
			identity := fmt.Sprintf("agent-moderator-%d", g.nextSeq)
			g.rooms.Join(rec.RoomName, media.Participant{
				Identity: identity,
				Name:     "AI Moderator",
				Agent:    true,
			})
			g.joined[rec.ID] = identity
			log.Printf("Simulated agent joined: session=%s room=%s identity=%s", rec.ID, rec.RoomName, identity)

		case session.Ended:
			if identity, ok := g.joined[rec.ID]; ok {
				g.rooms.Leave(rec.RoomName, identity)
				delete(g.joined, rec.ID)
				log.Printf("Simulated agent left: session=%s room=%s identity=%s", rec.ID, rec.RoomName, identity)
			}
			delete(g.seen, rec.ID)
		}
	}
}
