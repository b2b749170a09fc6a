// Package media abstracts the external media-room service. The session
// subsystem only needs to know who is currently in a room and whether one of
// the members is the automated moderator; everything else about the room
// (tracks, rendering, negotiation) lives outside this repository.
package media

import (
	"context"
	"sync"
)

// Participant is a current member of a media room. Agent is set explicitly
// by whoever registers the moderator; consumers must not re-derive it from
// identity or name text.
type Participant struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Agent    bool   `json:"agent"`
}

// Directory lists current members of a media room.
type Directory interface {
	ListParticipants(ctx context.Context, roomName string) ([]Participant, error)
}

// Registrar records room membership changes. The in-process Memory directory
// implements it; a deployment backed by a real room service does not need to.
type Registrar interface {
	Join(roomName string, p Participant)
	Leave(roomName, identity string)
}

// Memory is an in-process room directory. It stands in for the external room
// service in tests and in deployments that run without one: join calls
// register members, the agent simulator registers the moderator.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string][]Participant
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string][]Participant)}
}

func (m *Memory) ListParticipants(ctx context.Context, roomName string) ([]Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.rooms[roomName]
	out := make([]Participant, len(members))
	copy(out, members)
	return out, nil
}

// Join adds p to the room, replacing any existing member with the same
// identity.
func (m *Memory) Join(roomName string, p Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.rooms[roomName]
	for i, existing := range members {
		if existing.Identity == p.Identity {
			members[i] = p
			return
		}
	}
	m.rooms[roomName] = append(members, p)
}

// Leave removes the member with the given identity, if present.
func (m *Memory) Leave(roomName, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.rooms[roomName]
	for i, existing := range members {
		if existing.Identity == identity {
			m.rooms[roomName] = append(members[:i], members[i+1:]...)
			return
		}
	}
}
