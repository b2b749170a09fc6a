package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// entry pairs a record with its own mutex so that operations on one session
// never block operations on another. The store's outer lock guards only the
// map itself.
type entry struct {
	mu             sync.Mutex
	rec            Record
	organizerSeq   int
	participantSeq int
}

// Store owns the registry of session records. It is the only mutator of
// session state. Records are never removed; a missing id means the caller
// holds a stale reference from before a process restart.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// lookup returns the live entry for id. Callers must take the entry mutex
// before touching the record.
func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Create registers a new session in the waiting state and returns a copy of
// the record. An empty roomName gets a generated focusgroup-<ts>-<shortid>
// name, matching what organizers see in the media room.
func (s *Store) Create(roomName string) *Record {
	id := uuid.NewString()
	now := s.now().UTC()
	if roomName == "" {
		roomName = fmt.Sprintf("focusgroup-%s-%s", now.Format("20060102150405"), id[:8])
	}

	e := &entry{
		rec: Record{
			ID:        id,
			RoomName:  roomName,
			Status:    Waiting,
			CreatedAt: now,
		},
	}

	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()

	return e.rec.Clone()
}

// Get returns a copy of the record, or false if the id is unknown.
func (s *Store) Get(id string) (*Record, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), true
}

// All returns copies of every record in the registry.
func (s *Store) All() []*Record {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	result := make([]*Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		result = append(result, e.rec.Clone())
		e.mu.Unlock()
	}
	return result
}

// Count returns the number of records in the registry.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Transition moves the session status forward to target (InSession or
// Ended). The transition is monotonic and idempotent: a target at or behind
// the current status is a no-op that returns the current record, never an
// error. Returns false only when the id is unknown.
func (s *Store) Transition(id string, target Status) (*Record, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if target > e.rec.Status {
		now := s.now().UTC()
		e.rec.Status = target
		switch target {
		case InSession:
			e.rec.StartedAt = &now
		case Ended:
			e.rec.EndedAt = &now
		}
	}
	return e.rec.Clone(), true
}

// AddParticipant admits a caller to the session and assigns a role-qualified
// identity (organizer_N or participant_N). Organizer and participant
// counters are disjoint, so the two label spaces never collide.
func (s *Store) AddParticipant(id, displayName, email string, isOrganizer bool) (Participant, *Record, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return Participant{}, nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var identity string
	if isOrganizer {
		e.organizerSeq++
		identity = fmt.Sprintf("organizer_%d", e.organizerSeq)
	} else {
		e.participantSeq++
		identity = fmt.Sprintf("participant_%d", e.participantSeq)
	}

	p := Participant{
		Identity:    identity,
		DisplayName: displayName,
		Email:       email,
		IsOrganizer: isOrganizer,
		JoinedAt:    s.now().UTC(),
	}
	e.rec.Participants = append(e.rec.Participants, p)

	return p, e.rec.Clone(), true
}

// AppendEvent appends a raise-hand event and returns its 1-based queue
// position. The queue is append-only; positions never shift.
func (s *Store) AppendEvent(id string, ev HandRaiseEvent) (int, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return 0, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rec.Events = append(e.rec.Events, ev)
	return len(e.rec.Events), true
}

// ObserveAgent records that the automated moderator has been seen in the
// session's media room. AgentJoined latches true; the identity is kept once
// observed and not cleared if the agent later drops from the roster.
func (s *Store) ObserveAgent(id, identity string) (*Record, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rec.AgentJoined = true
	if identity != "" {
		e.rec.AgentIdentity = identity
	}
	return e.rec.Clone(), true
}
