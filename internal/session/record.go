package session

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a session. Transitions are monotonic:
// Waiting -> InSession -> Ended, never backward.
type Status int

const (
	Waiting Status = iota
	InSession
	Ended
)

var statusNames = map[Status]string{
	Waiting:   "waiting",
	InSession: "in_session",
	Ended:     "ended",
}

var statusFromName = map[string]Status{
	"waiting":    Waiting,
	"in_session": InSession,
	"ended":      Ended,
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusFromName[name]; ok {
		*s = v
	}
	return nil
}

// Participant is a member admitted through the join endpoint. Identity is
// role-qualified (organizer_N or participant_N) and unique for the life of
// the record.
type Participant struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email,omitempty"`
	IsOrganizer bool      `json:"isOrganizer"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// EventVersion and EventTypeRaiseHand tag the raise-hand wire envelope.
const (
	EventVersion       = "v1"
	EventTypeRaiseHand = "raise_hand"
)

var ErrInvalidEvent = errors.New("invalid event payload")

// HandRaiseEvent is a participant-originated signal appended to a session's
// event queue. The envelope is stored as received; CreatedAt is the caller's
// clock, not the server's.
type HandRaiseEvent struct {
	Version         string `json:"version"`
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
	CreatedAt       string `json:"createdAt"`
}

// Validate checks the envelope tags. Untagged or mistyped payloads are
// rejected before they reach the queue.
func (e HandRaiseEvent) Validate() error {
	if e.Version == "" || e.Type != EventTypeRaiseHand {
		return ErrInvalidEvent
	}
	return nil
}

// Record is the unit of session state. Events is append-only; queue position
// of an event equals its 1-based index at append time. AgentJoined and
// AgentIdentity are observed from the media room, not authoritative.
type Record struct {
	ID            string           `json:"id"`
	RoomName      string           `json:"roomName"`
	Status        Status           `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	StartedAt     *time.Time       `json:"startedAt,omitempty"`
	EndedAt       *time.Time       `json:"endedAt,omitempty"`
	Participants  []Participant    `json:"participants"`
	Events        []HandRaiseEvent `json:"events"`
	AgentJoined   bool             `json:"agentJoined"`
	AgentIdentity string           `json:"agentIdentity,omitempty"`
}

// Clone returns a deep copy of the Record, duplicating pointer and slice
// fields so the copy can be mutated independently of the original.
func (r *Record) Clone() *Record {
	c := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	if len(r.Participants) > 0 {
		c.Participants = make([]Participant, len(r.Participants))
		copy(c.Participants, r.Participants)
	}
	if len(r.Events) > 0 {
		c.Events = make([]HandRaiseEvent, len(r.Events))
		copy(c.Events, r.Events)
	}
	return &c
}
