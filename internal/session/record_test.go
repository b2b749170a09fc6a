package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Waiting, "waiting"},
		{InSession, "in_session"},
		{Ended, "ended"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatusJSONRoundTrip(t *testing.T) {
	for _, status := range []Status{Waiting, InSession, Ended} {
		data, err := json.Marshal(status)
		if err != nil {
			t.Fatalf("marshal %v: %v", status, err)
		}
		var got Status
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != status {
			t.Errorf("round trip of %v produced %v", status, got)
		}
	}
}

func TestHandRaiseEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   HandRaiseEvent
		wantErr bool
	}{
		{
			name: "valid",
			event: HandRaiseEvent{
				Version: EventVersion, Type: EventTypeRaiseHand,
				SessionID: "s1", ParticipantID: "participant_1",
			},
		},
		{
			name:    "missing version",
			event:   HandRaiseEvent{Type: EventTypeRaiseHand},
			wantErr: true,
		},
		{
			name:    "wrong type",
			event:   HandRaiseEvent{Version: EventVersion, Type: "lower_hand"},
			wantErr: true,
		},
		{
			name:    "empty envelope",
			event:   HandRaiseEvent{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordClone(t *testing.T) {
	started := time.Now().UTC()
	rec := &Record{
		ID:       "a",
		RoomName: "room",
		Status:   InSession,
		StartedAt: &started,
		Participants: []Participant{
			{Identity: "organizer_1", DisplayName: "Alex", IsOrganizer: true},
		},
		Events: []HandRaiseEvent{
			{Version: EventVersion, Type: EventTypeRaiseHand, ParticipantID: "participant_1"},
		},
	}

	c := rec.Clone()
	c.Participants[0].DisplayName = "mutated"
	c.Events[0].ParticipantID = "mutated"
	*c.StartedAt = c.StartedAt.Add(time.Hour)

	if rec.Participants[0].DisplayName != "Alex" {
		t.Error("participant mutation leaked into original")
	}
	if rec.Events[0].ParticipantID != "participant_1" {
		t.Error("event mutation leaked into original")
	}
	if !rec.StartedAt.Equal(started) {
		t.Error("timestamp mutation leaked into original")
	}
}

func TestRecordJSONFields(t *testing.T) {
	rec := &Record{ID: "a", RoomName: "room", Status: Waiting}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["status"] != "waiting" {
		t.Errorf(`status serialized as %v, want "waiting"`, m["status"])
	}
	if _, present := m["agentIdentity"]; present {
		t.Error("empty agentIdentity should be omitted")
	}
	if _, present := m["startedAt"]; present {
		t.Error("nil startedAt should be omitted")
	}
}
