package ws

import (
	"github.com/leverai/focusgroup/internal/session"
)

type MessageType string

const (
	// MsgSnapshot carries the full session registry. Sent on connect and on
	// a fixed interval so late or reconnecting observers converge.
	MsgSnapshot MessageType = "snapshot"
	// MsgDelta carries only the records that changed since the last flush.
	MsgDelta MessageType = "delta"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Sessions []*session.Record `json:"sessions"`
}

type DeltaPayload struct {
	Updates []*session.Record `json:"updates"`
}
