// Package room defines the agent's view of a joined room and a websocket
// media bridge used to simulate rooms locally. Real LiveKit rooms are joined
// through the livekit subpackage.
//
// The bridge speaks a small protocol: binary frames carry PCM16 mono audio
// in both directions, text frames carry JSON control messages.
package room

import (
	"context"
	"errors"
)

// Control message types sent by the bridge.
const (
	MsgJoined          = "joined"
	MsgParticipantLeft = "participant_left"
	MsgRoomClosed      = "room_closed"
	MsgError           = "error"
)

// ErrRoomClosed is returned when publishing into a room that has ended.
var ErrRoomClosed = errors.New("room closed")

// ControlMessage is a JSON control frame.
type ControlMessage struct {
	Type        string `json:"type"`
	Room        string `json:"room,omitempty"`
	Participant string `json:"participant,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Room is one joined room. Audio delivers inbound participant audio and is
// closed when the participant leaves, the room closes or the connection drops.
type Room interface {
	Name() string
	Connect(ctx context.Context) error
	Audio() <-chan []byte
	Publish(ctx context.Context, pcm []byte) error
	Close() error
}
