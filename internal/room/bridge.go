package room

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-agent-service/internal/livekit/auth"
	"voice-agent-service/internal/observability/logging"
)

// Bridge is the server side of the media bridge protocol. It authenticates
// agents with their access token and hands each connection to the caller as
// a Peer. It backs local simulation and tests.
type Bridge struct {
	apiKey    string
	apiSecret string
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
	peers     chan *Peer
}

// NewBridge creates a bridge that accepts tokens signed with key/secret.
func NewBridge(apiKey, apiSecret string) *Bridge {
	return &Bridge{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.WithComponent("bridge"),
		peers:  make(chan *Peer, 16),
	}
}

// Peers delivers every agent that joined.
func (b *Bridge) Peers() <-chan *Peer {
	return b.peers
}

// ServeHTTP handles /agent?room=<name>.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomName := r.URL.Query().Get("room")
	if roomName == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	bearer := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(bearer) <= len(prefix) || bearer[:len(prefix)] != prefix {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	claims, err := auth.Verify(bearer[len(prefix):], b.apiKey, b.apiSecret)
	if err != nil {
		b.logger.Warn().Err(err).Str("room", roomName).Msg("Rejected agent token")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.Video == nil || !claims.Video.RoomJoin || claims.Video.Room != roomName {
		http.Error(w, "token does not grant this room", http.StatusForbidden)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	peer := &Peer{
		Room:     roomName,
		Identity: claims.Subject,
		conn:     conn,
		received: make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
	if err := peer.send(websocket.TextMessage, ControlMessage{Type: MsgJoined, Room: roomName, Participant: claims.Subject}); err != nil {
		conn.Close()
		return
	}
	go peer.readLoop()

	b.logger.Info().Str("room", roomName).Str("identity", claims.Subject).Msg("Agent joined")
	b.peers <- peer
}

// Peer is one connected agent as seen from the room.
type Peer struct {
	Room     string
	Identity string

	conn     *websocket.Conn
	writeMu  sync.Mutex
	received chan []byte
	closed   chan struct{}
	once     sync.Once
}

// SendAudio plays participant audio to the agent.
func (p *Peer) SendAudio(pcm []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return p.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Leave tells the agent that participant left the room.
func (p *Peer) Leave(participant string) error {
	return p.send(websocket.TextMessage, ControlMessage{Type: MsgParticipantLeft, Participant: participant})
}

// CloseRoom tells the agent the room ended.
func (p *Peer) CloseRoom() error {
	return p.send(websocket.TextMessage, ControlMessage{Type: MsgRoomClosed, Room: p.Room})
}

// Received delivers audio published by the agent. It is closed when the
// agent disconnects.
func (p *Peer) Received() <-chan []byte {
	return p.received
}

// Done is closed when the agent disconnects.
func (p *Peer) Done() <-chan struct{} {
	return p.closed
}

// Close drops the connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}

func (p *Peer) send(kind int, msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return p.conn.WriteMessage(kind, data)
}

func (p *Peer) readLoop() {
	defer p.once.Do(func() {
		close(p.received)
		close(p.closed)
	})
	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		select {
		case p.received <- data:
		default:
			// Slow reader, drop audio.
		}
	}
}
