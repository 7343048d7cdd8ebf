package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/observability/metrics"
)

const (
	defaultJoinTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
	audioBuffer         = 256
)

// Options configures a websocket room connection.
type Options struct {
	URL   string // bridge base URL, ws:// or wss://
	Room  string
	Token string
	// Participant restricts end-of-audio to this participant leaving. Empty
	// means any participant.
	Participant  string
	JoinTimeout  time.Duration
	WriteTimeout time.Duration
}

// WSRoom implements Room over a websocket media bridge.
type WSRoom struct {
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Metrics

	conn    *websocket.Conn
	audio   chan []byte
	done    chan struct{}
	readers sync.WaitGroup

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ Room = (*WSRoom)(nil)

// NewWebsocket prepares a room connection. Connect must be called before use.
func NewWebsocket(opts Options) *WSRoom {
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &WSRoom{
		opts:    opts,
		logger:  logging.WithComponent("room").With().Str("room", opts.Room).Logger(),
		metrics: metrics.DefaultMetrics,
		audio:   make(chan []byte, audioBuffer),
		done:    make(chan struct{}),
	}
}

func (r *WSRoom) Name() string { return r.opts.Room }

func (r *WSRoom) Audio() <-chan []byte { return r.audio }

// Connect dials the bridge and waits for the join acknowledgement.
func (r *WSRoom) Connect(ctx context.Context) error {
	endpoint, err := joinURL(r.opts.URL, r.opts.Room)
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+r.opts.Token)

	dialCtx, cancel := context.WithTimeout(ctx, r.opts.JoinTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial room bridge: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial room bridge: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(r.opts.JoinTimeout))
	var ack ControlMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return fmt.Errorf("wait for join: %w", err)
	}
	if ack.Type != MsgJoined {
		conn.Close()
		return fmt.Errorf("join rejected: %s %s", ack.Type, ack.Message)
	}
	_ = conn.SetReadDeadline(time.Time{})

	r.conn = conn
	r.readers.Add(1)
	go r.readLoop()

	r.logger.Info().Str("participant", r.opts.Participant).Msg("Joined room")
	return nil
}

func (r *WSRoom) readLoop() {
	defer r.readers.Done()
	defer close(r.audio)

	for {
		kind, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					r.logger.Warn().Err(err).Msg("Room connection dropped")
				}
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			r.metrics.RecordAudioReceived(len(data))
			select {
			case r.audio <- data:
			case <-r.done:
				return
			}
		case websocket.TextMessage:
			var msg ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				r.logger.Warn().Err(err).Msg("Ignoring malformed control message")
				continue
			}
			if r.endsAudio(msg) {
				return
			}
		}
	}
}

func (r *WSRoom) endsAudio(msg ControlMessage) bool {
	switch msg.Type {
	case MsgParticipantLeft:
		if r.opts.Participant != "" && msg.Participant != r.opts.Participant {
			return false
		}
		r.logger.Info().Str("participant", msg.Participant).Msg("Participant left")
		return true
	case MsgRoomClosed:
		r.logger.Info().Msg("Room closed")
		return true
	case MsgError:
		r.logger.Error().Str("error", msg.Message).Msg("Room bridge error")
		return true
	}
	return false
}

// Publish sends one outbound audio frame.
func (r *WSRoom) Publish(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}
	if r.conn == nil {
		return errors.New("room not connected")
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(r.opts.WriteTimeout))
	if err := r.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("publish audio: %w", err)
	}
	return nil
}

// Close leaves the room. Safe to call repeatedly.
func (r *WSRoom) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		if r.conn == nil {
			return
		}
		r.writeMu.Lock()
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(r.opts.WriteTimeout))
		r.writeMu.Unlock()
		err = r.conn.Close()
		r.readers.Wait()
		r.logger.Info().Msg("Left room")
	})
	return err
}

func joinURL(base, room string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse room url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported room url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/agent"
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
