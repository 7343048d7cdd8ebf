// Package livekit joins a LiveKit room as the agent participant.
//
// Inbound audio is taken from the subscribed participant microphone track and
// decoded to PCM16 mono. Outbound audio is published on one local PCM track.
package livekit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/livekit/media-sdk"
	lklogger "github.com/livekit/protocol/logger"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/observability/metrics"
	"voice-agent-service/internal/room"
)

const (
	defaultSampleRate = 16000
	audioBuffer       = 512
	trackName         = "agent-voice"
)

// Options configures a LiveKit room connection.
type Options struct {
	URL   string
	Room  string
	Token string
	// Participant is the identity the agent listens to. Empty means the first
	// participant that publishes audio.
	Participant string
	// SampleRate of the PCM16 audio in both directions.
	SampleRate int
}

// Room implements room.Room on the LiveKit server SDK.
type Room struct {
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Metrics

	room   *lksdk.Room
	output *lkmedia.PCMLocalTrack

	mu      sync.Mutex
	audio   chan []byte
	ended   bool
	speaker string
	input   *lkmedia.PCMRemoteTrack
	once    sync.Once
}

var _ room.Room = (*Room)(nil)

// New prepares a room connection. Connect must be called before use.
func New(opts Options) *Room {
	if opts.SampleRate <= 0 {
		opts.SampleRate = defaultSampleRate
	}
	return &Room{
		opts:    opts,
		logger:  logging.WithComponent("room").With().Str("room", opts.Room).Logger(),
		metrics: metrics.DefaultMetrics,
		audio:   make(chan []byte, audioBuffer),
	}
}

func (r *Room) Name() string { return r.opts.Room }

func (r *Room) Audio() <-chan []byte { return r.audio }

// Connect joins the room with the agent token and publishes the agent's
// audio track.
func (r *Room) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: r.onTrackSubscribed,
		},
		OnParticipantDisconnected: func(p *lksdk.RemoteParticipant) {
			r.participantLeft(p.Identity())
		},
		OnDisconnected: func() {
			r.logger.Info().Msg("Disconnected from room")
			r.endAudio()
		},
	}

	lkRoom, err := lksdk.ConnectToRoomWithToken(r.opts.URL, r.opts.Token, cb, lksdk.WithAutoSubscribe(true))
	if err != nil {
		return fmt.Errorf("join livekit room: %w", err)
	}

	output, err := lkmedia.NewPCMLocalTrack(r.opts.SampleRate, 1, lklogger.GetLogger())
	if err != nil {
		lkRoom.Disconnect()
		return fmt.Errorf("create agent track: %w", err)
	}
	if _, err := lkRoom.LocalParticipant.PublishTrack(output, &lksdk.TrackPublicationOptions{Name: trackName}); err != nil {
		output.Close()
		lkRoom.Disconnect()
		return fmt.Errorf("publish agent track: %w", err)
	}

	r.room = lkRoom
	r.output = output
	r.logger.Info().Str("participant", r.opts.Participant).Msg("Joined room")
	return nil
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, p *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	if !r.listenTo(p.Identity()) {
		r.logger.Debug().Str("participant", p.Identity()).Msg("Ignoring audio track")
		return
	}

	input, err := lkmedia.NewPCMRemoteTrack(track, &pcmWriter{room: r},
		lkmedia.WithTargetSampleRate(r.opts.SampleRate),
		lkmedia.WithTargetChannels(1),
	)
	if err != nil {
		r.logger.Error().Err(err).Str("participant", p.Identity()).Msg("Could not decode participant audio")
		r.endAudio()
		return
	}

	r.mu.Lock()
	r.input = input
	r.mu.Unlock()
	r.logger.Info().Str("participant", p.Identity()).Msg("Listening to participant")
}

// listenTo claims the single inbound audio slot for identity.
func (r *Room) listenTo(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended || r.speaker != "" {
		return false
	}
	if r.opts.Participant != "" && identity != r.opts.Participant {
		return false
	}
	r.speaker = identity
	return true
}

// participantLeft ends the audio when the participant being listened to (or
// the configured one) leaves.
func (r *Room) participantLeft(identity string) {
	r.mu.Lock()
	target := r.opts.Participant
	if target == "" {
		target = r.speaker
	}
	r.mu.Unlock()

	if target == "" || identity != target {
		return
	}
	r.logger.Info().Str("participant", identity).Msg("Participant left")
	r.endAudio()
}

func (r *Room) deliver(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return room.ErrRoomClosed
	}
	r.metrics.RecordAudioReceived(len(pcm))
	select {
	case r.audio <- pcm:
	default:
		r.logger.Warn().Int("bytes", len(pcm)).Msg("Inbound audio buffer full, dropping frame")
	}
	return nil
}

func (r *Room) endAudio() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	r.ended = true
	close(r.audio)
}

// Publish plays PCM16 mono audio into the room.
func (r *Room) Publish(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.output == nil {
		return errors.New("room not connected")
	}
	if err := r.output.WriteSample(toSamples(pcm)); err != nil {
		return fmt.Errorf("publish audio: %w", err)
	}
	return nil
}

// Close leaves the room. Safe to call repeatedly.
func (r *Room) Close() error {
	r.once.Do(func() {
		r.endAudio()

		r.mu.Lock()
		input := r.input
		r.mu.Unlock()
		if input != nil {
			input.Close()
		}
		if r.output != nil {
			r.output.Close()
		}
		if r.room != nil {
			r.room.Disconnect()
			r.logger.Info().Msg("Left room")
		}
	})
	return nil
}

// pcmWriter receives decoded participant audio.
type pcmWriter struct {
	room *Room
}

func (w *pcmWriter) String() string { return "agent-input" }

func (w *pcmWriter) SampleRate() int { return w.room.opts.SampleRate }

func (w *pcmWriter) WriteSample(sample media.PCM16Sample) error {
	return w.room.deliver(toBytes(sample))
}

func (w *pcmWriter) Close() error { return nil }

func toSamples(pcm []byte) media.PCM16Sample {
	out := make(media.PCM16Sample, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

func toBytes(sample media.PCM16Sample) []byte {
	out := make([]byte, 2*len(sample))
	for i, s := range sample {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}
