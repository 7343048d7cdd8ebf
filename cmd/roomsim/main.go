// Command roomsim is a local stand-in for a room server. It accepts agent
// connections on the media bridge protocol, plays a WAV file as the caller's
// microphone and records what the agent says back.
//
//	roomsim -audio caller.wav -out agent.wav
//	worker connect --room sala --participant caller   (LIVEKIT_TRANSPORT=bridge LIVEKIT_URL=ws://localhost:7880)
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"voice-agent-service/internal/config"
	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/room"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// 20ms of 16kHz 16-bit mono
const (
	sampleRate      = 16000
	chunkSize       = 640
	chunkIntervalMs = 20
)

func main() {
	addr := flag.String("addr", ":7880", "listen address")
	audioFile := flag.String("audio", "", "Path to WAV file (16kHz 16-bit mono)")
	outFile := flag.String("out", "", "where to record the agent's audio (default <room>.wav)")
	participant := flag.String("participant", "caller", "identity of the simulated caller")
	linger := flag.Duration("linger", 10*time.Second, "how long the caller stays after the file ends")
	flag.Parse()

	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.Observability.LogLevel, Format: "console"})

	if *audioFile == "" {
		log.Fatal().Msg("-audio is required")
	}
	pcm, err := readWAV(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load audio")
	}

	bridge := room.NewBridge(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
	mux := http.NewServeMux()
	mux.Handle("/agent", bridge)
	server := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", *addr).Msg("Room simulator listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Room simulator failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = server.Close()
			return
		case peer := <-bridge.Peers():
			go call(ctx, peer, pcm, *participant, *linger, outputPath(*outFile, peer.Room))
		}
	}
}

// call plays pcm to the agent in real time, waits for linger and hangs up.
func call(ctx context.Context, peer *room.Peer, pcm []byte, participant string, linger time.Duration, out string) {
	logger := log.With().Str("room", peer.Room).Str("agent", peer.Identity).Logger()
	logger.Info().Msg("Agent joined, streaming audio")

	recorded := make(chan []byte, 1)
	go func() {
		var buf bytes.Buffer
		for frame := range peer.Received() {
			buf.Write(frame)
		}
		recorded <- buf.Bytes()
	}()

	ticker := time.NewTicker(chunkIntervalMs * time.Millisecond)
	defer ticker.Stop()

	var chunkNum int
	for off := 0; off < len(pcm); off += chunkSize {
		select {
		case <-ctx.Done():
			_ = peer.CloseRoom()
			return
		case <-peer.Done():
			logger.Warn().Msg("Agent left mid-call")
			return
		case <-ticker.C:
		}
		end := min(off+chunkSize, len(pcm))
		if err := peer.SendAudio(pcm[off:end]); err != nil {
			logger.Error().Err(err).Msg("Failed to send audio")
			return
		}
		chunkNum++
		if chunkNum%50 == 0 {
			logger.Debug().Int("chunks", chunkNum).Msg("Streaming")
		}
	}
	logger.Info().Int("chunks", chunkNum).Dur("linger", linger).Msg("Audio finished, waiting for the agent")

	select {
	case <-time.After(linger):
	case <-ctx.Done():
	}
	_ = peer.Leave(participant)

	select {
	case <-peer.Done():
	case <-time.After(5 * time.Second):
		_ = peer.Close()
	}

	audio := <-recorded
	if err := writeWAV(out, audio); err != nil {
		logger.Error().Err(err).Msg("Failed to write recording")
		return
	}
	logger.Info().Str("file", out).Int("bytes", len(audio)).Msg("Agent audio recorded")
}

func outputPath(base, roomName string) string {
	if base == "" {
		return roomName + ".wav"
	}
	return base
}

func readWAV(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	rate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Info().
		Uint16("format", audioFormat).
		Uint16("channels", numChannels).
		Uint32("sampleRate", rate).
		Uint16("bitsPerSample", bitsPerSample).
		Msg("WAV file")

	if audioFormat != 1 { // PCM
		return nil, errors.New("only PCM format supported")
	}
	if rate != sampleRate || numChannels != 1 || bitsPerSample != 16 {
		log.Warn().Msg("Expected 16kHz 16-bit mono, the agent may mis-transcribe")
	}
	return io.ReadAll(f)
}

func writeWAV(path string, pcm []byte) error {
	var h [wavHeaderSize]byte
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+len(pcm)))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1)
	binary.LittleEndian.PutUint16(h[22:24], 1)
	binary.LittleEndian.PutUint32(h[24:28], sampleRate)
	binary.LittleEndian.PutUint32(h[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(h[32:34], 2)
	binary.LittleEndian.PutUint16(h[34:36], 16)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(len(pcm)))

	return os.WriteFile(path, append(h[:], pcm...), 0o644)
}
