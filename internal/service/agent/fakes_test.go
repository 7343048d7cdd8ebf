package agent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"voice-agent-service/internal/models"
	"voice-agent-service/internal/service/llm"
	"voice-agent-service/internal/service/stt"
)

type fakeSource struct {
	events []stt.TranscriptionEvent
	err    error // returned after events, io.EOF if nil
	calls  atomic.Int32
}

func (f *fakeSource) Recv(ctx context.Context) (stt.TranscriptionEvent, error) {
	n := int(f.calls.Add(1))
	if n <= len(f.events) {
		return f.events[n-1], nil
	}
	if f.err != nil {
		return stt.TranscriptionEvent{}, f.err
	}
	return stt.TranscriptionEvent{}, io.EOF
}

type fakeModel struct {
	mu     sync.Mutex
	chunks []string
	err    error
	calls  []string
}

func (f *fakeModel) Stream(_ context.Context, text string) iter.Seq2[llm.Chunk, error] {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	return func(yield func(llm.Chunk, error) bool) {
		for _, c := range f.chunks {
			if !yield(llm.Chunk{Text: c}, nil) {
				return
			}
		}
		if f.err != nil {
			yield(llm.Chunk{}, f.err)
		}
	}
}

func (f *fakeModel) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSpeaker struct {
	mu       sync.Mutex
	said     []string
	inFlight atomic.Int32
	overlap  bool
	err      error
	onSay    func(text string)
}

func (f *fakeSpeaker) Say(_ context.Context, text string) error {
	if f.inFlight.Add(1) > 1 {
		f.overlap = true
	}
	defer f.inFlight.Add(-1)
	if f.onSay != nil {
		f.onSay(text)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.said = append(f.said, text)
	return nil
}

func (f *fakeSpeaker) Said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

type fakeRoom struct {
	name       string
	audio      chan []byte
	connectErr error

	mu        sync.Mutex
	published [][]byte
	connected bool
	closed    int
}

func newFakeRoom(name string) *fakeRoom {
	return &fakeRoom{name: name, audio: make(chan []byte, 16)}
}

func (r *fakeRoom) Name() string { return r.name }

func (r *fakeRoom) Connect(context.Context) error {
	if r.connectErr != nil {
		return r.connectErr
	}
	r.mu.Lock()
	r.connected = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRoom) Audio() <-chan []byte { return r.audio }

func (r *fakeRoom) Publish(_ context.Context, pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed > 0 {
		return errors.New("closed")
	}
	r.published = append(r.published, pcm)
	return nil
}

func (r *fakeRoom) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *fakeRoom) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed > 0
}

func (r *fakeRoom) Published() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.published...)
}

// fakeSynth returns size bytes of silence per call.
type fakeSynth struct {
	size  int
	texts []string
	mu    sync.Mutex
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(make([]byte, f.size))), nil
}

type recordingObserver struct {
	mu          sync.Mutex
	transcripts []models.TranscriptFinal
	responses   []models.AgentResponse
}

func (o *recordingObserver) UtteranceFinalized(_ context.Context, ev models.TranscriptFinal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcripts = append(o.transcripts, ev)
}

func (o *recordingObserver) ResponseFinished(_ context.Context, ev models.AgentResponse) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.responses = append(o.responses, ev)
}

func (o *recordingObserver) Responses() []models.AgentResponse {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.AgentResponse(nil), o.responses...)
}

func (o *recordingObserver) Transcripts() []models.TranscriptFinal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.TranscriptFinal(nil), o.transcripts...)
}

// blockingObserver holds every event until release is closed.
type blockingObserver struct {
	recordingObserver
	release chan struct{}
}

func (o *blockingObserver) UtteranceFinalized(ctx context.Context, ev models.TranscriptFinal) {
	<-o.release
	o.recordingObserver.UtteranceFinalized(ctx, ev)
}

func (o *blockingObserver) ResponseFinished(ctx context.Context, ev models.AgentResponse) {
	<-o.release
	o.recordingObserver.ResponseFinished(ctx, ev)
}

// testSession wires fakes directly, bypassing StartSession.
func testSession(src TranscriptSource, model llm.Model, speaker *fakeSpeaker, opts ...Option) (*Session, *fakeRoom) {
	r := newFakeRoom("test-room")
	s := newSession(r, model, opts...)
	s.transcripts = src
	s.speaker = speaker
	return s, r
}
