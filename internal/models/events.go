// Package models defines the records exchanged with Kafka: worker jobs and
// the turn events published while a session runs.
package models

// Turn event types.
const (
	EventTranscriptFinal = "agent.transcript.final"
	EventResponse        = "agent.response"
)

// Response statuses.
const (
	ResponseCompleted = "completed"
	ResponseFailed    = "failed"
)

// TranscriptFinal is published when an utterance is finalized and a turn starts.
type TranscriptFinal struct {
	EventType string `json:"eventType"`
	Room      string `json:"room"`
	SessionID string `json:"sessionId"`
	TurnID    string `json:"turnId"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// AgentResponse is published when the agent finished (or abandoned) speaking
// its response to a turn.
type AgentResponse struct {
	EventType  string `json:"eventType"`
	Room       string `json:"room"`
	SessionID  string `json:"sessionId"`
	TurnID     string `json:"turnId"`
	Timestamp  int64  `json:"timestamp"`
	Text       string `json:"text"`
	Chunks     int    `json:"chunks"`
	DurationMs int64  `json:"durationMs"`
	Status     string `json:"status"`
}
