package models

// Job asks the worker to run one agent session in a room.
type Job struct {
	JobID               string `json:"job_id"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity,omitempty"`
	Metadata            string `json:"metadata,omitempty"`
}
