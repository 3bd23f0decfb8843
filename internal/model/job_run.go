package model

import "time"

// JobRun is the persisted metadata of one scheduler firing.
type JobRun struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}
