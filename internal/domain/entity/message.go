package entity

import "github.com/google/uuid"

// ExtractionRequestMessage is the inbound message from the extraction.request queue.
type ExtractionRequestMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	VideoKey     string    `json:"video_key"`
	StartSeconds float64   `json:"start_seconds"`
	EndSeconds   float64   `json:"end_seconds"`
	FileSize     int64     `json:"file_size"`
	UserEmail    string    `json:"user_email"`
}

// ExtractionStatusMessage is the outbound message published to the extraction.status queue.
type ExtractionStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	VideoKey     string    `json:"video_key"`
	WordListKey  string    `json:"word_list_key,omitempty"`
	FrameCount   int       `json:"frame_count,omitempty"`
	WordCount    int       `json:"word_count,omitempty"`
	Duration     float64   `json:"duration_seconds,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
