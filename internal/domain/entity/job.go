package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// ExtractionJob tracks one video-to-wordlist run through its lifecycle.
type ExtractionJob struct {
	ID            uuid.UUID
	UserID        string
	VideoKey      string
	WordListKey   string
	Status        JobStatus
	StartSeconds  float64
	EndSeconds    float64
	FrameCount    int
	WordCount     int
	FileSize      int64
	VideoDuration float64
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewExtractionJob(userID, videoKey string, rng TimeRange, fileSize int64, maxAttempts int) *ExtractionJob {
	now := time.Now().UTC()
	return &ExtractionJob{
		ID:           uuid.New(),
		UserID:       userID,
		VideoKey:     videoKey,
		StartSeconds: rng.Start,
		EndSeconds:   rng.End,
		FileSize:     fileSize,
		Status:       JobStatusPending,
		Attempt:      0,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (j *ExtractionJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *ExtractionJob) MarkCompleted(wordListKey string, frameCount, wordCount int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.WordListKey = wordListKey
	j.FrameCount = frameCount
	j.WordCount = wordCount
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *ExtractionJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *ExtractionJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
