package models

import (
	"time"

	"gorm.io/gorm"
)

// SongStatus is the lifecycle of a song generation job. Each stage worker
// claims jobs in its entry status and advances them exactly one step.
type SongStatus string

const (
	SongNoLyrics        SongStatus = "no_lyrics"
	SongNoPrompt        SongStatus = "no_prompt"
	SongNoTask          SongStatus = "no_task"
	SongProcessing      SongStatus = "processing"
	SongAudioReady      SongStatus = "audio_ready"
	SongClipGenerating  SongStatus = "clip_generating"
	SongClipReady       SongStatus = "clip_ready"
	SongDeliveryPending SongStatus = "delivery_pending"
	SongDelivered       SongStatus = "delivered"

	SongErrorGeneration SongStatus = "error_generation"
	SongErrorClip       SongStatus = "error_clip"
	SongErrorWatermark  SongStatus = "error_watermark"
	SongErrorUpload     SongStatus = "error_upload"
)

var allSongStatuses = []SongStatus{
	SongNoLyrics,
	SongNoPrompt,
	SongNoTask,
	SongProcessing,
	SongAudioReady,
	SongClipGenerating,
	SongClipReady,
	SongDeliveryPending,
	SongDelivered,
	SongErrorGeneration,
	SongErrorClip,
	SongErrorWatermark,
	SongErrorUpload,
}

var songStatusSet = func() map[SongStatus]struct{} {
	set := make(map[SongStatus]struct{}, len(allSongStatuses))
	for _, status := range allSongStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// songTransitions is the closed set of allowed status moves. Writes outside
// this table are rejected so a typo'd status can never corrupt a job.
var songTransitions = map[SongStatus][]SongStatus{
	SongNoLyrics:       {SongNoPrompt},
	SongNoPrompt:       {SongNoTask},
	SongNoTask:         {SongProcessing},
	SongProcessing:     {SongAudioReady, SongErrorGeneration, SongNoTask},
	SongAudioReady:     {SongClipGenerating},
	SongClipGenerating: {SongClipReady, SongErrorClip, SongErrorWatermark, SongErrorUpload},
	SongClipReady:      {SongDeliveryPending},
	SongDeliveryPending: {SongDelivered},

	// Operator retry re-enters the stage that failed; error statuses are
	// never advanced automatically.
	SongErrorGeneration: {SongNoTask},
	SongErrorClip:       {SongAudioReady},
	SongErrorWatermark:  {SongAudioReady},
	SongErrorUpload:     {SongAudioReady},
}

// Valid reports whether s is a known song status.
func (s SongStatus) Valid() bool {
	_, ok := songStatusSet[s]
	return ok
}

// IsError reports whether s is one of the parked error statuses.
func (s SongStatus) IsError() bool {
	switch s {
	case SongErrorGeneration, SongErrorClip, SongErrorWatermark, SongErrorUpload:
		return true
	}
	return false
}

// CanTransitionSong reports whether moving a song from one status to
// another is allowed by the transition table.
func CanTransitionSong(from, to SongStatus) bool {
	for _, next := range songTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SongRetryEntry returns the stage entry status an operator retry should
// reset a parked job to, or "" when the status is not retryable.
func SongRetryEntry(status SongStatus) SongStatus {
	switch status {
	case SongErrorGeneration:
		return SongNoTask
	case SongErrorClip, SongErrorWatermark, SongErrorUpload:
		return SongAudioReady
	}
	return ""
}

// Song is one content-generation job moving through the pipeline.
type Song struct {
	gorm.Model
	LeadID    string `gorm:"not null;index" json:"lead_id"`
	LeadPhone string `json:"lead_phone"`
	LeadName  string `json:"lead_name"`

	// Request inputs
	Purpose     string `gorm:"type:text" json:"purpose"`
	IncludeName string `json:"include_name"`
	Anecdotes   string `gorm:"type:text" json:"anecdotes"`
	Artist      string `json:"artist"`
	Genre       string `json:"genre"`
	VoiceType   string `json:"voice_type"`

	Status SongStatus `gorm:"not null;index;default:'no_lyrics'" json:"status"`

	// Generated artifacts
	Lyrics      string `gorm:"type:text" json:"lyrics"`
	StylePrompt string `json:"style_prompt"`
	TaskID      string `gorm:"index" json:"task_id"`
	FullURL     string `json:"full_url"`
	ClipURL     string `json:"clip_url"`

	ErrorMsg string `gorm:"type:text" json:"error_msg"`

	// GeneratedAt is stamped when the audio task is submitted; the stuck-job
	// reclaimer and the delivery cooldown both key off it.
	GeneratedAt *time.Time `gorm:"index" json:"generated_at"`
	SentAt      *time.Time `json:"sent_at"`
}
