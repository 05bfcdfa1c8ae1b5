package models

import "gorm.io/gorm"

// StepType identifies what kind of message a sequence step sends.
type StepType string

const (
	StepText  StepType = "text"
	StepForm  StepType = "form"
	StepAudio StepType = "audio"
	StepImage StepType = "image"
	StepVideo StepType = "video"
)

var stepTypes = map[StepType]struct{}{
	StepText:  {},
	StepForm:  {},
	StepAudio: {},
	StepImage: {},
	StepVideo: {},
}

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	_, ok := stepTypes[t]
	return ok
}

// Sequence represents one drip sequence definition, looked up by trigger.
type Sequence struct {
	gorm.Model
	Trigger     string `gorm:"not null;uniqueIndex" json:"trigger"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Steps []SequenceStep `gorm:"type:jsonb;serializer:json" json:"steps"`
}

// SequenceStep is one timed message in a sequence. DelayMinutes counts from
// the instance's start time, not from the previous step.
type SequenceStep struct {
	Type         StepType `json:"type"`
	Content      string   `json:"content"` // template text or media URL
	DelayMinutes int      `json:"delay_minutes"`
}
