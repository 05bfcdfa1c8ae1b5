package models

import (
	"time"

	"gorm.io/gorm"
)

// ScriptStatus is the lifecycle of a video-ad script job.
type ScriptStatus string

const (
	ScriptNoScript    ScriptStatus = "no_script"
	ScriptReadyToSend ScriptStatus = "ready_to_send"
	ScriptSent        ScriptStatus = "sent"
)

// Script is a short video-ad script generated for a lead's business and
// delivered over WhatsApp once a dwell period has passed.
type Script struct {
	gorm.Model
	LeadID     string `gorm:"not null;index" json:"lead_id"`
	LeadPhone  string `json:"lead_phone"`
	SenderName string `json:"sender_name"`

	BusinessName string `json:"business_name"`
	Description  string `gorm:"type:text" json:"description"`
	Purpose      string `gorm:"type:text" json:"purpose"`
	Promo        string `json:"promo"`

	Status  ScriptStatus `gorm:"not null;index;default:'no_script'" json:"status"`
	Content string       `gorm:"type:text" json:"content"`

	GeneratedAt *time.Time `json:"generated_at"`
	SentAt      *time.Time `json:"sent_at"`
}
