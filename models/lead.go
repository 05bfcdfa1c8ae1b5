package models

import (
	"time"
)

// Message sender values for LeadMessage.Sender.
const (
	SenderLead     = "lead"
	SenderBusiness = "business"
	SenderSystem   = "system"
)

// Lead lifecycle states.
const (
	LeadStateNew       = "new"
	LeadStateEngaged   = "engaged"
	LeadStateCustomer  = "customer"
	LeadStateDiscarded = "discarded"
)

// Addressing modes reported by the gateway.
const (
	AddressingPN  = "pn"
	AddressingLID = "lid"
)

// Lead represents a single WhatsApp contact. The primary key is the
// canonical JID the routing layer delivers messages under; ResolvedJID is
// the stable public identifier when the routing layer reports one.
type Lead struct {
	ID          string `gorm:"primaryKey" json:"id"`
	ResolvedJID string `gorm:"index" json:"resolved_jid"`
	Phone       string `gorm:"index" json:"phone"` // digits only
	Name        string `json:"name"`
	Source      string `json:"source"`
	State       string `gorm:"default:'new'" json:"state"`

	// Routing metadata reported by the gateway
	AddressingMode string `json:"addressing_mode"`
	LIDRemote      bool   `gorm:"default:false" json:"lid_remote"`

	Tags            []string           `gorm:"type:jsonb;serializer:json" json:"tags"`
	ActiveSequences []SequenceInstance `gorm:"type:jsonb;serializer:json" json:"active_sequences"`

	// Latest generated lyrics, mirrored here for the dashboard
	Lyrics string `gorm:"type:text" json:"lyrics,omitempty"`

	UnreadCount   int        `gorm:"default:0" json:"unread_count"`
	LastMessageAt *time.Time `json:"last_message_at"`

	// Earliest due time across active sequence instances; NULL when none.
	// Indexed so callers can find leads needing attention without
	// re-deriving due times.
	NextSequenceAt *time.Time `gorm:"index" json:"next_sequence_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []LeadMessage `gorm:"foreignKey:LeadID" json:"messages,omitempty"`
}

// SequenceInstance is a lead's live progress marker through one sequence
// definition. Stored as a jsonb array on the lead row.
type SequenceInstance struct {
	Trigger   string    `json:"trigger"`
	StartTime time.Time `json:"start_time"`
	Index     int       `json:"index"`
	Completed bool      `json:"completed,omitempty"`
}

// LeadMessage is one entry in a lead's append-only message log.
type LeadMessage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	LeadID    string    `gorm:"not null;index" json:"lead_id"`
	Content   string    `gorm:"type:text" json:"content"`
	MediaType string    `json:"media_type"` // text, audio, image, video, document
	MediaURL  string    `json:"media_url"`
	Sender    string    `gorm:"not null" json:"sender"` // lead, business, system
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}

// HasActiveTrigger reports whether an incomplete instance of the given
// trigger is already running for the lead.
func (l *Lead) HasActiveTrigger(trigger string) bool {
	for _, seq := range l.ActiveSequences {
		if seq.Trigger == trigger && !seq.Completed {
			return true
		}
	}
	return false
}

// HasTag reports whether the lead already carries the given tag.
func (l *Lead) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
