package utils

import (
	"fmt"
	"time"

	"songlead/models"

	"gopkg.in/gomail.v2"
)

// AlertMailer emails the operator when a pipeline job parks in an error
// status. Alerts are best effort; delivery problems are the caller's to log.
type AlertMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
}

// NewAlertMailer returns nil when SMTP or the alert recipient is not
// configured, so callers can keep a simple nil check.
func NewAlertMailer(host string, port int, username, password, from, to string) *AlertMailer {
	if host == "" || from == "" || to == "" {
		return nil
	}
	return &AlertMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
	}
}

// SongParked notifies the operator that a song job needs manual attention.
func (m *AlertMailer) SongParked(song *models.Song, stage string, cause error) error {
	subject := fmt.Sprintf("[songlead] job #%d parked in %s", song.ID, song.Status)
	body := fmt.Sprintf(
		"Song job #%d (lead %s) failed during the %s stage at %s.\n\nStatus: %s\nError: %v\n\nThe job is parked and will not retry automatically.\n",
		song.ID, song.LeadID, stage, time.Now().Format(time.RFC3339), song.Status, cause,
	)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.host, m.port, m.username, m.password)
	return dialer.DialAndSend(msg)
}
