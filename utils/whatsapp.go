package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// WhatsAppGateway talks to the Baileys bridge service that owns the actual
// WhatsApp session. The core only ever sees this client (or the Transport
// interface it implements); protocol details stay on the bridge side.
type WhatsAppGateway struct {
	baseURL string
	token   string

	httpClient *http.Client
	logger     *logrus.Entry
}

func NewWhatsAppGateway(baseURL, token string, logger *logrus.Entry) *WhatsAppGateway {
	return &WhatsAppGateway{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// GatewayStatus mirrors the bridge's connection report.
type GatewayStatus struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
	QR        string `json:"qr,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type gatewaySendRequest struct {
	JID      string `json:"jid"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

func (g *WhatsAppGateway) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// Status fetches the bridge's connection state, QR and session number.
func (g *WhatsAppGateway) Status(ctx context.Context) (*GatewayStatus, error) {
	var status GatewayStatus
	if err := g.do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// IsConnected reports whether the bridge currently holds an open session.
// Any gateway error counts as disconnected.
func (g *WhatsAppGateway) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := g.Status(ctx)
	if err != nil {
		return false
	}
	return status.Connected
}

func (g *WhatsAppGateway) send(ctx context.Context, req gatewaySendRequest) error {
	jid := TargetJID(req.JID)
	if jid == "" {
		return fmt.Errorf("no routing jid for target %q", req.JID)
	}
	req.JID = jid
	return g.do(ctx, http.MethodPost, "/send", req, nil)
}

func (g *WhatsAppGateway) SendText(ctx context.Context, target, text string) error {
	return g.send(ctx, gatewaySendRequest{JID: target, Type: "text", Text: text})
}

func (g *WhatsAppGateway) SendAudio(ctx context.Context, target, url string, ptt bool) error {
	return g.send(ctx, gatewaySendRequest{JID: target, Type: "audio", URL: url, PTT: ptt})
}

func (g *WhatsAppGateway) SendImage(ctx context.Context, target, url string) error {
	return g.send(ctx, gatewaySendRequest{JID: target, Type: "image", URL: url})
}

func (g *WhatsAppGateway) SendVideo(ctx context.Context, target, url string) error {
	return g.send(ctx, gatewaySendRequest{JID: target, Type: "video", URL: url})
}

func (g *WhatsAppGateway) SendDocument(ctx context.Context, target, url, fileName, caption string) error {
	return g.send(ctx, gatewaySendRequest{
		JID:      target,
		Type:     "document",
		URL:      url,
		MimeType: "audio/mpeg",
		FileName: fileName,
		Caption:  caption,
	})
}

// SendClip sends the watermarked clip as an inline audio message. Clip
// sends are the one place the transport retries: up to three attempts, only
// on timeout-class failures, with growing backoff.
func (g *WhatsAppGateway) SendClip(ctx context.Context, target, url string) error {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		err := g.send(ctx, gatewaySendRequest{
			JID:      target,
			Type:     "audio",
			URL:      url,
			MimeType: "audio/mp4",
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTimeoutErr(err) || attempt == 3 {
			return err
		}
		g.logger.WithError(err).Warnf("clip send attempt %d timed out, retrying", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	return lastErr
}

func isTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
