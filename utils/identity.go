package utils

import (
	"strings"

	"songlead/models"
)

// DefaultCountryCode is prepended to bare 10-digit numbers before building
// a routing JID.
const DefaultCountryCode = "52"

const (
	userServer  = "s.whatsapp.net"
	groupServer = "g.us"
	lidServer   = "lid"
)

// DigitsOnly strips every non-numeric character from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeJID canonicalizes a JID: the device suffix (":12") is dropped
// from the local part and the server is kept as-is.
func NormalizeJID(jid string) string {
	if jid == "" {
		return ""
	}
	local, server, found := strings.Cut(jid, "@")
	if !found {
		return jid
	}
	if idx := strings.IndexByte(local, ':'); idx >= 0 {
		local = local[:idx]
	}
	return local + "@" + server
}

// PhoneFromJID extracts the bare contact token (digits only) from a JID.
func PhoneFromJID(jid string) string {
	if jid == "" {
		return ""
	}
	local, _, _ := strings.Cut(jid, "@")
	return DigitsOnly(local)
}

// NumberToJID converts a phone number, with or without country prefix, to a
// routing JID. Bare 10-digit numbers get the default country code.
func NumberToJID(num string) string {
	digits := DigitsOnly(num)
	if digits == "" {
		return ""
	}
	if len(digits) == 10 {
		digits = DefaultCountryCode + digits
	}
	return digits + "@" + userServer
}

// IsGroupJID reports whether the JID belongs to a multi-party conversation.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+groupServer)
}

// IsLIDJID reports whether the JID uses the transient lid addressing mode.
func IsLIDJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+lidServer)
}

// TargetJID resolves a send target that may be a full JID or a bare phone
// number. Returns "" when nothing usable is left after normalization.
func TargetJID(target string) string {
	if target == "" {
		return ""
	}
	if strings.Contains(target, "@") {
		return NormalizeJID(target)
	}
	return NumberToJID(target)
}

// LeadJID picks the best routing identifier a lead record offers: the
// resolved public JID when known, then the canonical key, then the phone.
func LeadJID(lead *models.Lead) string {
	if lead == nil {
		return ""
	}
	if lead.ResolvedJID != "" {
		return NormalizeJID(lead.ResolvedJID)
	}
	if lead.ID != "" {
		return NormalizeJID(lead.ID)
	}
	return NumberToJID(lead.Phone)
}
