package utils

import (
	"testing"

	"songlead/models"
)

func TestDigitsOnly(t *testing.T) {
	cases := map[string]string{
		"+52 155 1234-5678": "5215512345678",
		"521551234":         "521551234",
		"abc":               "",
		"":                  "",
	}
	for in, want := range cases {
		if got := DigitsOnly(in); got != want {
			t.Errorf("DigitsOnly(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeJID(t *testing.T) {
	cases := map[string]string{
		"5215512345678@s.whatsapp.net":    "5215512345678@s.whatsapp.net",
		"5215512345678:12@s.whatsapp.net": "5215512345678@s.whatsapp.net",
		"98765432101@lid":                 "98765432101@lid",
		"no-at-sign":                      "no-at-sign",
		"":                                "",
	}
	for in, want := range cases {
		if got := NormalizeJID(in); got != want {
			t.Errorf("NormalizeJID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNumberToJID(t *testing.T) {
	cases := map[string]string{
		"5512345678":        "525512345678@s.whatsapp.net",
		"525512345678":      "525512345678@s.whatsapp.net",
		"+52 5512345678":    "525512345678@s.whatsapp.net",
		"":                  "",
		"not-a-number":      "",
	}
	for in, want := range cases {
		if got := NumberToJID(in); got != want {
			t.Errorf("NumberToJID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTargetJID(t *testing.T) {
	if got := TargetJID("5215512345678:3@s.whatsapp.net"); got != "5215512345678@s.whatsapp.net" {
		t.Errorf("full JID target = %q", got)
	}
	if got := TargetJID("5512345678"); got != "525512345678@s.whatsapp.net" {
		t.Errorf("bare number target = %q", got)
	}
	if got := TargetJID(""); got != "" {
		t.Errorf("empty target = %q", got)
	}
}

func TestJIDKindPredicates(t *testing.T) {
	if !IsGroupJID("1203630@g.us") {
		t.Error("expected group JID to be detected")
	}
	if IsGroupJID("5215512345678@s.whatsapp.net") {
		t.Error("user JID misdetected as group")
	}
	if !IsLIDJID("98765432101@lid") {
		t.Error("expected lid JID to be detected")
	}
	if IsLIDJID("5215512345678@s.whatsapp.net") {
		t.Error("user JID misdetected as lid")
	}
}

func TestLeadJIDPrefersResolved(t *testing.T) {
	lead := &models.Lead{
		ID:          "98765432101@lid",
		ResolvedJID: "5215512345678@s.whatsapp.net",
		Phone:       "5215512345678",
	}
	if got := LeadJID(lead); got != "5215512345678@s.whatsapp.net" {
		t.Errorf("LeadJID = %q, want resolved JID", got)
	}

	lead.ResolvedJID = ""
	if got := LeadJID(lead); got != "98765432101@lid" {
		t.Errorf("LeadJID without resolved = %q, want canonical ID", got)
	}

	lead.ID = ""
	if got := LeadJID(lead); got != "5215512345678@s.whatsapp.net" {
		t.Errorf("LeadJID from phone = %q", got)
	}

	if got := LeadJID(nil); got != "" {
		t.Errorf("LeadJID(nil) = %q, want empty", got)
	}
}
