package utils

import (
	"net/url"
	"regexp"
	"strings"

	"songlead/models"
)

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

var newlineRe = regexp.MustCompile(`\r?\n`)

// FirstName returns only the first whitespace-delimited token of a full
// name. Outbound templates never receive the full value.
func FirstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func leadField(lead *models.Lead, field string) string {
	if lead == nil {
		return ""
	}
	switch field {
	case "name":
		return FirstName(lead.Name)
	case "phone":
		return lead.Phone
	case "id":
		return lead.ID
	case "source":
		return lead.Source
	case "state":
		return lead.State
	}
	return ""
}

// RenderTemplate substitutes {{field}} tokens against the lead's
// attributes. Unknown fields become the empty string.
func RenderTemplate(template string, lead *models.Lead) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		field := placeholderRe.FindStringSubmatch(match)[1]
		return leadField(lead, field)
	})
}

// RenderFormContent prepares a form-type step for sending: the name token
// is URL-encoded, remaining placeholders are substituted as usual, and
// newlines collapse to single spaces so the form URL survives transport.
func RenderFormContent(template string, lead *models.Lead) string {
	out := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		field := placeholderRe.FindStringSubmatch(match)[1]
		if field == "name" {
			return url.QueryEscape(FirstName(lead.Name))
		}
		return leadField(lead, field)
	})
	out = newlineRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
