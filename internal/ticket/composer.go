package ticket

import (
	"strings"
	"time"

	"github.com/cragr/email2snow-agent/internal/models"
)

const (
	shortDescriptionLimit = 160
	emailSubjectLimit     = 255
)

// Composer assembles the incident description and payload from a ticket
// bundle. The clock is a field so tests can pin the generated timestamp.
type Composer struct {
	now func() time.Time
}

// NewComposer creates a Composer using the wall clock.
func NewComposer() *Composer {
	return &Composer{now: time.Now}
}

// BuildPayload assembles the incident record from the ticket bundle and the
// resolved identities. Missing priority/urgency default to "3" here, at
// composition time.
func (c *Composer) BuildPayload(ticket models.TicketData, caller, group, assignee models.Identity, category string) models.IncidentPayload {
	return models.IncidentPayload{
		ShortDescription: truncate(orDefault(ticket.ShortDescription, "Support Request"), shortDescriptionLimit),
		Description:      c.BuildDescription(ticket),
		CallerID:         caller.SysID,
		Category:         category,
		Subcategory:      ticket.Category.Subcategory,
		Priority:         orDefault(ticket.Category.Priority, "3"),
		Urgency:          orDefault(ticket.Category.Urgency, "3"),
		AssignmentGroup:  group.SysID,
		AssignedTo:       assignee.SysID,
		ContactType:      "Email",
		SourceEmail:      ticket.Email.From,
		EmailSubject:     truncate(ticket.Email.Subject, emailSubjectLimit),
		Comments:         "Auto-generated from email: " + ticket.Email.MessageID,
	}
}

// BuildDescription renders the incident description as ordered sections.
// Sections whose source field is absent are omitted entirely.
func (c *Composer) BuildDescription(ticket models.TicketData) string {
	var parts []string

	if ticket.Summary.Description != "" {
		parts = append(parts, "Issue Description:", ticket.Summary.Description, "")
	}

	parts = append(parts,
		"Email Details:",
		"From: "+orDefault(ticket.Email.From, "Unknown"),
		"Subject: "+orDefault(ticket.Email.Subject, "No Subject"),
		"Date: "+orDefault(ticket.Email.Date, "Unknown"),
	)

	if ticket.Email.BodyPreview != "" {
		parts = append(parts, "", "Email Preview:", ticket.Email.BodyPreview)
	}

	if ticket.Category.Reasoning != "" {
		parts = append(parts, "",
			"Categorization:",
			"Category: "+orDefault(ticket.Category.Category, "General"),
			"Reasoning: "+ticket.Category.Reasoning,
		)
	}

	parts = append(parts, "", "Auto-generated: "+c.now().Format(time.RFC3339))

	return strings.Join(parts, "\n")
}

// truncate limits s to at most limit characters. Limits are counted in
// runes, not bytes, so multibyte input is never cut mid-character.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
