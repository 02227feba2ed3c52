// Package models defines the ticket intake bundle and the ServiceNow
// Table API payload and response shapes.
package models

// EmailData holds the metadata of the source email a ticket was derived from.
type EmailData struct {
	From        string `json:"from"`
	Subject     string `json:"subject"`
	Date        string `json:"date"`
	MessageID   string `json:"message_id"`
	BodyPreview string `json:"body_preview"`
}

// SummaryData holds the generated summary of the email.
type SummaryData struct {
	Description string `json:"description"`
}

// CategoryData holds the categorization result for the email.
type CategoryData struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Priority    string `json:"priority"`
	Urgency     string `json:"urgency"`
	Reasoning   string `json:"reasoning"`
}

// TicketData is the input bundle for one intake run. All fields are optional;
// missing values are resolved to defaults at composition time.
type TicketData struct {
	Email            EmailData    `json:"email"`
	Summary          SummaryData  `json:"summary"`
	Category         CategoryData `json:"category"`
	ShortDescription string       `json:"short_description"`
}

// Identity is a resolved caller, assignment group or assigned user.
// A resolution always yields an Identity; an empty SysID means the record
// could not be matched in ServiceNow.
type Identity struct {
	SysID string `json:"sys_id" yaml:"sys_id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}
