package models

// IncidentPayload is the record submitted to the ServiceNow incident table.
type IncidentPayload struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	CallerID         string `json:"caller_id"`
	Category         string `json:"category"`
	Subcategory      string `json:"subcategory"`
	Priority         string `json:"priority"`
	Urgency          string `json:"urgency"`
	AssignmentGroup  string `json:"assignment_group"`
	AssignedTo       string `json:"assigned_to"`
	ContactType      string `json:"contact_type"`
	SourceEmail      string `json:"u_source_email"`
	EmailSubject     string `json:"u_email_subject"`
	Comments         string `json:"comments"`
}

// UserPayload is the record submitted to the sys_user table when
// auto-creating an unknown caller.
type UserPayload struct {
	Email     string `json:"email"`
	UserName  string `json:"user_name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Active    bool   `json:"active"`
}

// UserRecord is a row from the sys_user table. The Table API returns all
// field values as strings.
type UserRecord struct {
	SysID    string `json:"sys_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	UserName string `json:"user_name"`
	Active   string `json:"active"`
}

// GroupRecord is a row from the sys_user_group table.
type GroupRecord struct {
	SysID       string `json:"sys_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      string `json:"active"`
}

// IncidentRecord is a row from the incident table.
type IncidentRecord struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	State            string `json:"state"`
	Priority         string `json:"priority"`
	Urgency          string `json:"urgency"`
	Category         string `json:"category"`
	Subcategory      string `json:"subcategory"`
	ResolutionCode   string `json:"resolution_code"`
	ResolutionNotes  string `json:"resolution_notes"`
	CreatedOn        string `json:"sys_created_on"`
	UpdatedOn        string `json:"sys_updated_on"`
}

// ServiceNow incident state codes.
const (
	StateNew        = "1"
	StateInProgress = "2"
	StateOnHold     = "3"
	StateResolved   = "6"
	StateClosed     = "7"
	StateCanceled   = "8"
)

// StateNames maps incident state codes to their display names.
var StateNames = map[string]string{
	StateNew:        "New",
	StateInProgress: "In Progress",
	StateOnHold:     "On Hold",
	StateResolved:   "Resolved",
	StateClosed:     "Closed",
	StateCanceled:   "Canceled",
}

// ClosedStates are the state codes after which a ticket no longer needs
// tracking.
var ClosedStates = map[string]bool{
	StateResolved: true,
	StateClosed:   true,
	StateCanceled: true,
}

// StateName returns the display name for a state code, or "Unknown".
func StateName(state string) string {
	if name, ok := StateNames[state]; ok {
		return name
	}
	return "Unknown"
}
