// Package ticket implements the email-to-incident intake pipeline: identity
// resolution with layered fallbacks, category mapping, payload composition
// and the incident lifecycle operations.
package ticket

import (
	"context"
	"log/slog"
	"time"

	"github.com/cragr/email2snow-agent/internal/config"
	"github.com/cragr/email2snow-agent/internal/metrics"
	"github.com/cragr/email2snow-agent/internal/models"
	"github.com/cragr/email2snow-agent/internal/servicenow"
)

// API is the surface of the ServiceNow client the pipeline depends on.
type API interface {
	LookupUserByEmail(ctx context.Context, email string) (*models.UserRecord, error)
	LookupUserByUsername(ctx context.Context, username string) (*models.UserRecord, error)
	LookupGroupByName(ctx context.Context, name string) (*models.GroupRecord, error)
	CreateUser(ctx context.Context, user models.UserPayload) (*models.UserRecord, error)
	CreateIncident(ctx context.Context, incident models.IncidentPayload) (*servicenow.CreateIncidentResult, error)
	UpdateIncident(ctx context.Context, sysID string, fields map[string]any) error
	GetIncident(ctx context.Context, sysID string) (*models.IncidentRecord, error)
	AddComment(ctx context.Context, sysID, comment, commentType string) error
	SearchIncidentsByCallerEmail(ctx context.Context, email string, daysBack int) ([]models.IncidentRecord, error)
	TestConnection(ctx context.Context) error
}

// DefaultResolutionCode is applied when an incident is closed without an
// explicit resolution code.
const DefaultResolutionCode = "Closed/Resolved by Caller"

// CreateResult is the outcome of an incident creation run.
type CreateResult struct {
	Success         bool   `json:"success"`
	TicketNumber    string `json:"ticket_number,omitempty"`
	SysID           string `json:"sys_id,omitempty"`
	AssignmentGroup string `json:"assignment_group,omitempty"`
	AssignedUser    string `json:"assigned_user,omitempty"`
	Caller          string `json:"caller,omitempty"`
	Error           string `json:"error,omitempty"`
}

// UpdateResult is the outcome of an update, close or comment operation.
type UpdateResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StatusResult is the outcome of a status fetch.
type StatusResult struct {
	Found           bool   `json:"found"`
	State           string `json:"state,omitempty"`
	StateName       string `json:"state_name,omitempty"`
	ResolutionCode  string `json:"resolution_code,omitempty"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`
	Updated         string `json:"updated,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Agent runs the intake pipeline and the incident lifecycle operations.
// Every operation returns a result value; errors never cross this boundary.
type Agent struct {
	api            API
	resolver       *Resolver
	composer       *Composer
	routing        config.RoutingConfig
	searchDaysBack int
	logger         *slog.Logger
	now            func() time.Time
}

// NewAgent creates an Agent with a fresh resolver cache.
func NewAgent(api API, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		api:            api,
		resolver:       NewResolver(api, cfg, logger),
		composer:       NewComposer(),
		routing:        cfg.Routing,
		searchDaysBack: cfg.SearchDaysBack,
		logger:         logger,
		now:            time.Now,
	}
}

// CreateIncident resolves identities for the ticket, composes the incident
// payload and submits it to ServiceNow.
func (a *Agent) CreateIncident(ctx context.Context, ticket models.TicketData) CreateResult {
	a.logger.Info("creating ServiceNow incident", "from", orDefault(ticket.Email.From, "unknown"))

	category := orDefault(ticket.Category.Category, "General")

	caller := a.resolver.ResolveCaller(ctx, ticket.Email.From)
	group := a.resolver.ResolveAssignmentGroup(ctx, category)
	assignee := a.resolver.ResolveAssignedUser(ctx, category)

	payload := a.composer.BuildPayload(ticket, caller, group, assignee,
		MapCategory(a.routing.CategoryMapping, category))

	result, err := a.api.CreateIncident(ctx, payload)
	if err != nil {
		a.logger.Error("failed to create incident", "error", err)
		metrics.TicketsProcessed.WithLabelValues("failed").Inc()
		return CreateResult{Success: false, Error: err.Error()}
	}

	a.logger.Info("created incident",
		"ticket_number", result.Number,
		"sys_id", result.SysID,
		"assignment_group", group.Name,
		"assigned_user", assignee.Name,
		"caller", caller.Name,
	)
	metrics.TicketsProcessed.WithLabelValues("created").Inc()

	return CreateResult{
		Success:         true,
		TicketNumber:    result.Number,
		SysID:           result.SysID,
		AssignmentGroup: group.Name,
		AssignedUser:    assignee.Name,
		Caller:          caller.Name,
	}
}

// UpdateIncident applies the given fields to an existing incident.
func (a *Agent) UpdateIncident(ctx context.Context, sysID string, fields map[string]any) UpdateResult {
	if err := a.api.UpdateIncident(ctx, sysID, fields); err != nil {
		a.logger.Error("failed to update incident", "sys_id", sysID, "error", err)
		return UpdateResult{Success: false, Error: err.Error()}
	}
	return UpdateResult{Success: true}
}

// CloseIncident moves an incident to the closed state, stamping the close and
// resolve times with the current local time. An empty resolutionCode falls
// back to DefaultResolutionCode.
func (a *Agent) CloseIncident(ctx context.Context, sysID, resolutionCode, resolutionNotes string) UpdateResult {
	if resolutionCode == "" {
		resolutionCode = DefaultResolutionCode
	}

	now := a.now().Format("2006-01-02 15:04:05")
	fields := map[string]any{
		"state":            models.StateResolved,
		"resolution_code":  resolutionCode,
		"resolution_notes": resolutionNotes,
		"closed_at":        now,
		"resolved_at":      now,
	}

	result := a.UpdateIncident(ctx, sysID, fields)
	if result.Success {
		a.logger.Info("closed incident", "sys_id", sysID)
	}
	return result
}

// GetIncidentStatus fetches the current state of an incident.
func (a *Agent) GetIncidentStatus(ctx context.Context, sysID string) StatusResult {
	record, err := a.api.GetIncident(ctx, sysID)
	if err != nil {
		a.logger.Error("failed to get incident status", "sys_id", sysID, "error", err)
		return StatusResult{Found: false, Error: err.Error()}
	}
	if record == nil {
		return StatusResult{Found: false}
	}

	return StatusResult{
		Found:           true,
		State:           record.State,
		StateName:       models.StateName(record.State),
		ResolutionCode:  record.ResolutionCode,
		ResolutionNotes: record.ResolutionNotes,
		Updated:         record.UpdatedOn,
	}
}

// AddComment appends a comment or work note to an incident. An empty
// commentType defaults to "work_notes".
func (a *Agent) AddComment(ctx context.Context, sysID, comment, commentType string) UpdateResult {
	if commentType == "" {
		commentType = "work_notes"
	}

	if err := a.api.AddComment(ctx, sysID, comment, commentType); err != nil {
		a.logger.Error("failed to add comment", "sys_id", sysID, "error", err)
		return UpdateResult{Success: false, Error: err.Error()}
	}

	a.logger.Debug("added comment to incident", "sys_id", sysID)
	return UpdateResult{Success: true}
}

// SearchIncidentsByEmail returns recent incidents raised by the given caller
// email. Failures degrade to an empty list. A daysBack of zero or less uses
// the configured search window.
func (a *Agent) SearchIncidentsByEmail(ctx context.Context, email string, daysBack int) []models.IncidentRecord {
	if daysBack <= 0 {
		daysBack = a.searchDaysBack
	}

	incidents, err := a.api.SearchIncidentsByCallerEmail(ctx, email, daysBack)
	if err != nil {
		a.logger.Error("failed to search incidents", "email", email, "error", err)
		return []models.IncidentRecord{}
	}

	a.logger.Debug("found incidents for caller", "email", email, "count", len(incidents))
	return incidents
}

// ValidateConnection reports whether ServiceNow is reachable with the
// configured credentials.
func (a *Agent) ValidateConnection(ctx context.Context) bool {
	if err := a.api.TestConnection(ctx); err != nil {
		a.logger.Error("ServiceNow connection validation failed", "error", err)
		return false
	}
	return true
}
