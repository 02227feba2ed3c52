// Package tracker watches created incidents and polls ServiceNow for status
// changes until they reach a closed state.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cragr/email2snow-agent/internal/metrics"
	"github.com/cragr/email2snow-agent/internal/models"
	"github.com/cragr/email2snow-agent/internal/ticket"
)

// StatusAgent is the slice of the intake agent the tracker uses.
type StatusAgent interface {
	GetIncidentStatus(ctx context.Context, sysID string) ticket.StatusResult
}

// StatusChange records one observed state transition of a tracked ticket.
type StatusChange struct {
	State     string
	StateName string
	Previous  string
	Timestamp time.Time
}

type trackedTicket struct {
	sysID       string
	number      string
	callerEmail string
	createdAt   time.Time
	lastChecked time.Time
	lastState   string
	history     []StatusChange
}

// Tracker holds the in-memory set of tickets being watched. The set lives
// for the process lifetime; tickets leave it only once a closed state has
// been observed.
type Tracker struct {
	agent  StatusAgent
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	tickets map[string]*trackedTicket
}

// New creates an empty Tracker.
func New(agent StatusAgent, logger *slog.Logger) *Tracker {
	return &Tracker{
		agent:   agent,
		logger:  logger,
		now:     time.Now,
		tickets: make(map[string]*trackedTicket),
	}
}

// Track starts watching a newly created ticket.
func (t *Tracker) Track(sysID, number, callerEmail string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tickets[sysID] = &trackedTicket{
		sysID:       sysID,
		number:      number,
		callerEmail: callerEmail,
		createdAt:   t.now(),
	}
	metrics.TrackedTickets.Set(float64(len(t.tickets)))

	t.logger.Info("started tracking ticket",
		"ticket_number", number,
		"sys_id", sysID,
		"caller_email", callerEmail,
	)
}

// Count returns the number of tickets currently tracked.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tickets)
}

// CheckAll polls the status of every tracked ticket and drops the ones that
// have reached a closed state.
func (t *Tracker) CheckAll(ctx context.Context) {
	sysIDs := t.snapshot()
	if len(sysIDs) == 0 {
		t.logger.Debug("no tickets to track")
		return
	}

	t.logger.Info("checking tracked tickets", "count", len(sysIDs))

	var removed int
	for _, sysID := range sysIDs {
		if ctx.Err() != nil {
			return
		}
		if t.checkOne(ctx, sysID) {
			removed++
		}
	}

	t.mu.Lock()
	metrics.TrackedTickets.Set(float64(len(t.tickets)))
	t.mu.Unlock()

	t.logger.Info("ticket status check complete", "removed", removed)
}

// checkOne polls a single ticket and reports whether it was removed from
// tracking.
func (t *Tracker) checkOne(ctx context.Context, sysID string) bool {
	status := t.agent.GetIncidentStatus(ctx, sysID)

	t.mu.Lock()
	defer t.mu.Unlock()

	tt, ok := t.tickets[sysID]
	if !ok {
		return false
	}

	if !status.Found {
		t.logger.Warn("tracked ticket not found in ServiceNow",
			"ticket_number", tt.number,
			"sys_id", sysID,
		)
		return false
	}

	tt.lastChecked = t.now()

	if status.State != tt.lastState {
		t.logger.Info("ticket status change",
			"ticket_number", tt.number,
			"previous_state", tt.lastState,
			"state", status.State,
			"state_name", status.StateName,
		)
		tt.history = append(tt.history, StatusChange{
			State:     status.State,
			StateName: status.StateName,
			Previous:  tt.lastState,
			Timestamp: tt.lastChecked,
		})
		tt.lastState = status.State
	}

	if models.ClosedStates[tt.lastState] {
		delete(t.tickets, sysID)
		t.logger.Info("removed closed ticket from tracking",
			"ticket_number", tt.number,
			"state_name", status.StateName,
		)
		return true
	}

	return false
}

// snapshot returns the sys_ids of all tracked tickets.
func (t *Tracker) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	sysIDs := make([]string, 0, len(t.tickets))
	for sysID := range t.tickets {
		sysIDs = append(sysIDs, sysID)
	}
	return sysIDs
}
