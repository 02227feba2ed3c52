// Package webhook handles HTTP ticket intake requests.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/cragr/email2snow-agent/internal/models"
	"github.com/cragr/email2snow-agent/internal/ticket"
)

// IntakeAgent defines the interface for running a ticket through the
// intake pipeline.
type IntakeAgent interface {
	CreateIncident(ctx context.Context, data models.TicketData) ticket.CreateResult
}

// TicketTracker receives successfully created tickets for status tracking.
type TicketTracker interface {
	Track(sysID, number, callerEmail string)
}

// Handler handles ticket intake requests.
type Handler struct {
	agent   IntakeAgent
	tracker TicketTracker
	logger  *slog.Logger
}

// NewHandler creates a new intake handler.
func NewHandler(agent IntakeAgent, tracker TicketTracker, logger *slog.Logger) *Handler {
	return &Handler{
		agent:   agent,
		tracker: tracker,
		logger:  logger,
	}
}

// ServeHTTP accepts a TicketData JSON document and runs it through the
// create pipeline. The pipeline itself never fails with an error; a failed
// create is reported in the response body with a 502 status.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var data models.TicketData
	if err := json.Unmarshal(body, &data); err != nil {
		h.logger.Error("failed to parse ticket payload", "error", err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	h.logger.Info("received ticket intake request",
		"from", data.Email.From,
		"subject", data.Email.Subject,
	)

	result := h.agent.CreateIncident(r.Context(), data)

	status := http.StatusCreated
	if !result.Success {
		status = http.StatusBadGateway
	} else if h.tracker != nil {
		h.tracker.Track(result.SysID, result.TicketNumber, data.Email.From)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}
