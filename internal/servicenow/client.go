package servicenow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cragr/email2snow-agent/internal/config"
	"github.com/cragr/email2snow-agent/internal/metrics"
	"github.com/cragr/email2snow-agent/internal/models"
)

const tableAPIPath = "/api/now/table"

// Client handles communication with the ServiceNow Table API.
type Client struct {
	baseURL     string
	username    string
	password    string
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// NewClient creates a new ServiceNow API client.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     cfg.ServiceNowInstanceURL,
		username:    cfg.ServiceNowUsername,
		password:    cfg.ServiceNowPassword,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		retryConfig: DefaultRetryConfig(),
		logger:      logger,
	}
}

// CreateIncidentResult contains the result of creating an incident.
type CreateIncidentResult struct {
	SysID  string
	Number string
}

// CreateIncident creates a new incident and returns its number and sys_id.
func (c *Client) CreateIncident(ctx context.Context, incident models.IncidentPayload) (*CreateIncidentResult, error) {
	c.logger.Debug("creating incident in ServiceNow",
		"short_description", incident.ShortDescription,
		"category", incident.Category,
	)

	var resp incidentResponse
	if err := c.do(ctx, "create_incident", http.MethodPost, "incident", nil, incident, &resp); err != nil {
		return nil, err
	}

	return &CreateIncidentResult{
		SysID:  resp.Result.SysID,
		Number: resp.Result.Number,
	}, nil
}

// UpdateIncident applies the given fields to an existing incident.
func (c *Client) UpdateIncident(ctx context.Context, sysID string, fields map[string]any) error {
	c.logger.Debug("updating incident in ServiceNow", "sys_id", sysID)

	return c.do(ctx, "update_incident", http.MethodPatch, "incident/"+url.PathEscape(sysID), nil, fields, nil)
}

// GetIncident fetches an incident by sys_id. Returns nil without an error
// when the record does not exist.
func (c *Client) GetIncident(ctx context.Context, sysID string) (*models.IncidentRecord, error) {
	var resp incidentResponse
	err := c.do(ctx, "get_incident", http.MethodGet, "incident/"+url.PathEscape(sysID), nil, nil, &resp)
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	if resp.Result.SysID == "" {
		return nil, nil
	}
	return &resp.Result, nil
}

// AddComment appends a comment or work note to an incident. The commentType
// is the incident journal field name, "work_notes" or "comments".
func (c *Client) AddComment(ctx context.Context, sysID, comment, commentType string) error {
	return c.UpdateIncident(ctx, sysID, map[string]any{commentType: comment})
}

// LookupUserByEmail finds a sys_user record by email address. Returns nil
// without an error when no user matches.
func (c *Client) LookupUserByEmail(ctx context.Context, email string) (*models.UserRecord, error) {
	return c.lookupUser(ctx, "lookup_user_by_email", "email="+email)
}

// LookupUserByUsername finds a sys_user record by user_name. Returns nil
// without an error when no user matches.
func (c *Client) LookupUserByUsername(ctx context.Context, username string) (*models.UserRecord, error) {
	return c.lookupUser(ctx, "lookup_user_by_username", "user_name="+username)
}

func (c *Client) lookupUser(ctx context.Context, operation, query string) (*models.UserRecord, error) {
	params := url.Values{
		"sysparm_query": {query},
		"sysparm_limit": {"1"},
	}

	var resp userListResponse
	if err := c.do(ctx, operation, http.MethodGet, "sys_user", params, nil, &resp); err != nil {
		return nil, err
	}

	if len(resp.Result) == 0 {
		return nil, nil
	}
	return &resp.Result[0], nil
}

// LookupGroupByName finds a sys_user_group record by name. Returns nil
// without an error when no group matches.
func (c *Client) LookupGroupByName(ctx context.Context, name string) (*models.GroupRecord, error) {
	params := url.Values{
		"sysparm_query": {"name=" + name},
		"sysparm_limit": {"1"},
	}

	var resp groupListResponse
	if err := c.do(ctx, "lookup_group_by_name", http.MethodGet, "sys_user_group", params, nil, &resp); err != nil {
		return nil, err
	}

	if len(resp.Result) == 0 {
		return nil, nil
	}
	return &resp.Result[0], nil
}

// CreateUser creates a new sys_user record.
func (c *Client) CreateUser(ctx context.Context, user models.UserPayload) (*models.UserRecord, error) {
	c.logger.Debug("creating user in ServiceNow", "user_name", user.UserName)

	var resp userResponse
	if err := c.do(ctx, "create_user", http.MethodPost, "sys_user", nil, user, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// SearchIncidentsByCallerEmail returns incidents raised by the user with the
// given email address within the last daysBack days. An unknown email yields
// an empty list.
func (c *Client) SearchIncidentsByCallerEmail(ctx context.Context, email string, daysBack int) ([]models.IncidentRecord, error) {
	user, err := c.LookupUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return []models.IncidentRecord{}, nil
	}

	since := time.Now().AddDate(0, 0, -daysBack).Format("2006-01-02")
	params := url.Values{
		"sysparm_query": {fmt.Sprintf("caller_id=%s^sys_created_on>=%s", user.SysID, since)},
		"sysparm_limit": {"100"},
		"sysparm_order": {"sys_created_on"},
	}

	var resp incidentListResponse
	if err := c.do(ctx, "search_incidents", http.MethodGet, "incident", params, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Result == nil {
		return []models.IncidentRecord{}, nil
	}
	return resp.Result, nil
}

// TestConnection issues a minimal query against the incident table to verify
// connectivity and credentials.
func (c *Client) TestConnection(ctx context.Context) error {
	params := url.Values{"sysparm_limit": {"1"}}

	var resp incidentListResponse
	return c.do(ctx, "test_connection", http.MethodGet, "incident", params, nil, &resp)
}

// do performs one Table API request with retries, decoding the JSON response
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, payload, out any) error {
	endpoint := c.baseURL + tableAPIPath + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	err := withRetry(ctx, c.retryConfig, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if err := c.checkResponse(resp); err != nil {
			return err
		}

		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}

		return nil
	})

	if err != nil {
		metrics.ServiceNowRequests.WithLabelValues(operation, "error").Inc()
		return err
	}

	metrics.ServiceNowRequests.WithLabelValues(operation, "success").Inc()
	return nil
}

// setHeaders sets common headers for ServiceNow API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// checkResponse validates the HTTP response from ServiceNow. Error bodies
// arrive either as plain text or as a nested {"error":{"message":...}}
// object; both collapse to a single message string here.
func (c *Client) checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	message := fmt.Sprintf("ServiceNow API returned status %d: %s", resp.StatusCode, string(body))

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
		if envelope.Error.Detail != "" {
			message += ": " + envelope.Error.Detail
		}
	}

	c.logger.Error("ServiceNow API error",
		"status_code", resp.StatusCode,
		"error", message,
	)

	return &apiError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// Table API response envelopes.
type incidentResponse struct {
	Result models.IncidentRecord `json:"result"`
}

type incidentListResponse struct {
	Result []models.IncidentRecord `json:"result"`
}

type userResponse struct {
	Result models.UserRecord `json:"result"`
}

type userListResponse struct {
	Result []models.UserRecord `json:"result"`
}

type groupListResponse struct {
	Result []models.GroupRecord `json:"result"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}
