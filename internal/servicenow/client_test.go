package servicenow

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/cragr/email2snow-agent/internal/config"
	"github.com/cragr/email2snow-agent/internal/models"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestClient(serverURL string) *Client {
	cfg := &config.Config{
		ServiceNowInstanceURL: serverURL,
		ServiceNowUsername:    "testuser",
		ServiceNowPassword:    "testpass",
	}
	client := NewClient(cfg, newTestLogger())
	// Disable retries for testing
	client.retryConfig.MaxAttempts = 1
	return client
}

func TestClient_CreateIncident(t *testing.T) {
	var receivedBody models.IncidentPayload
	var receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/now/table/incident" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			t.Error("expected basic auth")
		}
		receivedAuth = user + ":" + pass

		if err := json.NewDecoder(r.Body).Decode(&receivedBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(incidentResponse{
			Result: models.IncidentRecord{
				SysID:  "abc123",
				Number: "INC0001234",
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	incident := models.IncidentPayload{
		ShortDescription: "VPN not working",
		Description:      "Test description",
		Category:         "Software",
		Priority:         "3",
		Urgency:          "3",
		ContactType:      "Email",
	}

	result, err := client.CreateIncident(context.Background(), incident)
	if err != nil {
		t.Fatalf("CreateIncident() error = %v", err)
	}

	if receivedAuth != "testuser:testpass" {
		t.Errorf("expected auth 'testuser:testpass', got %q", receivedAuth)
	}
	if receivedBody.ShortDescription != "VPN not working" {
		t.Errorf("expected short_description forwarded, got %q", receivedBody.ShortDescription)
	}
	if receivedBody.ContactType != "Email" {
		t.Errorf("expected contact_type 'Email', got %q", receivedBody.ContactType)
	}

	if result.Number != "INC0001234" {
		t.Errorf("expected incident number 'INC0001234', got %q", result.Number)
	}
	if result.SysID != "abc123" {
		t.Errorf("expected sys_id 'abc123', got %q", result.SysID)
	}
}

func TestClient_CreateIncident_NestedErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"Insufficient rights","detail":"ACL denied"},"status":"failure"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.CreateIncident(context.Background(), models.IncidentPayload{})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Insufficient rights: ACL denied" {
		t.Errorf("expected normalized nested error message, got %q", err.Error())
	}
}

func TestClient_LookupUserByEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/now/table/sys_user" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("sysparm_query"); got != "email=jane@example.com" {
			t.Errorf("unexpected sysparm_query %q", got)
		}
		if got := r.URL.Query().Get("sysparm_limit"); got != "1" {
			t.Errorf("unexpected sysparm_limit %q", got)
		}

		json.NewEncoder(w).Encode(userListResponse{
			Result: []models.UserRecord{
				{SysID: "user-1", Name: "Jane Doe", Email: "jane@example.com"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	user, err := client.LookupUserByEmail(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("LookupUserByEmail() error = %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.SysID != "user-1" || user.Name != "Jane Doe" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestClient_LookupUserByEmail_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(userListResponse{Result: []models.UserRecord{}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	user, err := client.LookupUserByEmail(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("LookupUserByEmail() error = %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for unknown email, got %+v", user)
	}
}

func TestClient_LookupGroupByName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/now/table/sys_user_group" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("sysparm_query"); got != "name=IT Support" {
			t.Errorf("unexpected sysparm_query %q", got)
		}

		json.NewEncoder(w).Encode(groupListResponse{
			Result: []models.GroupRecord{
				{SysID: "group-1", Name: "IT Support", Active: "true"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	group, err := client.LookupGroupByName(context.Background(), "IT Support")
	if err != nil {
		t.Fatalf("LookupGroupByName() error = %v", err)
	}
	if group == nil || group.SysID != "group-1" {
		t.Errorf("unexpected group: %+v", group)
	}
}

func TestClient_CreateUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/now/table/sys_user" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}

		var payload models.UserPayload
		json.NewDecoder(r.Body).Decode(&payload)
		if payload.LastName != "External" || !payload.Active {
			t.Errorf("unexpected user payload: %+v", payload)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(userResponse{
			Result: models.UserRecord{SysID: "new-user", Name: "sam External"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	user, err := client.CreateUser(context.Background(), models.UserPayload{
		Email:     "sam@x.com",
		UserName:  "sam",
		FirstName: "sam",
		LastName:  "External",
		Active:    true,
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.SysID != "new-user" {
		t.Errorf("expected created sys_id, got %q", user.SysID)
	}
}

func TestClient_UpdateIncident(t *testing.T) {
	var receivedFields map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if r.URL.Path != "/api/now/table/incident/sys-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&receivedFields)
		w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	err := client.UpdateIncident(context.Background(), "sys-1", map[string]any{"state": "6"})
	if err != nil {
		t.Fatalf("UpdateIncident() error = %v", err)
	}
	if receivedFields["state"] != "6" {
		t.Errorf("expected state field forwarded, got %v", receivedFields)
	}
}

func TestClient_GetIncident_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"No Record found","detail":""},"status":"failure"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	record, err := client.GetIncident(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetIncident() error = %v", err)
	}
	if record != nil {
		t.Errorf("expected nil for missing record, got %+v", record)
	}
}

func TestClient_AddComment(t *testing.T) {
	var receivedFields map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&receivedFields)
		w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	err := client.AddComment(context.Background(), "sys-1", "looking into it", "work_notes")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if receivedFields["work_notes"] != "looking into it" {
		t.Errorf("expected work_notes field, got %v", receivedFields)
	}
}

func TestClient_SearchIncidentsByCallerEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/sys_user"):
			json.NewEncoder(w).Encode(userListResponse{
				Result: []models.UserRecord{{SysID: "user-1", Name: "Jane Doe"}},
			})
		case strings.HasSuffix(r.URL.Path, "/incident"):
			query := r.URL.Query().Get("sysparm_query")
			if !strings.HasPrefix(query, "caller_id=user-1^sys_created_on>=") {
				t.Errorf("unexpected sysparm_query %q", query)
			}
			json.NewEncoder(w).Encode(incidentListResponse{
				Result: []models.IncidentRecord{
					{SysID: "inc-1", Number: "INC0000042", State: "2"},
				},
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	incidents, err := client.SearchIncidentsByCallerEmail(context.Background(), "jane@example.com", 30)
	if err != nil {
		t.Fatalf("SearchIncidentsByCallerEmail() error = %v", err)
	}
	if len(incidents) != 1 || incidents[0].Number != "INC0000042" {
		t.Errorf("unexpected incidents: %+v", incidents)
	}
}

func TestClient_SearchIncidentsByCallerEmail_UnknownUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(userListResponse{Result: []models.UserRecord{}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	incidents, err := client.SearchIncidentsByCallerEmail(context.Background(), "ghost@example.com", 30)
	if err != nil {
		t.Fatalf("SearchIncidentsByCallerEmail() error = %v", err)
	}
	if incidents == nil || len(incidents) != 0 {
		t.Errorf("expected empty list for unknown user, got %+v", incidents)
	}
}

func TestClient_TestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(incidentListResponse{Result: []models.IncidentRecord{}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if err := client.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection() error = %v", err)
	}
}

func TestClient_TestConnection_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"User Not Authenticated","detail":"Required to provide Auth information"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	err := client.TestConnection(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "User Not Authenticated") {
		t.Errorf("expected normalized auth error, got %q", err.Error())
	}
}
