package attio

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/someengineering/fixattiosync/internal/fix"
)

func rawRecord(t *testing.T, values map[string][]map[string]any) recordPayload {
	t.Helper()
	payload := map[string]any{
		"id": map[string]any{
			"object_id":    uuid.NewString(),
			"record_id":    uuid.NewString(),
			"workspace_id": uuid.NewString(),
		},
		"created_at": "2024-01-15T10:30:00Z",
		"values":     values,
	}
	encoded, err := json.Marshal(payload)
	require.NoError(t, err)
	var raw recordPayload
	require.NoError(t, json.Unmarshal(encoded, &raw))
	return raw
}

func TestParseWorkspace(t *testing.T) {
	fixID := uuid.New()
	raw := rawRecord(t, map[string][]map[string]any{
		"name":                    {{"value": "Acme"}},
		"product_tier":            {{"option": map[string]any{"title": "Enterprise"}}},
		"status":                  {{"status": map[string]any{"title": "Subscribed"}}},
		"cloud_account_connected": {{"value": true}},
		"workspace_id":            {{"value": fixID.String()}},
	})

	workspace := parseWorkspace(raw, zerolog.Nop())
	assert.Equal(t, "Acme", workspace.Name)
	assert.Equal(t, "Enterprise", workspace.Tier)
	assert.Equal(t, "Subscribed", workspace.Status)
	assert.True(t, workspace.CloudAccountConnected)
	assert.Equal(t, fixID, workspace.FixWorkspaceID)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), workspace.CreatedAt)
}

func TestParseWorkspaceMalformedBusinessKey(t *testing.T) {
	raw := rawRecord(t, map[string][]map[string]any{
		"name":         {{"value": "Broken"}},
		"workspace_id": {{"value": "not-a-uuid"}},
	})

	workspace := parseWorkspace(raw, zerolog.Nop())
	assert.Equal(t, uuid.Nil, workspace.FixWorkspaceID)
	assert.Equal(t, "Broken", workspace.Name)
}

func TestParseUserWithReferences(t *testing.T) {
	fixID := uuid.New()
	personRef := uuid.New()
	workspaceRefA := uuid.New()
	workspaceRefB := uuid.New()
	raw := rawRecord(t, map[string][]map[string]any{
		"primary_email_address": {{"email_address": "jane@example.com"}},
		"status":                {{"status": map[string]any{"title": "Signed up"}}},
		"user_id":               {{"value": fixID.String()}},
		"person":                {{"target_record_id": personRef.String()}},
		"workspace": {
			{"target_record_id": workspaceRefA.String()},
			{"target_record_id": workspaceRefB.String()},
			{"target_record_id": "garbage"},
		},
		"email_notifications_disabled": {{"value": true}},
		"best_workspace_name":          {{"value": "Acme"}},
	})

	user := parseUser(raw, zerolog.Nop())
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, "Signed up", user.Status)
	assert.Equal(t, fixID, user.FixUserID)
	assert.Equal(t, personRef, user.PersonID)
	assert.Equal(t, []uuid.UUID{workspaceRefA, workspaceRefB}, user.WorkspaceRefs)
	assert.True(t, user.EmailNotificationsDisabled)
	assert.False(t, user.MainUser)
	assert.Equal(t, "Acme", user.BestWorkspaceName)
}

func TestParsePerson(t *testing.T) {
	raw := rawRecord(t, map[string][]map[string]any{
		"name": {{
			"full_name":  "Jane Doe",
			"first_name": "Jane",
			"last_name":  "Doe",
		}},
		"email_addresses": {{"email_address": "jane@example.com"}},
		"job_title":       {{"value": "CTO"}},
		"linkedin":        {{"value": "https://linkedin.com/in/janedoe"}},
	})

	person := parsePerson(raw, zerolog.Nop())
	assert.Equal(t, "Jane Doe", person.FullName)
	assert.Equal(t, "Jane", person.FirstName)
	assert.Equal(t, "Doe", person.LastName)
	assert.Equal(t, "jane@example.com", person.Email)
	assert.Equal(t, "CTO", person.JobTitle)
	assert.Equal(t, "https://linkedin.com/in/janedoe", person.LinkedIn)
}

func TestParseUnsetFieldsDegradeToZeroValues(t *testing.T) {
	raw := rawRecord(t, map[string][]map[string]any{})
	workspace := parseWorkspace(raw, zerolog.Nop())
	assert.Empty(t, workspace.Name)
	assert.Empty(t, workspace.Tier)
	assert.Equal(t, uuid.Nil, workspace.FixWorkspaceID)
}

// canonicalValues rebuilds the query-response value shape from an upsert
// body, the way the API echoes asserted values back.
func canonicalValues(t *testing.T, values map[string]any) map[string][]map[string]any {
	t.Helper()
	out := map[string][]map[string]any{}
	for field, value := range values {
		switch typed := value.(type) {
		case []map[string]any:
			out[field] = typed
		case map[string]any:
			out[field] = []map[string]any{typed}
		case bool:
			out[field] = []map[string]any{{"value": typed}}
		case string:
			switch field {
			case "product_tier":
				out[field] = []map[string]any{{"option": map[string]any{"title": typed}}}
			case "status":
				out[field] = []map[string]any{{"status": map[string]any{"title": typed}}}
			default:
				out[field] = []map[string]any{{"value": typed}}
			}
		default:
			t.Fatalf("unhandled value type %T for field %s", value, field)
		}
	}
	return out
}

func TestWorkspaceAssertionRoundTrip(t *testing.T) {
	workspace := &fix.Workspace{
		ID:                    uuid.New(),
		Name:                  "Acme",
		Tier:                  "Enterprise",
		Status:                fix.StatusCollected,
		CloudAccountConnected: true,
	}

	body := WorkspaceAssertion(workspace)
	raw := rawRecord(t, canonicalValues(t, body.Data.Values))
	parsed := parseWorkspace(raw, zerolog.Nop())

	assert.Equal(t, workspace.ID, parsed.FixWorkspaceID)
	assert.Equal(t, workspace.Name, parsed.Name)
	assert.Equal(t, workspace.Tier, parsed.Tier)
	assert.Equal(t, workspace.Status.String(), parsed.Status)
	assert.Equal(t, workspace.CloudAccountConnected, parsed.CloudAccountConnected)
}

func TestUserAssertionRoundTrip(t *testing.T) {
	user := &fix.User{
		ID:                         uuid.New(),
		Email:                      "jane@example.com",
		IsActive:                   true,
		EmailNotificationsDisabled: true,
		CloudAccountConnected:      true,
		MainUser:                   true,
		BestWorkspaceName:          "Acme",
		BestWorkspaceSubscribed:    true,
	}
	person := &Person{identity: identity{RecordID: uuid.New()}}
	workspace := &Workspace{identity: identity{RecordID: uuid.New()}}

	body := UserAssertion(user, person, []*Workspace{workspace})
	raw := rawRecord(t, canonicalValues(t, body.Data.Values))
	parsed := parseUser(raw, zerolog.Nop())

	assert.Equal(t, user.ID, parsed.FixUserID)
	assert.Equal(t, user.Email, parsed.Email)
	assert.Equal(t, "Signed up", parsed.Status)
	assert.Equal(t, person.RecordID, parsed.PersonID)
	assert.Equal(t, []uuid.UUID{workspace.RecordID}, parsed.WorkspaceRefs)
	assert.True(t, parsed.EmailNotificationsDisabled)
	assert.True(t, parsed.CloudAccountConnected)
	assert.True(t, parsed.MainUser)
	assert.Equal(t, "Acme", parsed.BestWorkspaceName)
	assert.True(t, parsed.BestWorkspaceSubscribed)
}
