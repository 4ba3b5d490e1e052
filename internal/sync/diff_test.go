package sync

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/someengineering/fixattiosync/internal/attio"
	"github.com/someengineering/fixattiosync/internal/attio/attiotest"
	"github.com/someengineering/fixattiosync/internal/fix"
)

// fixture seeds matched source and destination graphs piece by piece.
// synced* helpers add an entity to both sides in an equivalent state;
// source* and dest* helpers add to one side only.
type fixture struct {
	server *attiotest.Server

	users      []*fix.User
	workspaces []*fix.Workspace

	workspaceRecords map[uuid.UUID]attiotest.Record
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		server:           attiotest.New(),
		workspaceRecords: map[uuid.UUID]attiotest.Record{},
	}
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) store() *attio.Store {
	client := attio.NewClient(attio.ClientOptions{
		BaseURL:    f.server.URL(),
		APIKey:     "key_123",
		HTTPClient: f.server.Client(),
		Logger:     zerolog.Nop(),
	})
	return attio.NewStore(client, zerolog.Nop())
}

func (f *fixture) snapshot() *fix.Snapshot {
	return fix.NewSnapshot(f.users, f.workspaces)
}

func (f *fixture) sourceWorkspace(name string) *fix.Workspace {
	workspace := &fix.Workspace{ID: uuid.New(), Name: name, Tier: "Free"}
	f.workspaces = append(f.workspaces, workspace)
	return workspace
}

func (f *fixture) destWorkspace(workspace *fix.Workspace) attiotest.Record {
	record := f.server.Add("workspaces", map[string]any{
		"workspace_id":            workspace.ID.String(),
		"name":                    workspace.Name,
		"product_tier":            workspace.Tier,
		"status":                  workspace.Status.String(),
		"cloud_account_connected": workspace.CloudAccountConnected,
	})
	f.workspaceRecords[workspace.ID] = record
	return record
}

func (f *fixture) syncedWorkspace(name string) *fix.Workspace {
	workspace := f.sourceWorkspace(name)
	f.destWorkspace(workspace)
	return workspace
}

func (f *fixture) sourceUser(email string, workspaces ...*fix.Workspace) *fix.User {
	user := &fix.User{ID: uuid.New(), Email: email, IsActive: true}
	for _, workspace := range workspaces {
		user.WorkspaceIDs = append(user.WorkspaceIDs, workspace.ID)
	}
	f.users = append(f.users, user)
	return user
}

func (f *fixture) destPerson(email string) attiotest.Record {
	return f.server.Add("people", map[string]any{
		"email_addresses": []map[string]any{{"email_address": email}},
	})
}

func (f *fixture) destUser(user *fix.User, person attiotest.Record) attiotest.Record {
	values := map[string]any{
		"user_id":               user.ID.String(),
		"primary_email_address": []map[string]any{{"email_address": user.Email}},
		"status":                user.StatusTitle(),
		"person": map[string]any{
			"target_object":    "people",
			"target_record_id": attiotest.RecordID(person).String(),
		},
		"email_notifications_disabled": user.EmailNotificationsDisabled,
		"cloud_account_connected":      user.CloudAccountConnected,
		"main_user":                    user.MainUser,
		"best_workspace_name":          user.BestWorkspaceName,
		"best_workspace_subscribed":    user.BestWorkspaceSubscribed,
	}
	refs := make([]map[string]any, 0, len(user.WorkspaceIDs))
	for _, workspaceID := range user.WorkspaceIDs {
		record, ok := f.workspaceRecords[workspaceID]
		if !ok {
			continue
		}
		refs = append(refs, map[string]any{
			"target_object":    "workspaces",
			"target_record_id": attiotest.RecordID(record).String(),
		})
	}
	if len(refs) > 0 {
		values["workspace"] = refs
	}
	return f.server.Add("users", values)
}

func (f *fixture) syncedUser(email string, workspaces ...*fix.Workspace) *fix.User {
	user := f.sourceUser(email, workspaces...)
	f.destUser(user, f.destPerson(email))
	return user
}

func assertEmptyResult(t *testing.T, result Result) {
	t.Helper()
	assert.Empty(t, result.MissingWorkspaces)
	assert.Empty(t, result.OutdatedWorkspaces)
	assert.Empty(t, result.ObsoleteWorkspaces)
	assert.Empty(t, result.MissingUsers)
	assert.Empty(t, result.OutdatedUsers)
	assert.Empty(t, result.ObsoleteUsers)
}

func TestDiffInSyncGraphsAreEmpty(t *testing.T) {
	f := newFixture(t)
	workspace := f.syncedWorkspace("Acme")
	f.syncedUser("jane@example.com", workspace)

	result, err := Diff(context.Background(), f.snapshot(), f.store(), zerolog.Nop())
	require.NoError(t, err)
	assertEmptyResult(t, result)
}

func TestDiffClassifiesAllSixSets(t *testing.T) {
	f := newFixture(t)
	base := f.syncedWorkspace("Base")
	f.syncedUser("base@example.com", base)

	missingWorkspace := f.sourceWorkspace("New Co")

	renamed := f.syncedWorkspace("Old Name")
	renamed.Name = "New Name"

	ghostWorkspace := &fix.Workspace{ID: uuid.New(), Name: "Gone Co", Tier: "Free"}
	f.destWorkspace(ghostWorkspace)

	missingUser := f.sourceUser("new@example.com", base)

	promoted := f.syncedUser("promoted@example.com", base)
	promoted.MainUser = true

	ghostUser := &fix.User{ID: uuid.New(), Email: "gone@example.com", IsActive: true}
	f.destUser(ghostUser, f.destPerson(ghostUser.Email))

	result, err := Diff(context.Background(), f.snapshot(), f.store(), zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, result.MissingWorkspaces, 1)
	assert.Equal(t, missingWorkspace.ID, result.MissingWorkspaces[0].ID)
	require.Len(t, result.OutdatedWorkspaces, 1)
	assert.Equal(t, renamed.ID, result.OutdatedWorkspaces[0].ID)
	require.Len(t, result.ObsoleteWorkspaces, 1)
	assert.Equal(t, ghostWorkspace.ID, result.ObsoleteWorkspaces[0].FixWorkspaceID)

	require.Len(t, result.MissingUsers, 1)
	assert.Equal(t, missingUser.ID, result.MissingUsers[0].ID)
	require.Len(t, result.OutdatedUsers, 1)
	assert.Equal(t, promoted.ID, result.OutdatedUsers[0].ID)
	require.Len(t, result.ObsoleteUsers, 1)
	assert.Equal(t, ghostUser.ID, result.ObsoleteUsers[0].FixUserID)
}

func TestDiffWorkspaceMembershipChangeMarksUserOutdated(t *testing.T) {
	f := newFixture(t)
	first := f.syncedWorkspace("First")
	second := f.syncedWorkspace("Second")
	user := f.syncedUser("jane@example.com", first)

	user.WorkspaceIDs = append(user.WorkspaceIDs, second.ID)

	result, err := Diff(context.Background(), f.snapshot(), f.store(), zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, result.OutdatedUsers, 1)
	assert.Equal(t, user.ID, result.OutdatedUsers[0].ID)
	assert.Empty(t, result.MissingUsers)
	assert.Empty(t, result.ObsoleteUsers)
}

func TestDiffEmailComparisonIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	workspace := f.syncedWorkspace("Acme")
	user := f.syncedUser("Jane@Example.COM", workspace)
	user.Email = "jane@example.com"

	result, err := Diff(context.Background(), f.snapshot(), f.store(), zerolog.Nop())
	require.NoError(t, err)
	assertEmptyResult(t, result)
}

func TestDiffLeavesMalformedDestinationKeysAlone(t *testing.T) {
	f := newFixture(t)
	workspace := f.syncedWorkspace("Acme")
	f.syncedUser("jane@example.com", workspace)

	f.server.Add("workspaces", map[string]any{
		"workspace_id": "not-a-uuid",
		"name":         "Broken",
	})

	result, err := Diff(context.Background(), f.snapshot(), f.store(), zerolog.Nop())
	require.NoError(t, err)
	assertEmptyResult(t, result)
}
