package attio

import (
	"github.com/someengineering/fixattiosync/internal/fix"
)

// WorkspaceAssertion maps a source workspace onto the upsert body for the
// workspaces collection, keyed by workspace_id.
func WorkspaceAssertion(workspace *fix.Workspace) RecordBody {
	return RecordBody{Data: RecordData{Values: map[string]any{
		"workspace_id":            workspace.ID.String(),
		"name":                    workspace.Name,
		"product_tier":            workspace.Tier,
		"status":                  workspace.Status.String(),
		"cloud_account_connected": workspace.CloudAccountConnected,
	}}}
}

// PersonAssertion maps a source user onto the upsert body for the people
// collection. People are matched by email address only; everything else
// about a person is CRM-owned.
func PersonAssertion(user *fix.User) RecordBody {
	return RecordBody{Data: RecordData{Values: map[string]any{
		"email_addresses": []map[string]any{{"email_address": user.Email}},
	}}}
}

// UserAssertion maps a source user onto the upsert body for the users
// collection, including relationship references to an already-asserted
// person and already-loaded workspaces.
func UserAssertion(user *fix.User, person *Person, workspaces []*Workspace) RecordBody {
	values := map[string]any{
		"user_id":                      user.ID.String(),
		"primary_email_address":        []map[string]any{{"email_address": user.Email}},
		"status":                       user.StatusTitle(),
		"email_notifications_disabled": user.EmailNotificationsDisabled,
		"cloud_account_connected":      user.CloudAccountConnected,
		"main_user":                    user.MainUser,
		"best_workspace_name":          user.BestWorkspaceName,
		"best_workspace_subscribed":    user.BestWorkspaceSubscribed,
	}
	if person != nil {
		values["person"] = map[string]any{
			"target_object":    string(ObjectPeople),
			"target_record_id": person.RecordID.String(),
		}
	}
	if len(workspaces) > 0 {
		refs := make([]map[string]any, 0, len(workspaces))
		for _, workspace := range workspaces {
			refs = append(refs, map[string]any{
				"target_object":    string(ObjectWorkspaces),
				"target_record_id": workspace.RecordID.String(),
			})
		}
		values["workspace"] = refs
	}
	return RecordBody{Data: RecordData{Values: values}}
}
