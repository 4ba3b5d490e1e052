// Package sync computes the difference between the source snapshot and
// the destination mirror and applies it in a fixed order.
package sync

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/someengineering/fixattiosync/internal/attio"
	"github.com/someengineering/fixattiosync/internal/fix"
)

// Result is the classified difference between the two graphs: what must
// be created, updated and deleted on the destination. The six sets are
// pairwise disjoint within each entity type.
type Result struct {
	MissingWorkspaces  []*fix.Workspace
	OutdatedWorkspaces []*fix.Workspace
	ObsoleteWorkspaces []*attio.Workspace

	MissingUsers  []*fix.User
	OutdatedUsers []*fix.User
	ObsoleteUsers []*attio.User
}

// Diff classifies both entity types by business key. It reads the
// destination store (triggering hydration if needed) but never writes.
// Destination records whose business key failed to parse have no
// identity and are left alone entirely.
func Diff(ctx context.Context, source *fix.Snapshot, dest *attio.Store, log zerolog.Logger) (Result, error) {
	destWorkspaces, err := dest.Workspaces(ctx)
	if err != nil {
		return Result{}, err
	}
	destUsers, err := dest.Users(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result

	destWorkspacesByFixID := map[uuid.UUID]*attio.Workspace{}
	for _, workspace := range destWorkspaces {
		if workspace.FixWorkspaceID == uuid.Nil {
			continue
		}
		destWorkspacesByFixID[workspace.FixWorkspaceID] = workspace
	}
	for _, workspace := range source.Workspaces {
		destWorkspace, ok := destWorkspacesByFixID[workspace.ID]
		switch {
		case !ok:
			result.MissingWorkspaces = append(result.MissingWorkspaces, workspace)
		case !workspaceEquivalent(workspace, destWorkspace):
			result.OutdatedWorkspaces = append(result.OutdatedWorkspaces, workspace)
		}
	}
	for _, workspace := range destWorkspaces {
		if workspace.FixWorkspaceID == uuid.Nil {
			continue
		}
		if _, ok := source.Workspace(workspace.FixWorkspaceID); !ok {
			result.ObsoleteWorkspaces = append(result.ObsoleteWorkspaces, workspace)
		}
	}

	destUsersByFixID := map[uuid.UUID]*attio.User{}
	for _, user := range destUsers {
		if user.FixUserID == uuid.Nil {
			continue
		}
		destUsersByFixID[user.FixUserID] = user
	}
	for _, user := range source.Users {
		destUser, ok := destUsersByFixID[user.ID]
		switch {
		case !ok:
			result.MissingUsers = append(result.MissingUsers, user)
		case !userEquivalent(user, destUser, workspaceKeySet(dest, destUser)):
			result.OutdatedUsers = append(result.OutdatedUsers, user)
		}
	}
	for _, user := range destUsers {
		if user.FixUserID == uuid.Nil {
			continue
		}
		if _, ok := source.User(user.FixUserID); !ok {
			result.ObsoleteUsers = append(result.ObsoleteUsers, user)
		}
	}

	log.Debug().
		Int("workspaces_missing", len(result.MissingWorkspaces)).
		Int("workspaces_outdated", len(result.OutdatedWorkspaces)).
		Int("workspaces_obsolete", len(result.ObsoleteWorkspaces)).
		Int("users_missing", len(result.MissingUsers)).
		Int("users_outdated", len(result.OutdatedUsers)).
		Int("users_obsolete", len(result.ObsoleteUsers)).
		Msg("computed diff")
	return result, nil
}

// workspaceKeySet collects the business keys of the workspaces a
// destination user is linked to.
func workspaceKeySet(dest *attio.Store, user *attio.User) map[uuid.UUID]struct{} {
	keys := map[uuid.UUID]struct{}{}
	for _, workspace := range dest.WorkspacesOfUser(user.RecordID) {
		if workspace.FixWorkspaceID != uuid.Nil {
			keys[workspace.FixWorkspaceID] = struct{}{}
		}
	}
	return keys
}

// workspaceEquivalent compares only the fields the destination mirrors.
// Source-only fields (timestamps, slug, members) are deliberately outside
// the comparison contract.
func workspaceEquivalent(src *fix.Workspace, dst *attio.Workspace) bool {
	return src.Name == dst.Name &&
		src.Tier == dst.Tier &&
		src.Status.String() == dst.Status &&
		src.CloudAccountConnected == dst.CloudAccountConnected
}

// userEquivalent compares the mirrored user fields: email (case folded),
// the workspace business-key set, and the five summary fields.
func userEquivalent(src *fix.User, dst *attio.User, dstWorkspaceKeys map[uuid.UUID]struct{}) bool {
	if !strings.EqualFold(src.Email, dst.Email) {
		return false
	}
	if len(src.WorkspaceIDs) != len(dstWorkspaceKeys) {
		return false
	}
	for _, workspaceID := range src.WorkspaceIDs {
		if _, ok := dstWorkspaceKeys[workspaceID]; !ok {
			return false
		}
	}
	return src.EmailNotificationsDisabled == dst.EmailNotificationsDisabled &&
		src.CloudAccountConnected == dst.CloudAccountConnected &&
		src.MainUser == dst.MainUser &&
		src.BestWorkspaceName == dst.BestWorkspaceName &&
		src.BestWorkspaceSubscribed == dst.BestWorkspaceSubscribed
}
