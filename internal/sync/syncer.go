package sync

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/someengineering/fixattiosync/internal/attio"
	"github.com/someengineering/fixattiosync/internal/fix"
)

const DefaultModificationThreshold = 10

// ThresholdError aborts a run whose blast radius exceeds the configured
// modification threshold. Nothing has been written when it is returned.
type ThresholdError struct {
	MissingPct   float64
	OutdatedPct  float64
	Threshold    int
	MinThreshold int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf(
		"refusing to sync: %.1f%% of destination records missing and %.1f%% outdated exceeds the %d%% modification threshold (at least --modification-threshold %d required)",
		e.MissingPct, e.OutdatedPct, e.Threshold, e.MinThreshold,
	)
}

// Syncer applies a diff to the destination, one record at a time, in five
// strictly ordered phases. Creates and updates run before deletes so that
// no phase observes ids vanishing under it.
type Syncer struct {
	source    *fix.Snapshot
	dest      *attio.Store
	threshold int
	log       zerolog.Logger
}

func NewSyncer(source *fix.Snapshot, dest *attio.Store, threshold int, log zerolog.Logger) *Syncer {
	if threshold <= 0 {
		threshold = DefaultModificationThreshold
	}
	return &Syncer{
		source:    source,
		dest:      dest,
		threshold: threshold,
		log:       log,
	}
}

// Run diffs both graphs, checks the safety gate, and applies the result.
// Individual record failures are logged and skipped; only the safety gate
// (or a failed destination hydration) aborts the run.
func (s *Syncer) Run(ctx context.Context) error {
	destWorkspaces, err := s.dest.Workspaces(ctx)
	if err != nil {
		return err
	}
	destUsers, err := s.dest.Users(ctx)
	if err != nil {
		return err
	}

	result, err := Diff(ctx, s.source, s.dest, s.log)
	if err != nil {
		return err
	}

	if err := s.checkThreshold(result, len(destWorkspaces)+len(destUsers)); err != nil {
		return err
	}

	s.createWorkspaces(ctx, result.MissingWorkspaces)
	s.updateWorkspaces(ctx, result.OutdatedWorkspaces)
	s.createUsers(ctx, result.MissingUsers)
	s.updateUsers(ctx, result.OutdatedUsers)
	s.deleteWorkspaces(ctx, result.ObsoleteWorkspaces)
	s.deleteUsers(ctx, result.ObsoleteUsers)
	return nil
}

// checkThreshold guards against syncing from a corrupt or partially
// loaded source snapshot that would mass-create or mass-update records.
func (s *Syncer) checkThreshold(result Result, destTotal int) error {
	if destTotal == 0 {
		return nil
	}
	missingPct := float64(len(result.MissingWorkspaces)+len(result.MissingUsers)) / float64(destTotal) * 100
	outdatedPct := float64(len(result.OutdatedWorkspaces)+len(result.OutdatedUsers)) / float64(destTotal) * 100
	if missingPct <= float64(s.threshold) && outdatedPct <= float64(s.threshold) {
		return nil
	}
	return &ThresholdError{
		MissingPct:   missingPct,
		OutdatedPct:  outdatedPct,
		Threshold:    s.threshold,
		MinThreshold: int(math.Ceil(math.Max(missingPct, outdatedPct))),
	}
}

func (s *Syncer) createWorkspaces(ctx context.Context, workspaces []*fix.Workspace) {
	for _, workspace := range workspaces {
		s.log.Info().Str("name", workspace.Name).Msg("creating workspace")
		if _, err := s.dest.AssertWorkspace(ctx, attio.WorkspaceAssertion(workspace)); err != nil {
			s.log.Error().Err(err).Str("name", workspace.Name).Msg("error creating workspace")
		}
	}
}

func (s *Syncer) updateWorkspaces(ctx context.Context, workspaces []*fix.Workspace) {
	for _, workspace := range workspaces {
		s.log.Info().Str("name", workspace.Name).Msg("updating workspace")
		if _, err := s.dest.AssertWorkspace(ctx, attio.WorkspaceAssertion(workspace)); err != nil {
			s.log.Error().Err(err).Str("name", workspace.Name).Msg("error updating workspace")
		}
	}
}

// createUsers asserts a person and then a user for every missing source
// user, wiring the person and workspace relationships in between. The
// upsert response carries no relationship back-references, so the
// in-memory graph is re-linked by hand after each successful assert.
func (s *Syncer) createUsers(ctx context.Context, users []*fix.User) {
	for _, user := range users {
		s.log.Info().Str("email", user.Email).Msg("asserting person")
		person, err := s.dest.AssertPerson(ctx, attio.PersonAssertion(user))
		if err != nil {
			s.log.Error().Err(err).Str("email", user.Email).Msg("error asserting person")
			continue
		}
		workspaces := s.destinationWorkspaces(user)
		s.log.Info().Str("email", user.Email).Msg("asserting user")
		destUser, err := s.dest.AssertUser(ctx, attio.UserAssertion(user, person, workspaces))
		if err != nil {
			s.log.Error().Err(err).Str("email", user.Email).Msg("error asserting user")
			continue
		}
		s.relink(destUser, person, workspaces)
	}
}

func (s *Syncer) updateUsers(ctx context.Context, users []*fix.User) {
	for _, user := range users {
		destUser, ok := s.dest.UserByFixID(user.ID)
		if !ok {
			s.log.Error().
				Str("email", user.Email).
				Stringer("user_id", user.ID).
				Msg("user not found in destination, skipping")
			continue
		}
		person, _ := s.dest.PersonOfUser(destUser.RecordID)
		workspaces := s.destinationWorkspaces(user)
		s.log.Info().Str("email", user.Email).Msg("updating user")
		updated, err := s.dest.AssertUser(ctx, attio.UserAssertion(user, person, workspaces))
		if err != nil {
			s.log.Error().Err(err).Str("email", user.Email).Msg("error updating user")
			continue
		}
		s.relink(updated, person, workspaces)
	}
}

func (s *Syncer) deleteWorkspaces(ctx context.Context, workspaces []*attio.Workspace) {
	for _, workspace := range workspaces {
		s.log.Info().Str("name", workspace.Name).Msg("deleting obsolete workspace")
		if err := s.dest.DeleteWorkspace(ctx, workspace.RecordID); err != nil {
			s.log.Error().Err(err).Str("name", workspace.Name).Msg("error deleting workspace")
		}
	}
}

// deleteUsers removes obsolete users and cleans up each linked person
// that is left with no users at all. A person shared with a still-present
// user survives.
func (s *Syncer) deleteUsers(ctx context.Context, users []*attio.User) {
	for _, user := range users {
		person, hasPerson := s.dest.PersonOfUser(user.RecordID)
		s.log.Info().Str("email", user.Email).Msg("deleting obsolete user")
		if err := s.dest.DeleteUser(ctx, user.RecordID); err != nil {
			s.log.Error().Err(err).Str("email", user.Email).Msg("error deleting user")
			continue
		}
		if hasPerson && len(s.dest.UsersOfPerson(person.RecordID)) == 0 {
			s.log.Info().Str("email", person.Email).Msg("deleting person with no remaining users")
			if err := s.dest.DeletePerson(ctx, person.RecordID); err != nil {
				s.log.Error().Err(err).Str("email", person.Email).Msg("error deleting person")
			}
		}
	}
}

// destinationWorkspaces resolves a source user's workspace ids to the
// already-loaded destination workspace records.
func (s *Syncer) destinationWorkspaces(user *fix.User) []*attio.Workspace {
	var out []*attio.Workspace
	for _, workspaceID := range user.WorkspaceIDs {
		if workspace, ok := s.dest.WorkspaceByFixID(workspaceID); ok {
			out = append(out, workspace)
		}
	}
	return out
}

func (s *Syncer) relink(user *attio.User, person *attio.Person, workspaces []*attio.Workspace) {
	if person != nil {
		s.dest.LinkUserPerson(user.RecordID, person.RecordID)
	}
	ids := make([]uuid.UUID, 0, len(workspaces))
	for _, workspace := range workspaces {
		ids = append(ids, workspace.RecordID)
	}
	s.dest.SetUserWorkspaces(user.RecordID, ids)
}
