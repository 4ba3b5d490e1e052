package attio

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrEmptyCollection marks a destination collection that came back empty.
// An empty mirror means the read was bad, not that everything vanished.
var ErrEmptyCollection = errors.New("destination collection is empty")

// Store holds the destination object graph. Entities live in per-object
// maps keyed by record id; relationships live next to them in adjacency
// maps rather than as embedded back-references, so link and unlink are
// plain map operations and replacing a record never breaks the graph.
type Store struct {
	client   *Client
	log      zerolog.Logger
	hydrated bool

	workspaces map[uuid.UUID]*Workspace
	people     map[uuid.UUID]*Person
	users      map[uuid.UUID]*User

	workspacesByFixID map[uuid.UUID]uuid.UUID
	usersByFixID      map[uuid.UUID]uuid.UUID

	links graphLinks
}

type graphLinks struct {
	userPerson     map[uuid.UUID]uuid.UUID
	personUsers    map[uuid.UUID]map[uuid.UUID]struct{}
	userWorkspaces map[uuid.UUID]map[uuid.UUID]struct{}
	workspaceUsers map[uuid.UUID]map[uuid.UUID]struct{}
}

func newGraphLinks() graphLinks {
	return graphLinks{
		userPerson:     map[uuid.UUID]uuid.UUID{},
		personUsers:    map[uuid.UUID]map[uuid.UUID]struct{}{},
		userWorkspaces: map[uuid.UUID]map[uuid.UUID]struct{}{},
		workspaceUsers: map[uuid.UUID]map[uuid.UUID]struct{}{},
	}
}

func (l graphLinks) linkUserPerson(userID, personID uuid.UUID) {
	if previous, ok := l.userPerson[userID]; ok {
		delete(l.personUsers[previous], userID)
	}
	l.userPerson[userID] = personID
	if l.personUsers[personID] == nil {
		l.personUsers[personID] = map[uuid.UUID]struct{}{}
	}
	l.personUsers[personID][userID] = struct{}{}
}

func (l graphLinks) linkUserWorkspace(userID, workspaceID uuid.UUID) {
	if l.userWorkspaces[userID] == nil {
		l.userWorkspaces[userID] = map[uuid.UUID]struct{}{}
	}
	l.userWorkspaces[userID][workspaceID] = struct{}{}
	if l.workspaceUsers[workspaceID] == nil {
		l.workspaceUsers[workspaceID] = map[uuid.UUID]struct{}{}
	}
	l.workspaceUsers[workspaceID][userID] = struct{}{}
}

func (l graphLinks) unlinkUser(userID uuid.UUID) {
	if personID, ok := l.userPerson[userID]; ok {
		delete(l.personUsers[personID], userID)
		delete(l.userPerson, userID)
	}
	for workspaceID := range l.userWorkspaces[userID] {
		delete(l.workspaceUsers[workspaceID], userID)
	}
	delete(l.userWorkspaces, userID)
}

func (l graphLinks) unlinkWorkspace(workspaceID uuid.UUID) {
	for userID := range l.workspaceUsers[workspaceID] {
		delete(l.userWorkspaces[userID], workspaceID)
	}
	delete(l.workspaceUsers, workspaceID)
}

func (l graphLinks) unlinkPerson(personID uuid.UUID) {
	for userID := range l.personUsers[personID] {
		delete(l.userPerson, userID)
	}
	delete(l.personUsers, personID)
}

func NewStore(client *Client, log zerolog.Logger) *Store {
	return &Store{
		client:            client,
		log:               log,
		workspaces:        map[uuid.UUID]*Workspace{},
		people:            map[uuid.UUID]*Person{},
		users:             map[uuid.UUID]*User{},
		workspacesByFixID: map[uuid.UUID]uuid.UUID{},
		usersByFixID:      map[uuid.UUID]uuid.UUID{},
		links:             newGraphLinks(),
	}
}

// Hydrate reads all three collections completely, then resolves person
// and workspace references into graph links. Dangling references are
// dropped. Any empty collection is fatal.
func (s *Store) Hydrate(ctx context.Context) error {
	s.log.Debug().Msg("hydrating destination data")
	for _, object := range []Object{ObjectWorkspaces, ObjectPeople, ObjectUsers} {
		raws, err := s.client.Records(ctx, object)
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyCollection, object)
		}
		parse := objectDefs[object].parse
		for _, raw := range raws {
			s.cache(parse(raw, s.log))
		}
	}
	s.connect()
	s.hydrated = true
	return nil
}

func (s *Store) ensureHydrated(ctx context.Context) error {
	if s.hydrated {
		return nil
	}
	return s.Hydrate(ctx)
}

// cache stores one record under its record id, replacing any previous
// copy and refreshing the business-key index. Links are left untouched.
func (s *Store) cache(record Record) {
	switch entity := record.(type) {
	case *Workspace:
		s.workspaces[entity.RecordID] = entity
		if entity.FixWorkspaceID != uuid.Nil {
			s.workspacesByFixID[entity.FixWorkspaceID] = entity.RecordID
		}
	case *Person:
		s.people[entity.RecordID] = entity
	case *User:
		s.users[entity.RecordID] = entity
		if entity.FixUserID != uuid.Nil {
			s.usersByFixID[entity.FixUserID] = entity.RecordID
		}
	}
}

func (s *Store) connect() {
	for _, user := range s.users {
		if user.PersonID != uuid.Nil {
			if _, ok := s.people[user.PersonID]; ok {
				s.links.linkUserPerson(user.RecordID, user.PersonID)
			} else {
				s.log.Debug().
					Stringer("user", user.RecordID).
					Stringer("person", user.PersonID).
					Msg("dropping dangling person reference")
			}
		}
		for _, ref := range user.WorkspaceRefs {
			if _, ok := s.workspaces[ref]; ok {
				s.links.linkUserWorkspace(user.RecordID, ref)
			} else {
				s.log.Debug().
					Stringer("user", user.RecordID).
					Stringer("workspace", ref).
					Msg("dropping dangling workspace reference")
			}
		}
	}
}

// Workspaces returns all destination workspaces, hydrating on first use.
func (s *Store) Workspaces(ctx context.Context) ([]*Workspace, error) {
	if err := s.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	out := make([]*Workspace, 0, len(s.workspaces))
	for _, workspace := range s.workspaces {
		out = append(out, workspace)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID.String() < out[j].RecordID.String() })
	return out, nil
}

func (s *Store) People(ctx context.Context) ([]*Person, error) {
	if err := s.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	out := make([]*Person, 0, len(s.people))
	for _, person := range s.people {
		out = append(out, person)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID.String() < out[j].RecordID.String() })
	return out, nil
}

func (s *Store) Users(ctx context.Context) ([]*User, error) {
	if err := s.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	out := make([]*User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID.String() < out[j].RecordID.String() })
	return out, nil
}

// WorkspaceByFixID resolves a destination workspace by its business key.
func (s *Store) WorkspaceByFixID(fixID uuid.UUID) (*Workspace, bool) {
	recordID, ok := s.workspacesByFixID[fixID]
	if !ok {
		return nil, false
	}
	workspace, ok := s.workspaces[recordID]
	return workspace, ok
}

// UserByFixID resolves a destination user by its business key.
func (s *Store) UserByFixID(fixID uuid.UUID) (*User, bool) {
	recordID, ok := s.usersByFixID[fixID]
	if !ok {
		return nil, false
	}
	user, ok := s.users[recordID]
	return user, ok
}

// PersonOfUser returns the person linked to a user, if any.
func (s *Store) PersonOfUser(userID uuid.UUID) (*Person, bool) {
	personID, ok := s.links.userPerson[userID]
	if !ok {
		return nil, false
	}
	person, ok := s.people[personID]
	return person, ok
}

// UsersOfPerson returns every user currently linked to a person.
func (s *Store) UsersOfPerson(personID uuid.UUID) []*User {
	var out []*User
	for userID := range s.links.personUsers[personID] {
		if user, ok := s.users[userID]; ok {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID.String() < out[j].RecordID.String() })
	return out
}

// WorkspacesOfUser returns every workspace currently linked to a user.
func (s *Store) WorkspacesOfUser(userID uuid.UUID) []*Workspace {
	var out []*Workspace
	for workspaceID := range s.links.userWorkspaces[userID] {
		if workspace, ok := s.workspaces[workspaceID]; ok {
			out = append(out, workspace)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID.String() < out[j].RecordID.String() })
	return out
}

// LinkUserPerson records a user-person link in both directions.
func (s *Store) LinkUserPerson(userID, personID uuid.UUID) {
	s.links.linkUserPerson(userID, personID)
}

// SetUserWorkspaces replaces a user's workspace links with the given set.
func (s *Store) SetUserWorkspaces(userID uuid.UUID, workspaceIDs []uuid.UUID) {
	for workspaceID := range s.links.userWorkspaces[userID] {
		delete(s.links.workspaceUsers[workspaceID], userID)
	}
	delete(s.links.userWorkspaces, userID)
	for _, workspaceID := range workspaceIDs {
		s.links.linkUserWorkspace(userID, workspaceID)
	}
}

// AssertWorkspace upserts a workspace and replaces the cached copy with
// the canonical record the API returned.
func (s *Store) AssertWorkspace(ctx context.Context, body RecordBody) (*Workspace, error) {
	record, err := s.assert(ctx, ObjectWorkspaces, body)
	if err != nil {
		return nil, err
	}
	return record.(*Workspace), nil
}

func (s *Store) AssertPerson(ctx context.Context, body RecordBody) (*Person, error) {
	record, err := s.assert(ctx, ObjectPeople, body)
	if err != nil {
		return nil, err
	}
	return record.(*Person), nil
}

func (s *Store) AssertUser(ctx context.Context, body RecordBody) (*User, error) {
	record, err := s.assert(ctx, ObjectUsers, body)
	if err != nil {
		return nil, err
	}
	return record.(*User), nil
}

func (s *Store) assert(ctx context.Context, object Object, body RecordBody) (Record, error) {
	def := objectDefs[object]
	raw, err := s.client.Assert(ctx, object, def.matchingAttribute, body)
	if err != nil {
		return nil, err
	}
	record := def.parse(raw, s.log)
	s.log.Debug().
		Str("object", string(object)).
		Stringer("record_id", record.ID()).
		Msg("asserted record, updating locally")
	s.cache(record)
	return record, nil
}

// DeleteWorkspace deletes a workspace record and detaches it from every
// user that referenced it.
func (s *Store) DeleteWorkspace(ctx context.Context, recordID uuid.UUID) error {
	if err := s.client.Delete(ctx, ObjectWorkspaces, recordID); err != nil {
		return err
	}
	workspace, ok := s.workspaces[recordID]
	if !ok {
		s.log.Warn().Stringer("record_id", recordID).Msg("deleted workspace was not cached locally")
		return nil
	}
	s.links.unlinkWorkspace(recordID)
	if workspace.FixWorkspaceID != uuid.Nil {
		delete(s.workspacesByFixID, workspace.FixWorkspaceID)
	}
	delete(s.workspaces, recordID)
	return nil
}

// DeleteUser deletes a user record and detaches it from its person and
// workspaces.
func (s *Store) DeleteUser(ctx context.Context, recordID uuid.UUID) error {
	if err := s.client.Delete(ctx, ObjectUsers, recordID); err != nil {
		return err
	}
	user, ok := s.users[recordID]
	if !ok {
		s.log.Warn().Stringer("record_id", recordID).Msg("deleted user was not cached locally")
		return nil
	}
	s.links.unlinkUser(recordID)
	if user.FixUserID != uuid.Nil {
		delete(s.usersByFixID, user.FixUserID)
	}
	delete(s.users, recordID)
	return nil
}

// DeletePerson deletes a person record. Callers are expected to have
// checked that no users still reference it.
func (s *Store) DeletePerson(ctx context.Context, recordID uuid.UUID) error {
	if err := s.client.Delete(ctx, ObjectPeople, recordID); err != nil {
		return err
	}
	if _, ok := s.people[recordID]; !ok {
		s.log.Warn().Stringer("record_id", recordID).Msg("deleted person was not cached locally")
		return nil
	}
	s.links.unlinkPerson(recordID)
	delete(s.people, recordID)
	return nil
}
