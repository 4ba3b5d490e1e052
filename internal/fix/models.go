// Package fix loads the relational system-of-record into an in-memory
// object graph: active users, their workspaces, per-workspace roles and
// the cloud-account facts that drive the derived status fields.
package fix

import (
	"time"

	"github.com/google/uuid"
)

// Role is a bitset of the roles a user holds within one workspace.
type Role uint64

const (
	RoleMember Role = 1 << iota
	RoleAdmin
	RoleOwner
	RoleBillingAdmin
)

// Elevated reports whether the role set grants administrative access to
// the workspace (admin, owner or billing admin).
func (r Role) Elevated() bool {
	return r&(RoleAdmin|RoleOwner|RoleBillingAdmin) != 0
}

func (r Role) Has(role Role) bool {
	return r&role != 0
}

// WorkspaceStatus is the derived lifecycle stage of a workspace. The
// ordering Created < Configured < Collected < Subscribed matters;
// Unsubscribed is a separate terminal value outside the progression.
type WorkspaceStatus int

const (
	StatusCreated WorkspaceStatus = iota
	StatusConfigured
	StatusCollected
	StatusSubscribed
	StatusUnsubscribed
)

func (s WorkspaceStatus) String() string {
	switch s {
	case StatusConfigured:
		return "Configured"
	case StatusCollected:
		return "Collected"
	case StatusSubscribed:
		return "Subscribed"
	case StatusUnsubscribed:
		return "Unsubscribed"
	default:
		return "Created"
	}
}

type User struct {
	ID          uuid.UUID
	Email       string
	IsActive    bool
	IsVerified  bool
	IsSuperuser bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Populated while linking.
	WorkspaceIDs []uuid.UUID
	Roles        map[uuid.UUID]Role // workspace id -> role bitset

	// Notification settings; nil until the settings row is seen.
	notificationsEnabled *bool

	// Derived summary fields, computed after linking. A user with no
	// elevated-role workspace keeps the zero values.
	EmailNotificationsDisabled bool
	CloudAccountConnected      bool
	MainUser                   bool
	BestWorkspaceName          string
	BestWorkspaceSubscribed    bool
}

// StatusTitle is the mirrored user status on the destination side.
func (u *User) StatusTitle() string {
	if u.IsActive {
		return "Signed up"
	}
	return "Invited"
}

type Workspace struct {
	ID                 uuid.UUID
	Slug               string
	Name               string
	ExternalID         uuid.UUID
	Tier               string
	SubscriptionID     *uuid.UUID
	PaymentOnHoldSince *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time

	OwnerID       *uuid.UUID
	MemberIDs     []uuid.UUID
	CloudAccounts []*CloudAccount

	// Derived.
	Status                WorkspaceStatus
	CloudAccountConnected bool
}

type CloudAccount struct {
	ID           uuid.UUID
	WorkspaceID  uuid.UUID
	Cloud        string
	IsConfigured bool
	Enabled      bool

	LastScanResourcesScanned int64
	LastScanDurationSeconds  int64
	LastScanResourcesErrors  int64
	LastScanStartedAt        *time.Time
}

// Connected means the account is fully set up and collecting.
func (c *CloudAccount) Connected() bool {
	return c.IsConfigured && c.Enabled
}

// Snapshot is one fully-linked read of the source store. It is immutable
// for the duration of a sync run.
type Snapshot struct {
	Users      []*User
	Workspaces []*Workspace

	usersByID      map[uuid.UUID]*User
	workspacesByID map[uuid.UUID]*Workspace
}

// NewSnapshot builds a snapshot over already-linked entities.
func NewSnapshot(users []*User, workspaces []*Workspace) *Snapshot {
	snapshot := &Snapshot{
		Users:          users,
		Workspaces:     workspaces,
		usersByID:      make(map[uuid.UUID]*User, len(users)),
		workspacesByID: make(map[uuid.UUID]*Workspace, len(workspaces)),
	}
	for _, user := range users {
		snapshot.usersByID[user.ID] = user
	}
	for _, workspace := range workspaces {
		snapshot.workspacesByID[workspace.ID] = workspace
	}
	return snapshot
}

func (s *Snapshot) User(id uuid.UUID) (*User, bool) {
	u, ok := s.usersByID[id]
	return u, ok
}

func (s *Snapshot) Workspace(id uuid.UUID) (*Workspace, bool) {
	w, ok := s.workspacesByID[id]
	return w, ok
}
