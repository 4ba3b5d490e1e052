package fix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq"
)

var (
	ErrNoUsers      = errors.New("source returned no users")
	ErrNoWorkspaces = errors.New("source returned no workspaces")
)

const repositoryOperationTimeout = 30 * time.Second

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type RepositoryOptions struct {
	Database string
	User     string
	Password string
	Host     string
	Port     int
	Logger   zerolog.Logger
}

// Repository reads the source database. One connection is opened per
// hydration pass and released before Hydrate returns, success or not.
type Repository struct {
	dsn    string
	log    zerolog.Logger
	openDB sqlOpenFunc
}

func NewRepository(opts RepositoryOptions) *Repository {
	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	port := opts.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=prefer",
		host, port, opts.Database, opts.User, opts.Password,
	)
	return &Repository{
		dsn:    dsn,
		log:    opts.Logger,
		openDB: sql.Open,
	}
}

// Hydrate loads all active users, workspaces, role assignments, ownership
// links, notification settings and cloud accounts, links them into a
// snapshot and runs the derivation passes. An unreachable database or an
// empty user/workspace set is fatal: the caller must not sync against an
// incomplete source.
func (r *Repository) Hydrate(ctx context.Context) (*Snapshot, error) {
	db, err := r.openDB("postgres", r.dsn)
	if err != nil {
		return nil, fmt.Errorf("opening source database: %w", err)
	}
	defer func() {
		r.log.Debug().Msg("closing database connection")
		_ = db.Close()
	}()

	ctx, cancel := context.WithTimeout(ctx, repositoryOperationTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to source database: %w", err)
	}
	r.log.Debug().Msg("connected, hydrating source data")

	snapshot := &Snapshot{
		usersByID:      map[uuid.UUID]*User{},
		workspacesByID: map[uuid.UUID]*Workspace{},
	}
	for _, load := range []func(context.Context, *sql.DB, *Snapshot) error{
		r.loadUsers,
		r.loadWorkspaces,
		r.loadRoleAssignments,
		r.loadOwners,
		r.loadNotificationSettings,
		r.loadCloudAccounts,
	} {
		if err := load(ctx, db, snapshot); err != nil {
			return nil, err
		}
	}

	if len(snapshot.Users) == 0 {
		return nil, ErrNoUsers
	}
	if len(snapshot.Workspaces) == 0 {
		return nil, ErrNoWorkspaces
	}

	for _, workspace := range snapshot.Workspaces {
		deriveWorkspace(workspace)
	}
	for _, user := range snapshot.Users {
		deriveUser(user, snapshot)
	}

	r.log.Debug().
		Int("users", len(snapshot.Users)).
		Int("workspaces", len(snapshot.Workspaces)).
		Msg("source hydration complete")
	return snapshot, nil
}

func (r *Repository) loadUsers(ctx context.Context, db *sql.DB, snapshot *Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT id, email, is_active, is_verified, is_superuser, created_at, updated_at
		FROM "user"
		WHERE is_active = true`)
	if err != nil {
		return fmt.Errorf("reading users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user := &User{Roles: map[uuid.UUID]Role{}}
		if err := rows.Scan(
			&user.ID, &user.Email, &user.IsActive, &user.IsVerified,
			&user.IsSuperuser, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return fmt.Errorf("scanning user row: %w", err)
		}
		snapshot.Users = append(snapshot.Users, user)
		snapshot.usersByID[user.ID] = user
	}
	return rows.Err()
}

func (r *Repository) loadWorkspaces(ctx context.Context, db *sql.DB, snapshot *Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT id, slug, name, external_id, tier, subscription_id,
		       payment_on_hold_since, created_at, updated_at
		FROM organization`)
	if err != nil {
		return fmt.Errorf("reading workspaces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		workspace := &Workspace{}
		var subscriptionID uuid.NullUUID
		var paymentOnHold sql.NullTime
		if err := rows.Scan(
			&workspace.ID, &workspace.Slug, &workspace.Name, &workspace.ExternalID,
			&workspace.Tier, &subscriptionID, &paymentOnHold,
			&workspace.CreatedAt, &workspace.UpdatedAt,
		); err != nil {
			return fmt.Errorf("scanning workspace row: %w", err)
		}
		if subscriptionID.Valid {
			id := subscriptionID.UUID
			workspace.SubscriptionID = &id
		}
		if paymentOnHold.Valid {
			at := paymentOnHold.Time
			workspace.PaymentOnHoldSince = &at
		}
		snapshot.Workspaces = append(snapshot.Workspaces, workspace)
		snapshot.workspacesByID[workspace.ID] = workspace
	}
	return rows.Err()
}

func (r *Repository) loadRoleAssignments(ctx context.Context, db *sql.DB, snapshot *Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, organization_id, role_names
		FROM user_role_assignment`)
	if err != nil {
		return fmt.Errorf("reading role assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, workspaceID uuid.UUID
		var roles int64
		if err := rows.Scan(&userID, &workspaceID, &roles); err != nil {
			return fmt.Errorf("scanning role assignment row: %w", err)
		}
		user, userOK := snapshot.usersByID[userID]
		workspace, workspaceOK := snapshot.workspacesByID[workspaceID]
		if !userOK || !workspaceOK {
			// Tolerates FK drift: assignments referencing inactive users
			// or removed workspaces are not an error.
			r.log.Debug().
				Stringer("user_id", userID).
				Stringer("workspace_id", workspaceID).
				Msg("skipping role assignment with unknown reference")
			continue
		}
		if _, seen := user.Roles[workspaceID]; !seen {
			user.WorkspaceIDs = append(user.WorkspaceIDs, workspaceID)
			workspace.MemberIDs = append(workspace.MemberIDs, userID)
		}
		user.Roles[workspaceID] |= Role(roles)
	}
	return rows.Err()
}

func (r *Repository) loadOwners(ctx context.Context, db *sql.DB, snapshot *Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT organization_id, user_id
		FROM organization_owners`)
	if err != nil {
		return fmt.Errorf("reading workspace owners: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var workspaceID, userID uuid.UUID
		if err := rows.Scan(&workspaceID, &userID); err != nil {
			return fmt.Errorf("scanning owner row: %w", err)
		}
		workspace, workspaceOK := snapshot.workspacesByID[workspaceID]
		_, userOK := snapshot.usersByID[userID]
		if !workspaceOK || !userOK {
			r.log.Debug().
				Stringer("user_id", userID).
				Stringer("workspace_id", workspaceID).
				Msg("skipping ownership with unknown reference")
			continue
		}
		id := userID
		workspace.OwnerID = &id
	}
	return rows.Err()
}

func (r *Repository) loadNotificationSettings(ctx context.Context, db *sql.DB, snapshot *Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, weekly_report, inactivity_reminder, tutorial, marketing
		FROM user_notification_settings`)
	if err != nil {
		return fmt.Errorf("reading notification settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID uuid.UUID
		var weeklyReport, inactivityReminder, tutorial, marketing bool
		if err := rows.Scan(&userID, &weeklyReport, &inactivityReminder, &tutorial, &marketing); err != nil {
			return fmt.Errorf("scanning notification settings row: %w", err)
		}
		user, ok := snapshot.usersByID[userID]
		if !ok {
			r.log.Debug().
				Stringer("user_id", userID).
				Msg("skipping notification settings with unknown user")
			continue
		}
		enabled := weeklyReport || inactivityReminder || tutorial || marketing
		user.notificationsEnabled = &enabled
	}
	return rows.Err()
}

func (r *Repository) loadCloudAccounts(ctx context.Context, db *sql.DB, snapshot *Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, cloud, is_configured, enabled,
		       last_scan_resources_scanned, last_scan_duration_seconds,
		       last_scan_resources_errors, last_scan_started_at
		FROM cloud_account`)
	if err != nil {
		return fmt.Errorf("reading cloud accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		account := &CloudAccount{}
		var lastScanStarted sql.NullTime
		if err := rows.Scan(
			&account.ID, &account.WorkspaceID, &account.Cloud,
			&account.IsConfigured, &account.Enabled,
			&account.LastScanResourcesScanned, &account.LastScanDurationSeconds,
			&account.LastScanResourcesErrors, &lastScanStarted,
		); err != nil {
			return fmt.Errorf("scanning cloud account row: %w", err)
		}
		if lastScanStarted.Valid {
			at := lastScanStarted.Time
			account.LastScanStartedAt = &at
		}
		workspace, ok := snapshot.workspacesByID[account.WorkspaceID]
		if !ok {
			r.log.Debug().
				Stringer("cloud_account_id", account.ID).
				Stringer("workspace_id", account.WorkspaceID).
				Msg("skipping cloud account with unknown workspace")
			continue
		}
		workspace.CloudAccounts = append(workspace.CloudAccounts, account)
	}
	return rows.Err()
}
