package attio

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Object names a record collection in the API.
type Object string

const (
	ObjectWorkspaces Object = "workspaces"
	ObjectPeople     Object = "people"
	ObjectUsers      Object = "users"
)

// Record is any parsed destination record.
type Record interface {
	ID() uuid.UUID
}

// objectDef carries everything collection-specific as data: the business
// attribute upserts match on, and the payload parser. All dispatch on
// collections goes through this table.
type objectDef struct {
	matchingAttribute string
	parse             func(raw recordPayload, log zerolog.Logger) Record
}

var objectDefs = map[Object]objectDef{
	ObjectWorkspaces: {
		matchingAttribute: "workspace_id",
		parse:             func(raw recordPayload, log zerolog.Logger) Record { return parseWorkspace(raw, log) },
	},
	ObjectPeople: {
		matchingAttribute: "email_addresses",
		parse:             func(raw recordPayload, log zerolog.Logger) Record { return parsePerson(raw, log) },
	},
	ObjectUsers: {
		matchingAttribute: "user_id",
		parse:             func(raw recordPayload, log zerolog.Logger) Record { return parseUser(raw, log) },
	},
}

// recordPayload is the raw API record shape: identity triple, creation
// time, and per-field value histories with the most recent entry first.
type recordPayload struct {
	RecordIdentity struct {
		ObjectID    uuid.UUID `json:"object_id"`
		RecordID    uuid.UUID `json:"record_id"`
		WorkspaceID uuid.UUID `json:"workspace_id"`
	} `json:"id"`
	CreatedAt string                      `json:"created_at"`
	Values    map[string][]map[string]any `json:"values"`
}

// RecordBody is the request shape consumed by Assert.
type RecordBody struct {
	Data RecordData `json:"data"`
}

type RecordData struct {
	Values map[string]any `json:"values"`
}

type identity struct {
	ObjectID    uuid.UUID
	RecordID    uuid.UUID
	WorkspaceID uuid.UUID
	CreatedAt   time.Time
}

func (i identity) ID() uuid.UUID { return i.RecordID }

func (raw recordPayload) identity() identity {
	createdAt, _ := time.Parse(time.RFC3339, raw.CreatedAt)
	return identity{
		ObjectID:    raw.RecordIdentity.ObjectID,
		RecordID:    raw.RecordIdentity.RecordID,
		WorkspaceID: raw.RecordIdentity.WorkspaceID,
		CreatedAt:   createdAt,
	}
}

// Workspace mirrors one source workspace. FixWorkspaceID is the business
// key; uuid.Nil when the stored value was absent or malformed.
type Workspace struct {
	identity
	FixWorkspaceID        uuid.UUID
	Name                  string
	Tier                  string
	Status                string
	CloudAccountConnected bool
}

// Person is a CRM-native contact matched by email, with no source-side
// identity of its own.
type Person struct {
	identity
	FullName  string
	FirstName string
	LastName  string
	Email     string
	JobTitle  string
	LinkedIn  string
}

// User mirrors one source user. PersonID and WorkspaceRefs are raw record
// references resolved into graph links by the store.
type User struct {
	identity
	FixUserID     uuid.UUID
	Email         string
	Status        string
	PersonID      uuid.UUID
	WorkspaceRefs []uuid.UUID

	EmailNotificationsDisabled bool
	CloudAccountConnected      bool
	MainUser                   bool
	BestWorkspaceName          string
	BestWorkspaceSubscribed    bool
}

func parseWorkspace(raw recordPayload, log zerolog.Logger) *Workspace {
	workspace := &Workspace{identity: raw.identity()}
	workspace.Name = stringValue(latestValue(raw.Values, "name"), "value")
	workspace.Tier = titleValue(latestValue(raw.Values, "product_tier"), "option")
	workspace.Status = titleValue(latestValue(raw.Values, "status"), "status")
	workspace.CloudAccountConnected = boolValue(latestValue(raw.Values, "cloud_account_connected"), "value")
	workspace.FixWorkspaceID = optionalUUID(latestValue(raw.Values, "workspace_id")["value"])
	if workspace.FixWorkspaceID == uuid.Nil {
		log.Error().
			Stringer("record_id", workspace.RecordID).
			Msg("workspace record has no usable workspace_id")
	}
	return workspace
}

func parsePerson(raw recordPayload, log zerolog.Logger) *Person {
	person := &Person{identity: raw.identity()}
	nameInfo := latestValue(raw.Values, "name")
	person.FullName = stringValue(nameInfo, "full_name")
	person.FirstName = stringValue(nameInfo, "first_name")
	person.LastName = stringValue(nameInfo, "last_name")
	person.Email = stringValue(latestValue(raw.Values, "email_addresses"), "email_address")
	person.JobTitle = stringValue(latestValue(raw.Values, "job_title"), "value")
	person.LinkedIn = stringValue(latestValue(raw.Values, "linkedin"), "value")
	return person
}

func parseUser(raw recordPayload, log zerolog.Logger) *User {
	user := &User{identity: raw.identity()}
	user.Email = stringValue(latestValue(raw.Values, "primary_email_address"), "email_address")
	user.Status = titleValue(latestValue(raw.Values, "status"), "status")
	user.FixUserID = optionalUUID(latestValue(raw.Values, "user_id")["value"])
	if user.FixUserID == uuid.Nil {
		log.Error().
			Stringer("record_id", user.RecordID).
			Msg("user record has no usable user_id")
	}
	user.PersonID = optionalUUID(latestValue(raw.Values, "person")["target_record_id"])
	for _, entry := range raw.Values["workspace"] {
		if ref := optionalUUID(entry["target_record_id"]); ref != uuid.Nil {
			user.WorkspaceRefs = append(user.WorkspaceRefs, ref)
		}
	}
	user.EmailNotificationsDisabled = boolValue(latestValue(raw.Values, "email_notifications_disabled"), "value")
	user.CloudAccountConnected = boolValue(latestValue(raw.Values, "cloud_account_connected"), "value")
	user.MainUser = boolValue(latestValue(raw.Values, "main_user"), "value")
	user.BestWorkspaceName = stringValue(latestValue(raw.Values, "best_workspace_name"), "value")
	user.BestWorkspaceSubscribed = boolValue(latestValue(raw.Values, "best_workspace_subscribed"), "value")
	return user
}

// latestValue returns the most recent entry of one field's value history,
// or an empty entry when the field is unset.
func latestValue(values map[string][]map[string]any, field string) map[string]any {
	entries := values[field]
	if len(entries) == 0 || entries[0] == nil {
		return map[string]any{}
	}
	return entries[0]
}

func stringValue(entry map[string]any, key string) string {
	s, _ := entry[key].(string)
	return s
}

func boolValue(entry map[string]any, key string) bool {
	b, _ := entry[key].(bool)
	return b
}

// titleValue digs the title out of option/status shaped values.
func titleValue(entry map[string]any, key string) string {
	nested, _ := entry[key].(map[string]any)
	title, _ := nested["title"].(string)
	return title
}

// optionalUUID parses defensively: anything that is not a valid UUID
// string is absent, never an error.
func optionalUUID(value any) uuid.UUID {
	s, ok := value.(string)
	if !ok {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
