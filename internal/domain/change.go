package domain

type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// PendingChange is a coalesced local edit waiting to be flushed. At most one
// exists per item id.
type PendingChange struct {
	Type ChangeType
	ID   string
	Data Fields
}

type DeltaType string

const (
	DeltaAdded    DeltaType = "added"
	DeltaModified DeltaType = "modified"
	DeltaRemoved  DeltaType = "removed"
)

// ItemDelta is one entry of a change-feed batch, already decoded from
// whichever physical layout the account uses.
type ItemDelta struct {
	Type DeltaType
	Item Item
}

type DeltaBatch struct {
	// Initial marks the first batch of a subscription; it carries the full
	// state and replaces the local collection.
	Initial bool
	Deltas  []ItemDelta
}
