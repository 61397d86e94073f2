package models

// Well-known sync metadata keys, one per pull type plus the composite.
const (
	SyncKeyAssignments = "assignments"
	SyncKeyProducts    = "products"
	SyncKeyFull        = "lastFullSync"
)

// SyncMetadata records when a given pull type last succeeded. Nothing reads
// it to decide staleness; it exists for observability and the debug view.
type SyncMetadata struct {
	Key      string `db:"key" json:"key"`
	LastSync int64  `db:"last_sync" json:"lastSync"`
	Status   string `db:"status" json:"status"`
}

// TableName returns the table name for SyncMetadata.
func (SyncMetadata) TableName() string {
	return "sync_metadata"
}
