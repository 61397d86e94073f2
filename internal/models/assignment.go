package models

// Assignment is a local mirror of a dealer assignment: which dealer covers
// which store with which product. The backend embeds the referenced store
// and product in its response; both copies are kept so assignment detail
// pages work fully offline.
//
// LocalID is a surrogate auto key. The assignments table is cleared and
// repopulated wholesale on every sync pass, so local ids are not stable
// across syncs.
type Assignment struct {
	LocalID        int64    `db:"local_id" json:"localId"`
	AssignmentID   int64    `db:"assignment_id" json:"assignmentId"`
	StoreID        int64    `db:"store_id" json:"storeId"`
	ProductID      int64    `db:"product_id" json:"productId"`
	DealerID       int64    `db:"dealer_id" json:"dealerId"`
	Status         string   `db:"status" json:"status"`
	AssignmentType string   `db:"assignment_type" json:"assignmentType,omitempty"`
	Store          *Store   `db:"store_json" json:"store,omitempty"`
	Product        *Product `db:"product_json" json:"product,omitempty"`
	LastSync       int64    `db:"last_sync" json:"lastSync"`
}

// TableName returns the table name for Assignment.
func (Assignment) TableName() string {
	return "assignments"
}
