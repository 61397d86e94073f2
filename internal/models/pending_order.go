package models

// OrderItem is a single line of a pending order. UnitPrice is captured at
// enqueue time from the product mirror so the total survives later catalog
// price changes.
type OrderItem struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"price"`
	Notes     string  `json:"notes,omitempty"`
}

// PendingOrder is a write-ahead record for an order placed offline or whose
// direct network attempt failed.
//
// VisitID is nil until resolved: an order placed against an offline visit
// cannot know its server visit id yet. The drain resolves it from the
// server's today-visits for the same store before submitting; until then the
// record is skipped, not failed.
//
// OfflineUniqueID is the client-generated idempotency key; it is stamped once
// at enqueue and reused unchanged on every retry so the server can collapse
// duplicate submissions.
type PendingOrder struct {
	ID              int64       `db:"id" json:"id"`
	OfflineUniqueID string      `db:"offline_unique_id" json:"offlineUniqueId"`
	VisitID         *int64      `db:"visit_id" json:"visitId,omitempty"`
	StoreID         int64       `db:"store_id" json:"storeId"`
	Items           []OrderItem `db:"items_json" json:"items"`
	Total           float64     `db:"total" json:"total"`
	Notes           string      `db:"notes" json:"notes,omitempty"`
	CreatedAt       int64       `db:"created_at" json:"createdAt"`
	Synced          int         `db:"synced" json:"synced"`
	SyncAttempts    int         `db:"sync_attempts" json:"syncAttempts"`
	ErrorMessage    string      `db:"error_message" json:"errorMessage,omitempty"`
	LastAttemptAt   int64       `db:"last_attempt_at" json:"lastAttemptAt,omitempty"`
	FailedPermanent int         `db:"failed_permanent" json:"failedPermanent"`
}

// TableName returns the table name for PendingOrder.
func (PendingOrder) TableName() string {
	return "pending_orders"
}

// ComputeTotal sums quantity times unit price over the line items.
func ComputeTotal(items []OrderItem) float64 {
	var total float64
	for _, item := range items {
		total += float64(item.Quantity) * item.UnitPrice
	}
	return total
}
