package models

import "time"

// PendingVisit is a write-ahead record for a store check-in performed while
// offline, or whose direct network attempt failed. It holds everything the
// check-in endpoint needs so the drain can replay it verbatim.
//
// Synced stays 0 until the server accepts the check-in, at which point the
// record is deleted outright: the server visit is the durable reference from
// then on, no local id is retained.
type PendingVisit struct {
	ID              int64   `db:"id" json:"id"`
	StoreID         int64   `db:"store_id" json:"storeId"`
	QRCode          string  `db:"qr_code" json:"qrCode"`
	Latitude        float64 `db:"latitude" json:"latitude"`
	Longitude       float64 `db:"longitude" json:"longitude"`
	Timestamp       int64   `db:"timestamp" json:"timestamp"`
	Synced          int     `db:"synced" json:"synced"`
	SyncAttempts    int     `db:"sync_attempts" json:"syncAttempts"`
	ErrorMessage    string  `db:"error_message" json:"errorMessage,omitempty"`
	LastAttemptAt   int64   `db:"last_attempt_at" json:"lastAttemptAt,omitempty"`
	FailedPermanent int     `db:"failed_permanent" json:"failedPermanent"`
}

// TableName returns the table name for PendingVisit.
func (PendingVisit) TableName() string {
	return "pending_visits"
}

// TimestampTime returns the client timestamp as time.Time.
func (v *PendingVisit) TimestampTime() time.Time {
	return time.Unix(v.Timestamp, 0)
}
