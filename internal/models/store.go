package models

import "time"

// Entity statuses as reported by the backend.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Store is a local mirror of a backend store. Mirrors are never the source
// of truth; they are refreshed from the server and only read offline.
type Store struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Address   string  `db:"address" json:"address"`
	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
	QRCode    string  `db:"qr_code" json:"qrCode"`
	Phone     string  `db:"phone" json:"phone,omitempty"`
	Status    string  `db:"status" json:"status"`
	LastSync  int64   `db:"last_sync" json:"lastSync"`
}

// TableName returns the table name for Store.
func (Store) TableName() string {
	return "stores"
}

// LastSyncTime returns the LastSync as time.Time.
func (s *Store) LastSyncTime() time.Time {
	return time.Unix(s.LastSync, 0)
}
