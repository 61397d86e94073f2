// Package models provides data model definitions for the fieldsync agent.
package models

// User roles as reported by the backend.
const (
	RoleAdmin  = "ADMIN"
	RoleDealer = "DEALER"
)

// User represents the locally stored session: who is logged in and the
// bearer token every backend request is signed with. There is at most one
// row; it is overwritten at login and cleared at logout.
type User struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Role  string `db:"role" json:"role"`
	Token string `db:"token" json:"token"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// IsDealer reports whether the session belongs to a dealer account.
func (u *User) IsDealer() bool {
	return u.Role == RoleDealer
}
