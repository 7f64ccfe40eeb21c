package models

import "time"

// Profile holds the display identity for a user. Rows are owned by the
// identity provider; this service only reads them.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
