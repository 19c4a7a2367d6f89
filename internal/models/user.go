package models

import "time"

// User is a member of the user directory. Account management lives in the
// surrounding CRUD service; the messaging core only reads this record to
// validate senders and recipients and to render conversation lists.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	CreatedAt time.Time `json:"-"`
}
