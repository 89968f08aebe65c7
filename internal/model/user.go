package model

import "time"

// User is supplied by the auth provider and read-only for the application.
type User struct {
	ID          string    `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	FullName    string    `json:"full_name" db:"full_name"`
	Role        string    `json:"role" db:"role"`
	CreatedDate time.Time `json:"created_date" db:"created_date"`
}

// DisplayName is the full name, or the email when no name is known.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
