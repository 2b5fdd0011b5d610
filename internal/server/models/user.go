package models

import "time"

// User is a registered account. Email is stored trimmed and lower-cased.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// UserSummary is the public view of a user returned by the API.
type UserSummary struct {
	ID        string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}
