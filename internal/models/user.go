package models

// User is the record served by every collaborator. ID is an opaque lookup key.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
