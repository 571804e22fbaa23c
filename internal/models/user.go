package models

// User is a session-scoped anonymous participant. It is created once per
// session (or restored from disk) and mutated only by explicit rename.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
