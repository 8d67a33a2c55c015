package models

// User is the authenticated caller, taken from a verified access token.
// Accounts live in the auth provider; this service keeps no users table.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}
