package models

// User is the authenticated identity. Authentication is mocked, so every
// request runs as DefaultUser.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

var DefaultUser = User{
	ID:    "user-123",
	Name:  "John Doe",
	Email: "john.doe@example.com",
}
