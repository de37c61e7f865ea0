package model

import "time"

// Role names stored in users.role.  Route guards compare them exactly; an
// admin does not satisfy a route restricted to "user".
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an application user record as stored in the `users`
// table.  PasswordHash and IsActive never leave the service: the hash is
// tagged out of JSON and inactive users are filtered by every lookup.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Name         – display name.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hashed password.
//	Role         – "user" or "admin".
//	IsActive     – false once the account was deactivated.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    `json:"id"`         // users.id
	Name         string    `json:"name"`       // users.name
	Email        string    `json:"email"`      // users.email
	PasswordHash string    `json:"-"`          // users.password_hash
	Role         string    `json:"role"`       // users.role
	IsActive     bool      `json:"-"`          // users.is_active
	CreatedAt    time.Time `json:"createdAt"`  // users.created_at
	UpdatedAt    time.Time `json:"updatedAt"`  // users.updated_at
}

// Identity is the resolved caller of a request.  The Auth Gate builds it
// from a verified session token and handlers pass it explicitly into every
// service call.
type Identity struct {
	UserID uint64
	Role   string
	Name   string
	Email  string
}

// IdentityOf builds the request identity for a loaded user.
func IdentityOf(u User) Identity {
	return Identity{UserID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}
}
