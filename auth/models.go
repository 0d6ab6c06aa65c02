package auth

import "time"

type Role string

const (
	RoleCashier       Role = "cashier"
	RoleAdministrator Role = "admin"
)

// User is the domain representation of an authenticated store employee.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Phone        *string
	BranchID     *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is what the rest of the system consumes as ground truth about an
// actor; the process engine performs no credential checks of its own.
type Identity struct {
	ActorID  string
	Role     Role
	BranchID string
}

// IsAdmin reports whether the identity may perform administrator-gated steps.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdministrator
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
	BranchID string `json:"branch_id"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
