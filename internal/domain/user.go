package domain

import "time"

type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleStaff    UserRole = "staff"
	RoleAdmin    UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to the agency side (staff or admin).
func (r UserRole) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

type User struct {
	ID           int64    `json:"id" gorm:"primaryKey"`
	Email        string   `json:"email" gorm:"uniqueIndex;size:255" validate:"required,email"`
	PasswordHash string   `json:"-"`
	Role         UserRole `json:"role" gorm:"size:20;index"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone,omitempty"`
	Department   string   `json:"department,omitempty"`

	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is the authenticated caller of a workflow operation. It is built per
// request from the stored user record, never from token claims alone.
type Actor struct {
	UserID     int64
	Role       UserRole
	Name       string
	Department string
}

func ActorFromUser(u *User) Actor {
	return Actor{UserID: u.ID, Role: u.Role, Name: u.Name, Department: u.Department}
}

// DisplayName is what history rows record in their "by" column.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return string(a.Role)
}
