package auth

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// UserRecord is the stored user row. PasswordHash never leaves this package.
type UserRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	Status       Status
	Phone        *string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// NewUser is the insert payload for a user row.
type NewUser struct {
	Username     string
	PasswordHash string
	Role         Role
	Status       Status
	Phone        *string
}

// PublicUser is returned by register and login.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// UserProjection is the current-user view exposed to callers and route
// guards.
type UserProjection struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Status   Status `json:"status"`
}

// UserListItem backs the admin user listing.
type UserListItem struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Role      Role       `json:"role"`
	Status    Status     `json:"status"`
	Phone     *string    `json:"phone,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin"`
}

type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (u UserRecord) public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}

func (u UserRecord) projection() UserProjection {
	return UserProjection{ID: u.ID, Username: u.Username, Role: u.Role, Status: u.Status}
}

func (u UserRecord) listItem() UserListItem {
	return UserListItem{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		Status:    u.Status,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}
