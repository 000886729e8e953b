package entity

import "time"

// User is an approver-directory record
type User struct {
	ID         string    `json:"id" yaml:"id"`
	TenantID   string    `json:"tenant_id" yaml:"tenant_id"`
	Name       string    `json:"name" yaml:"name"`
	Email      string    `json:"email" yaml:"email"`
	Role       string    `json:"role" yaml:"role"`
	Department string    `json:"department" yaml:"department"`
	ManagerID  string    `json:"manager_id,omitempty" yaml:"manager_id,omitempty"`
	IsActive   bool      `json:"is_active" yaml:"is_active"`
	LarkOpenID string    `json:"lark_open_id,omitempty" yaml:"lark_open_id,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

// IsAdmin reports whether the user holds the tenant admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
