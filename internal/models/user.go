package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles as issued by the identity provider.
const (
	UserRoleClient     = "client"
	UserRoleFreelancer = "freelancer"
	UserRoleAdmin      = "admin"
)

// User mirrors the identity provider's record. Only existence and
// soft-deletion matter to the workflow.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       *string    `json:"email,omitempty"`
	DisplayName *string    `json:"display_name,omitempty"`
	Role        string     `json:"role"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

func IsValidUserRole(role string) bool {
	switch role {
	case UserRoleClient, UserRoleFreelancer, UserRoleAdmin:
		return true
	}
	return false
}
