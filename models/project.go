package models

import (
	"time"
)

type ProjectRole string

const (
	ProjectRoleOwner  ProjectRole = "OWNER"
	ProjectRoleMember ProjectRole = "MEMBER"
)

type Project struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Name        string          `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description string          `gorm:"size:1000" json:"description"`
	OwnerID     string          `gorm:"not null;size:36;index" json:"owner_id"`
	Members     []ProjectMember `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	Teams       []Team          `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"teams,omitempty"`
}

// ProjectMember links a user to a project. (ProjectID, UserID) is unique.
type ProjectMember struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	ProjectID string      `gorm:"not null;size:36;uniqueIndex:idx_project_user" json:"project_id"`
	UserID    string      `gorm:"not null;size:36;uniqueIndex:idx_project_user;index" json:"user_id"`
	Role      ProjectRole `gorm:"not null;size:20;default:MEMBER" json:"role"`
	User      *User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}
