package models

import (
	"time"
)

type Team struct {
	ID        string       `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	ProjectID string       `gorm:"not null;size:36;uniqueIndex:idx_team_project_name" json:"project_id"`
	Name      string       `gorm:"not null;size:100;uniqueIndex:idx_team_project_name" json:"name"`
	Members   []TeamMember `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// TeamMember links a user to a team. (TeamID, UserID) is unique.
type TeamMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	TeamID    string    `gorm:"not null;size:36;uniqueIndex:idx_team_user" json:"team_id"`
	UserID    string    `gorm:"not null;size:36;uniqueIndex:idx_team_user;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}
