package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrImmutableAuditRecord is returned when something tries to change or
// remove an AdminAction after it was written.
var ErrImmutableAuditRecord = errors.New("audit records are append-only")

// AdminAction records a privileged action taken by an admin.
type AdminAction struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	AdminID    string    `gorm:"not null;size:36;index" json:"admin_id"`
	Action     string    `gorm:"not null;size:100" json:"action"`
	TargetType string    `gorm:"not null;size:50" json:"target_type"`
	TargetID   string    `gorm:"size:36" json:"target_id"`
	Details    string    `gorm:"type:text" json:"details"`
	IPAddress  string    `gorm:"size:64" json:"ip_address"`
	UserAgent  string    `gorm:"size:500" json:"user_agent"`
}

func (a *AdminAction) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableAuditRecord
}

func (a *AdminAction) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableAuditRecord
}
