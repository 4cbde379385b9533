package models

import (
	"time"
)

type User struct {
	ID                  string     `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Username            string     `gorm:"uniqueIndex;not null;size:100" json:"username"`
	Email               string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	FullName            string     `gorm:"size:200" json:"full_name"`
	PasswordHash        string     `gorm:"not null" json:"-"`
	Role                Role       `gorm:"not null;size:20;default:MEMBER" json:"role"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	MustChangePassword  bool       `gorm:"not null;default:false" json:"must_change_password"`
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u *User) IsAdmin() bool {
	return IsAdmin(u.Role)
}

func (u *User) IsMember() bool {
	return IsMember(u.Role)
}

func (u *User) IsGuest() bool {
	return u.Role == RoleGuest
}

// IsLocked reports whether the account is locked out at the given time.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

func (u *User) CanManageUsers() bool {
	return CanManageUsers(u.Role)
}

func (u *User) CanViewAuditLog() bool {
	return CanViewAuditLog(u.Role)
}
