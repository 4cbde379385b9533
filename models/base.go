package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AllModels lists every table, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Project{},
		&ProjectMember{},
		&Team{},
		&TeamMember{},
		&Ticket{},
		&AdminAction{},
		&PasswordReset{},
	}
}

// newID fills an empty string primary key before insert.
func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	newID(&u.ID)
	return nil
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	newID(&p.ID)
	return nil
}

func (t *Team) BeforeCreate(tx *gorm.DB) error {
	newID(&t.ID)
	return nil
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	newID(&t.ID)
	return nil
}

func (a *AdminAction) BeforeCreate(tx *gorm.DB) error {
	newID(&a.ID)
	return nil
}

func (p *PasswordReset) BeforeCreate(tx *gorm.DB) error {
	newID(&p.ID)
	return nil
}
