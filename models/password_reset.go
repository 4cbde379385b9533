package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// MaxResetAttempts is how many wrong codes burn a password reset.
const MaxResetAttempts = 5

// PasswordReset holds a hashed one-time code for resetting a password.
type PasswordReset struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    string    `gorm:"not null;size:36;index" json:"user_id"`
	CodeHash  string    `gorm:"not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
}

// GenerateOTP returns a zero-padded 6-digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (p *PasswordReset) IsValid(now time.Time) bool {
	return !p.Used && p.Attempts < MaxResetAttempts && now.Before(p.ExpiresAt)
}
