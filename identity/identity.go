// Package identity authenticates users, issues session tokens and handles
// registration and one-time-code password resets.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"workhub/access"
	"workhub/config"
	"workhub/logger"
	"workhub/metrics"
	"workhub/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minUsernameLength = 3
	minPasswordLength = 8
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLocked             = errors.New("account temporarily locked")
	ErrInvalidCode        = errors.New("invalid or expired reset code")
)

// Mailer delivers password reset codes.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, code string) error
}

// LogMailer writes reset codes to the log instead of sending mail.
type LogMailer struct {
	Log *logger.Logger
}

func (m LogMailer) SendPasswordReset(ctx context.Context, email, code string) error {
	m.Log.WithContext(ctx).Info("password reset code issued", "email", email, "code", code)
	return nil
}

type Service struct {
	db       *gorm.DB
	mailer   Mailer
	log      *logger.Logger
	now      func() time.Time
	bcrypt   int
	attempts int
	lockout  time.Duration
	otpTTL   time.Duration
}

func NewService(db *gorm.DB, cfg *config.Config, mailer Mailer, log *logger.Logger) *Service {
	return &Service{
		db:       db,
		mailer:   mailer,
		log:      log,
		now:      time.Now,
		bcrypt:   bcrypt.DefaultCost,
		attempts: cfg.MaxLoginAttempts,
		lockout:  cfg.LockoutDuration,
		otpTTL:   cfg.OTPExpiration,
	}
}

// Authenticate checks a username and password. After the configured number
// of consecutive failures the account is locked for the lockout duration.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.LoginAttempts.WithLabelValues("unknown_user").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	now := s.now()
	if user.IsLocked(now) {
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		return nil, ErrLocked
	}

	reserved, err := s.reserveLoginAttempt(db, user.ID, now)
	if err != nil {
		return nil, err
	}
	if !reserved {
		// Other attempts used up the allowance and one of them is about
		// to lock the account, or left it unlocked on the threshold.
		if _, err := s.lockIfExhausted(db, user.ID, now); err != nil {
			return nil, err
		}
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		return nil, ErrLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.LoginAttempts.WithLabelValues("bad_password").Inc()
		locked, err := s.lockIfExhausted(db, user.ID, now)
		if err != nil {
			return nil, err
		}
		if locked {
			return nil, ErrLocked
		}
		return nil, ErrInvalidCredentials
	}

	err = db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("reset login failures: %w", err)
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return &user, nil
}

// reserveLoginAttempt counts an attempt before the password is compared. It
// reports false once the allowance is spent or the account is locked, so
// concurrent guesses cannot all pass a stale check.
func (s *Service) reserveLoginAttempt(db *gorm.DB, userID string, now time.Time) (bool, error) {
	res := db.Model(&models.User{}).
		Where("id = ? AND failed_login_attempts < ?", userID, s.attempts).
		Where("(locked_until IS NULL OR locked_until <= ?)", now).
		UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + ?", 1))
	if res.Error != nil {
		return false, fmt.Errorf("record login attempt: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// lockIfExhausted locks the account when the attempt counter has reached the
// limit. Only one caller wins the update; it reports true.
func (s *Service) lockIfExhausted(db *gorm.DB, userID string, now time.Time) (bool, error) {
	lockedUntil := now.Add(s.lockout)
	res := db.Model(&models.User{}).
		Where("id = ? AND failed_login_attempts >= ?", userID, s.attempts).
		Updates(map[string]interface{}{
			"failed_login_attempts": 0,
			"locked_until":          lockedUntil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("lock account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.log.Warn("account locked after repeated login failures", "user_id", userID, "locked_until", lockedUntil)
	return true, nil
}

// RegisterInput is the self-service signup payload.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// Register creates a MEMBER account. Duplicate usernames or emails yield
// access.ErrConflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if len(in.Username) < minUsernameLength {
		return nil, fmt.Errorf("username must be at least %d characters: %w", minUsernameLength, access.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("invalid email address: %w", access.ErrInvalidInput)
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcrypt)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: string(hash),
		Role:         models.RoleMember,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("username or email already registered: %w", access.ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("user %s: %w", userID, access.ErrNotFound)
		}
		return fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	return s.setPassword(db, user.ID, next)
}

// RequestPasswordReset issues a fresh one-time code for the account with the
// given email. Unknown emails succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.WithContext(ctx).Debug("password reset for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	code, err := models.GenerateOTP()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcrypt)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		// Only the newest code is ever valid.
		if err := tx.Model(&models.PasswordReset{}).
			Where("user_id = ? AND used = ?", user.ID, false).
			Update("used", true).Error; err != nil {
			return err
		}
		return tx.Create(&models.PasswordReset{
			UserID:    user.ID,
			CodeHash:  string(hash),
			ExpiresAt: s.now().Add(s.otpTTL),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("store reset code: %w", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, code); err != nil {
		return fmt.Errorf("send reset code: %w", err)
	}
	return nil
}

// ResetPassword sets a new password when code matches the newest unexpired
// reset for the account. Wrong codes count towards burning the reset.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	var reset models.PasswordReset
	err = db.Where("user_id = ? AND used = ?", user.ID, false).
		Order("created_at desc").
		First(&reset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("load reset code: %w", err)
	}
	if !reset.IsValid(s.now()) {
		return ErrInvalidCode
	}

	// The attempt is spent before the code is compared.
	res := db.Model(&models.PasswordReset{}).
		Where("id = ? AND used = ? AND attempts < ?", reset.ID, false, models.MaxResetAttempts).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("record reset attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidCode
	}

	if err := bcrypt.CompareHashAndPassword([]byte(reset.CodeHash), []byte(code)); err != nil {
		return ErrInvalidCode
	}

	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PasswordReset{}).
			Where("id = ? AND used = ?", reset.ID, false).
			UpdateColumn("used", true)
		if res.Error != nil {
			return fmt.Errorf("consume reset code: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidCode
		}
		return s.setPassword(tx, user.ID, newPassword)
	})
}

// setPassword stores a new hash, clears any lockout and lifts a pending
// forced password change.
func (s *Service) setPassword(db *gorm.DB, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcrypt)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"password_hash":         string(hash),
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"must_change_password":  false,
	}).Error
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, access.ErrInvalidInput)
	}
	return nil
}
