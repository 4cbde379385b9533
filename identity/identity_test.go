package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"workhub/access"
	"workhub/config"
	"workhub/logger"
	"workhub/models"
	"workhub/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[email] = code
	return nil
}

func (m *captureMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T) (*Service, *gorm.DB, *captureMailer, *clock) {
	t.Helper()
	db := testutil.NewDB(t)
	mailer := &captureMailer{}
	clk := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	cfg := &config.Config{
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
		OTPExpiration:    15 * time.Minute,
	}
	svc := NewService(db, cfg, mailer, logger.Nop())
	svc.bcrypt = bcrypt.MinCost
	svc.now = clk.Now
	return svc, db, mailer, clk
}

func TestAuthenticate(t *testing.T) {
	svc, db, _, _ := newService(t)
	user := testutil.NewUser(t, db, "alice", models.RoleMember)
	ctx := context.Background()

	got, err := svc.Authenticate(ctx, "alice", testutil.Password)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", testutil.Password)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLockout(t *testing.T) {
	svc, db, _, clk := newService(t)
	user := testutil.NewUser(t, db, "alice", models.RoleMember)
	ctx := context.Background()

	for i := 1; i < 5; i++ {
		_, err := svc.Authenticate(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}
	_, err := svc.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrLocked)

	// The right password does not help while locked.
	_, err = svc.Authenticate(ctx, "alice", testutil.Password)
	assert.ErrorIs(t, err, ErrLocked)

	clk.now = clk.now.Add(16 * time.Minute)
	_, err = svc.Authenticate(ctx, "alice", testutil.Password)
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, db.Where("id = ?", user.ID).First(&stored).Error)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestSuccessResetsFailures(t *testing.T) {
	svc, db, _, _ := newService(t)
	user := testutil.NewUser(t, db, "alice", models.RoleMember)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = svc.Authenticate(ctx, "alice", "wrong")
	}
	_, err := svc.Authenticate(ctx, "alice", testutil.Password)
	require.NoError(t, err)

	// Four more failures must not lock, the counter started over.
	for i := 0; i < 4; i++ {
		_, err = svc.Authenticate(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	var stored models.User
	require.NoError(t, db.Where("id = ?", user.ID).First(&stored).Error)
	assert.Equal(t, 4, stored.FailedLoginAttempts)
}

func TestConcurrentWrongPasswordsLockAccount(t *testing.T) {
	svc, db, _, _ := newService(t)
	user := testutil.NewUser(t, db, "alice", models.RoleMember)
	ctx := context.Background()

	const guesses = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		invalid int
	)
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Authenticate(ctx, "alice", "wrong")
			if !errors.Is(err, ErrLocked) {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
			}
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrInvalidCredentials) {
				invalid++
			}
		}()
	}
	wg.Wait()

	// Only attempts that got past the limit check were compared.
	assert.LessOrEqual(t, invalid, 5)

	var stored models.User
	require.NoError(t, db.Where("id = ?", user.ID).First(&stored).Error)
	require.NotNil(t, stored.LockedUntil)

	_, err := svc.Authenticate(ctx, "alice", testutil.Password)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestExhaustedCounterLocksWithoutComparing(t *testing.T) {
	svc, db, _, _ := newService(t)
	user := testutil.NewUser(t, db, "alice", models.RoleMember)
	require.NoError(t, db.Model(user).Update("failed_login_attempts", 5).Error)

	_, err := svc.Authenticate(context.Background(), "alice", testutil.Password)
	assert.ErrorIs(t, err, ErrLocked)

	var stored models.User
	require.NoError(t, db.Where("id = ?", user.ID).First(&stored).Error)
	assert.NotNil(t, stored.LockedUntil)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
}

func TestRegister(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		Username: "bob",
		Email:    "Bob@Example.com",
		FullName: "Bob B",
		Password: "long-enough",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, user.Role)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.NotEmpty(t, user.ID)

	_, err = svc.Authenticate(ctx, "bob", "long-enough")
	require.NoError(t, err)

	t.Run("duplicate username", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{Username: "bob", Email: "other@example.com", Password: "long-enough"})
		assert.ErrorIs(t, err, access.ErrConflict)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{Username: "robert", Email: "bob@example.com", Password: "long-enough"})
		assert.ErrorIs(t, err, access.ErrConflict)
	})

	t.Run("invalid input", func(t *testing.T) {
		bad := []RegisterInput{
			{Username: "bo", Email: "bo@example.com", Password: "long-enough"},
			{Username: "carol", Email: "not-an-email", Password: "long-enough"},
			{Username: "carol", Email: "carol@example.com", Password: "short"},
		}
		for _, in := range bad {
			_, err := svc.Register(ctx, in)
			assert.ErrorIs(t, err, access.ErrInvalidInput, in.Username)
		}
	})
}

func TestChangePassword(t *testing.T) {
	svc, db, _, _ := newService(t)
	user := testutil.NewUser(t, db, "alice", models.RoleMember)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, user.ID, "wrong", "brand-new-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, user.ID, testutil.Password, "short")
	assert.ErrorIs(t, err, access.ErrInvalidInput)

	require.NoError(t, db.Model(user).Update("must_change_password", true).Error)
	require.NoError(t, svc.ChangePassword(ctx, user.ID, testutil.Password, "brand-new-pass"))
	got, err := svc.Authenticate(ctx, "alice", "brand-new-pass")
	require.NoError(t, err)
	assert.False(t, got.MustChangePassword)
}

func TestPasswordReset(t *testing.T) {
	svc, db, mailer, clk := newService(t)
	testutil.NewUser(t, db, "alice", models.RoleMember)
	ctx := context.Background()
	email := "alice@example.com"

	wrongCode := func(code string) string {
		if code == "000000" {
			return "111111"
		}
		return "000000"
	}

	t.Run("unknown email is silent", func(t *testing.T) {
		require.NoError(t, svc.RequestPasswordReset(ctx, "ghost@example.com"))
		assert.Empty(t, mailer.code("ghost@example.com"))
	})

	t.Run("happy path", func(t *testing.T) {
		require.NoError(t, svc.RequestPasswordReset(ctx, email))
		code := mailer.code(email)
		require.Len(t, code, 6)

		assert.ErrorIs(t, svc.ResetPassword(ctx, email, wrongCode(code), "reset-password-1"), ErrInvalidCode)
		require.NoError(t, svc.ResetPassword(ctx, email, code, "reset-password-1"))

		_, err := svc.Authenticate(ctx, "alice", "reset-password-1")
		require.NoError(t, err)

		// Codes are single use.
		assert.ErrorIs(t, svc.ResetPassword(ctx, email, code, "reset-password-2"), ErrInvalidCode)
	})

	t.Run("newer code replaces older", func(t *testing.T) {
		require.NoError(t, svc.RequestPasswordReset(ctx, email))
		first := mailer.code(email)
		require.NoError(t, svc.RequestPasswordReset(ctx, email))
		second := mailer.code(email)

		if first != second {
			assert.ErrorIs(t, svc.ResetPassword(ctx, email, first, "reset-password-3"), ErrInvalidCode)
		}
		require.NoError(t, svc.ResetPassword(ctx, email, second, "reset-password-3"))
	})

	t.Run("too many wrong attempts burn the code", func(t *testing.T) {
		require.NoError(t, svc.RequestPasswordReset(ctx, email))
		code := mailer.code(email)
		for i := 0; i < models.MaxResetAttempts; i++ {
			assert.ErrorIs(t, svc.ResetPassword(ctx, email, wrongCode(code), "reset-password-4"), ErrInvalidCode)
		}
		assert.ErrorIs(t, svc.ResetPassword(ctx, email, code, "reset-password-4"), ErrInvalidCode)
	})

	t.Run("expired code", func(t *testing.T) {
		require.NoError(t, svc.RequestPasswordReset(ctx, email))
		code := mailer.code(email)
		clk.now = clk.now.Add(16 * time.Minute)
		assert.ErrorIs(t, svc.ResetPassword(ctx, email, code, "reset-password-5"), ErrInvalidCode)
	})

	t.Run("reset clears lockout", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, _ = svc.Authenticate(ctx, "alice", "wrong")
		}
		_, err := svc.Authenticate(ctx, "alice", "reset-password-3")
		require.ErrorIs(t, err, ErrLocked)

		require.NoError(t, svc.RequestPasswordReset(ctx, email))
		require.NoError(t, svc.ResetPassword(ctx, email, mailer.code(email), "reset-password-6"))

		_, err = svc.Authenticate(ctx, "alice", "reset-password-6")
		assert.NoError(t, err)
	})
}

func TestConcurrentResetGuesses(t *testing.T) {
	svc, db, mailer, _ := newService(t)
	user := testutil.NewUser(t, db, "alice", models.RoleMember)
	ctx := context.Background()
	email := "alice@example.com"

	require.NoError(t, svc.RequestPasswordReset(ctx, email))
	code := mailer.code(email)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.ErrorIs(t, svc.ResetPassword(ctx, email, wrong, "reset-password-1"), ErrInvalidCode)
		}()
	}
	wg.Wait()

	var reset models.PasswordReset
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&reset).Error)
	assert.Equal(t, models.MaxResetAttempts, reset.Attempts)

	assert.ErrorIs(t, svc.ResetPassword(ctx, email, code, "reset-password-1"), ErrInvalidCode)
}

func TestConcurrentCorrectResetsConsumeOnce(t *testing.T) {
	svc, db, mailer, _ := newService(t)
	testutil.NewUser(t, db, "alice", models.RoleMember)
	ctx := context.Background()
	email := "alice@example.com"

	require.NoError(t, svc.RequestPasswordReset(ctx, email))
	code := mailer.code(email)

	const callers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := svc.ResetPassword(ctx, email, code, fmt.Sprintf("reset-password-%d", i))
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidCode)
				return
			}
			mu.Lock()
			successes++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
