package audit

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"workhub/config"
	"workhub/logger"
	"workhub/models"
	"workhub/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func entry(adminID string, i int) Entry {
	return Entry{
		AdminID:    adminID,
		Action:     ActionUserRoleChange,
		TargetType: TargetUser,
		TargetID:   fmt.Sprintf("user-%d", i),
		Details:    "MEMBER -> GUEST",
	}
}

// brokenDB returns a postgres-dialect gorm handle whose every statement
// fails, since the mock expects nothing.
func brokenDB(t *testing.T) *gorm.DB {
	t.Helper()

	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestLogAdminAction(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.NewUser(t, db, "root", models.RoleAdmin)
	log := NewLog(db, config.AuditStrict, logger.Nop())

	record, err := log.LogAdminAction(context.Background(), entry(admin.ID, 1))
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
	assert.Equal(t, ActionUserRoleChange, record.Action)

	_, err = log.LogAdminAction(context.Background(), Entry{AdminID: admin.ID})
	assert.Error(t, err)
}

func TestAuditTrail(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.NewUser(t, db, "root", models.RoleAdmin)
	log := NewLog(db, config.AuditStrict, logger.Nop())
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := log.LogAdminAction(ctx, entry(admin.ID, i))
		require.NoError(t, err)
	}

	t.Run("newest first", func(t *testing.T) {
		records, err := log.GetAdminAuditTrail(ctx, 100)
		require.NoError(t, err)
		require.Len(t, records, 7)
		for i := 1; i < len(records); i++ {
			assert.False(t, records[i].CreatedAt.After(records[i-1].CreatedAt))
		}
	})

	t.Run("limit", func(t *testing.T) {
		for _, n := range []int{1, 3, 7} {
			records, err := log.GetAdminAuditTrail(ctx, n)
			require.NoError(t, err)
			assert.Len(t, records, n)
		}
	})

	t.Run("default limit", func(t *testing.T) {
		records, err := log.GetAdminAuditTrail(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, records, 7)
	})
}

func TestRecordLeavesAnnouncementToCaller(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.NewUser(t, db, "root", models.RoleAdmin)
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewLog(db, config.AuditStrict, logger.NewWithCore("workhub", core))
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, entry(admin.ID, 1)))
	assert.Zero(t, logs.FilterMessage("admin action").Len())

	log.Announce(ctx, entry(admin.ID, 1))
	lines := logs.FilterMessage("admin action").All()
	require.Len(t, lines, 1)
	fields := lines[0].ContextMap()
	assert.Equal(t, true, fields["audit"])
	assert.Equal(t, "user-1", fields["target_id"])
	assert.Equal(t, admin.ID, fields["admin_id"])
}

func TestAuditRecordsAreImmutable(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.NewUser(t, db, "root", models.RoleAdmin)
	log := NewLog(db, config.AuditStrict, logger.Nop())

	record, err := log.LogAdminAction(context.Background(), entry(admin.ID, 1))
	require.NoError(t, err)

	err = db.Model(record).Update("details", "rewritten").Error
	assert.ErrorIs(t, err, models.ErrImmutableAuditRecord)

	err = db.Delete(record).Error
	assert.ErrorIs(t, err, models.ErrImmutableAuditRecord)

	var stored models.AdminAction
	require.NoError(t, db.Where("id = ?", record.ID).First(&stored).Error)
	assert.Equal(t, "MEMBER -> GUEST", stored.Details)
}

func TestWriteFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("LogAdminAction always reports", func(t *testing.T) {
		for _, mode := range []config.AuditFailureMode{config.AuditStrict, config.AuditLenient} {
			log := NewLog(brokenDB(t), mode, logger.Nop())
			_, err := log.LogAdminAction(ctx, entry("admin", 1))
			assert.Error(t, err, mode)
		}
	})

	t.Run("strict Record fails", func(t *testing.T) {
		log := NewLog(brokenDB(t), config.AuditStrict, logger.Nop())
		assert.True(t, log.Strict())
		assert.Error(t, log.Record(ctx, entry("admin", 1)))
	})

	t.Run("lenient Record swallows", func(t *testing.T) {
		log := NewLog(brokenDB(t), config.AuditLenient, logger.Nop())
		assert.False(t, log.Strict())
		assert.NoError(t, log.Record(ctx, entry("admin", 1)))
	})

	t.Run("empty mode is strict", func(t *testing.T) {
		log := NewLog(brokenDB(t), "", logger.Nop())
		assert.True(t, log.Strict())
	})
}

func TestEntryFromRequest(t *testing.T) {
	r := httptest.NewRequest("PATCH", "/api/admin/users/u1", nil)
	r.RemoteAddr = "198.51.100.7:52100"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.Header.Set("X-Real-IP", "203.0.113.10")
	r.Header.Set("User-Agent", "curl/8.0")

	e := EntryFromRequest(r, "admin", ActionUserRoleChange, TargetUser, "u1", "")
	// Client-supplied forwarding headers never reach the record.
	assert.Equal(t, "198.51.100.7", e.IPAddress)
	assert.Equal(t, "curl/8.0", e.UserAgent)
	assert.Equal(t, "u1", e.TargetID)

	// RemoteAddr already rewritten to a bare IP by the proxy middleware.
	r.RemoteAddr = "203.0.113.9"
	e = EntryFromRequest(r, "admin", ActionUserDelete, TargetUser, "", "")
	assert.Equal(t, "203.0.113.9", e.IPAddress)
}
