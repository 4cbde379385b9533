// Package audit writes and reads the append-only log of privileged admin
// actions. Records exist for after-the-fact inspection only; nothing in the
// authorization path reads them.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"workhub/config"
	"workhub/logger"
	"workhub/metrics"
	"workhub/models"

	"gorm.io/gorm"
)

// Action tags.
const (
	ActionUserRoleChange      = "user.role_change"
	ActionUserDelete          = "user.delete"
	ActionProjectCreate       = "project.create"
	ActionProjectDelete       = "project.delete"
	ActionProjectMemberAdd    = "project.member_add"
	ActionProjectMemberRemove = "project.member_remove"
	ActionTeamCreate          = "team.create"
	ActionTeamDelete          = "team.delete"
	ActionTeamMemberAdd       = "team.member_add"
	ActionTeamMemberRemove    = "team.member_remove"
	ActionTicketDelete        = "ticket.delete"
)

// Target types.
const (
	TargetUser    = "user"
	TargetProject = "project"
	TargetTeam    = "team"
	TargetTicket  = "ticket"
)

const (
	DefaultTrailLimit = 50
	MaxTrailLimit     = 500
)

// Entry describes one admin action to record.
type Entry struct {
	AdminID    string
	Action     string
	TargetType string
	TargetID   string
	Details    string
	IPAddress  string
	UserAgent  string
}

// EntryFromRequest fills the request-derived fields of an entry.
func EntryFromRequest(r *http.Request, adminID, action, targetType, targetID, details string) Entry {
	return Entry{
		AdminID:    adminID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	}
}

// Log is the admin audit log.
type Log struct {
	db   *gorm.DB
	mode config.AuditFailureMode
	log  *logger.Logger
}

func NewLog(db *gorm.DB, mode config.AuditFailureMode, log *logger.Logger) *Log {
	if mode == "" {
		mode = config.AuditStrict
	}
	return &Log{db: db, mode: mode, log: log}
}

// WithDB returns a copy of the log writing through db, typically the
// transaction that performs the audited mutation.
func (l *Log) WithDB(db *gorm.DB) *Log {
	return &Log{db: db, mode: l.mode, log: l.log}
}

// Strict reports whether failed audit writes fail the request.
func (l *Log) Strict() bool {
	return l.mode != config.AuditLenient
}

// LogAdminAction appends one record. Persistence errors are always returned.
func (l *Log) LogAdminAction(ctx context.Context, e Entry) (*models.AdminAction, error) {
	if e.AdminID == "" || e.Action == "" || e.TargetType == "" {
		return nil, fmt.Errorf("audit entry needs admin, action and target type")
	}

	record := &models.AdminAction{
		AdminID:    e.AdminID,
		Action:     e.Action,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Details:    e.Details,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
	}
	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		metrics.AuditWriteFailures.Inc()
		return nil, fmt.Errorf("write audit record: %w", err)
	}
	metrics.AuditWrites.Inc()
	return record, nil
}

// Record is what request handlers call after a privileged mutation. In strict
// mode a failed write is returned so the handler can report failure; in
// lenient mode it is logged and swallowed. Record writes nothing to the
// application log on success; callers Announce once the mutation has
// committed.
func (l *Log) Record(ctx context.Context, e Entry) error {
	_, err := l.LogAdminAction(ctx, e)
	if err == nil {
		return nil
	}

	if l.mode == config.AuditLenient {
		l.log.WithContext(ctx).Error("audit write failed, continuing",
			"admin_id", e.AdminID,
			"action", e.Action,
			"target_id", e.TargetID,
			"error", err,
		)
		return nil
	}
	return err
}

// Announce emits the audit line for a committed admin action.
func (l *Log) Announce(ctx context.Context, e Entry) {
	l.log.WithContext(ctx).Audit("admin action",
		"admin_id", e.AdminID,
		"action", e.Action,
		"target_type", e.TargetType,
		"target_id", e.TargetID,
	)
}

// GetAdminAuditTrail returns at most limit records, newest first.
func (l *Log) GetAdminAuditTrail(ctx context.Context, limit int) ([]models.AdminAction, error) {
	if limit <= 0 {
		limit = DefaultTrailLimit
	}

	records := []models.AdminAction{}
	err := l.db.WithContext(ctx).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("read audit trail: %w", err)
	}
	return records, nil
}

// clientIP is the peer address without its port. Forwarding headers are only
// honoured upstream, by the trusted proxy middleware rewriting RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
