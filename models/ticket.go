package models

import (
	"fmt"
	"strings"
	"time"
)

type TicketStatus string

const (
	StatusOpen       TicketStatus = "OPEN"
	StatusInProgress TicketStatus = "IN_PROGRESS"
	StatusResolved   TicketStatus = "RESOLVED"
	StatusClosed     TicketStatus = "CLOSED"
)

type TicketPriority string

const (
	PriorityLow    TicketPriority = "LOW"
	PriorityMedium TicketPriority = "MEDIUM"
	PriorityHigh   TicketPriority = "HIGH"
	PriorityUrgent TicketPriority = "URGENT"
)

func ParseTicketStatus(s string) (TicketStatus, error) {
	switch st := TicketStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return st, nil
	}
	return "", fmt.Errorf("unknown ticket status %q", s)
}

func ParseTicketPriority(s string) (TicketPriority, error) {
	switch p := TicketPriority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("unknown ticket priority %q", s)
}

// Ticket may belong to zero or one project, zero or one team and have zero
// or one assignee.
type Ticket struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Title       string         `gorm:"not null;size:200" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      TicketStatus   `gorm:"not null;size:20;index;default:OPEN" json:"status"`
	Priority    TicketPriority `gorm:"not null;size:20;index;default:MEDIUM" json:"priority"`
	ProjectID   *string        `gorm:"size:36;index" json:"project_id"`
	TeamID      *string        `gorm:"size:36;index" json:"team_id"`
	AssigneeID  *string        `gorm:"size:36;index" json:"assignee_id"`
	CreatorID   string         `gorm:"not null;size:36;index" json:"creator_id"`
}

// TicketFilter narrows a ticket listing. Empty fields are ignored.
type TicketFilter struct {
	Status    TicketStatus
	Priority  TicketPriority
	ProjectID string
	TeamID    string
}
