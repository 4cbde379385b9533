// Package access decides which projects, teams and tickets a user may see
// and manages the membership rows those decisions are based on.
//
// Admins reach every entity. Everyone else reaches the projects and teams
// they are a member of, plus tickets that are assigned to them or that sit
// under one of those projects or teams.
package access

import (
	"context"
	"errors"
	"fmt"

	"workhub/metrics"
	"workhub/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Access is a user's resolved access scope.
type Access struct {
	UserID   string      `json:"user_id"`
	Role     models.Role `json:"role"`
	Projects Scope       `json:"projects"`
	Teams    Scope       `json:"teams"`
}

// CanViewAll is true for admins.
func (a *Access) CanViewAll() bool {
	return models.IsAdmin(a.Role)
}

// CanSeeTicket applies the ticket visibility rule to an already loaded ticket.
func (a *Access) CanSeeTicket(t *models.Ticket) bool {
	if a.CanViewAll() {
		return true
	}
	if t.AssigneeID != nil && *t.AssigneeID == a.UserID {
		return true
	}
	if t.ProjectID != nil && a.Projects.Contains(*t.ProjectID) {
		return true
	}
	if t.TeamID != nil && a.Teams.Contains(*t.TeamID) {
		return true
	}
	return false
}

// Resolver answers access questions from the persistence layer. It never
// writes.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// GetUserAccess loads the user's role and membership scopes. Admins get the
// All scope for projects and teams.
func (r *Resolver) GetUserAccess(ctx context.Context, userID string) (*Access, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("id", "role").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user.IsAdmin() {
		return &Access{UserID: user.ID, Role: user.Role, Projects: All(), Teams: All()}, nil
	}

	var projectIDs, teamIDs []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.db.WithContext(gctx).Model(&models.ProjectMember{}).
			Where("user_id = ?", userID).
			Pluck("project_id", &projectIDs).Error
	})
	g.Go(func() error {
		return r.db.WithContext(gctx).Model(&models.TeamMember{}).
			Where("user_id = ?", userID).
			Pluck("team_id", &teamIDs).Error
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}

	return &Access{
		UserID:   user.ID,
		Role:     user.Role,
		Projects: Subset(projectIDs...),
		Teams:    Subset(teamIDs...),
	}, nil
}

// CanAccessProject reports whether the user may see the project. A project
// that does not exist is never accessible.
func (r *Resolver) CanAccessProject(ctx context.Context, userID, projectID string) (bool, error) {
	allowed, err := r.canAccess(ctx, userID, projectID, &models.Project{}, func(a *Access) Scope { return a.Projects })
	metrics.ObserveDecision("project", allowed, err)
	return allowed, err
}

// CanAccessTeam reports whether the user may see the team.
func (r *Resolver) CanAccessTeam(ctx context.Context, userID, teamID string) (bool, error) {
	allowed, err := r.canAccess(ctx, userID, teamID, &models.Team{}, func(a *Access) Scope { return a.Teams })
	metrics.ObserveDecision("team", allowed, err)
	return allowed, err
}

func (r *Resolver) canAccess(ctx context.Context, userID, entityID string, model interface{}, scope func(*Access) Scope) (bool, error) {
	a, err := r.GetUserAccess(ctx, userID)
	if err != nil {
		return false, err
	}
	if !a.CanViewAll() {
		// Membership rows only reference existing entities.
		return scope(a).Contains(entityID), nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(model).Where("id = ?", entityID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check existence: %w", err)
	}
	return count > 0, nil
}

// CanAccessTicket reports whether the user may see the ticket. Missing
// tickets are denied.
func (r *Resolver) CanAccessTicket(ctx context.Context, userID, ticketID string) (bool, error) {
	allowed, err := r.canAccessTicket(ctx, userID, ticketID)
	metrics.ObserveDecision("ticket", allowed, err)
	return allowed, err
}

func (r *Resolver) canAccessTicket(ctx context.Context, userID, ticketID string) (bool, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Select("id", "project_id", "team_id", "assignee_id").
		Where("id = ?", ticketID).
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load ticket: %w", err)
	}

	a, err := r.GetUserAccess(ctx, userID)
	if err != nil {
		return false, err
	}
	return a.CanSeeTicket(&ticket), nil
}

// ProjectRole returns the user's role inside the project, and false when the
// user is not a member.
func (r *Resolver) ProjectRole(ctx context.Context, userID, projectID string) (models.ProjectRole, bool, error) {
	var member models.ProjectMember
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load project membership: %w", err)
	}
	return member.Role, true, nil
}

// GetUserProjects lists the projects the user may see, by name.
func (r *Resolver) GetUserProjects(ctx context.Context, userID string) ([]models.Project, error) {
	a, err := r.GetUserAccess(ctx, userID)
	if err != nil {
		return nil, err
	}

	projects := []models.Project{}
	if a.Projects.Empty() {
		return projects, nil
	}

	q := r.db.WithContext(ctx).Order("name asc")
	if !a.Projects.IsAll() {
		q = q.Where("id IN ?", a.Projects.IDs())
	}
	if err := q.Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// GetUserTeams lists the teams the user may see, by name.
func (r *Resolver) GetUserTeams(ctx context.Context, userID string) ([]models.Team, error) {
	a, err := r.GetUserAccess(ctx, userID)
	if err != nil {
		return nil, err
	}

	teams := []models.Team{}
	if a.Teams.Empty() {
		return teams, nil
	}

	q := r.db.WithContext(ctx).Order("name asc")
	if !a.Teams.IsAll() {
		q = q.Where("id IN ?", a.Teams.IDs())
	}
	if err := q.Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// GetUserTickets lists visible tickets, newest first. The filter is applied
// on top of visibility and can only narrow the result.
func (r *Resolver) GetUserTickets(ctx context.Context, userID string, filter models.TicketFilter) ([]models.Ticket, error) {
	a, err := r.GetUserAccess(ctx, userID)
	if err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Model(&models.Ticket{})
	if !a.CanViewAll() {
		visible := r.db.Where("assignee_id = ?", a.UserID)
		if !a.Projects.Empty() {
			visible = visible.Or("project_id IN ?", a.Projects.IDs())
		}
		if !a.Teams.Empty() {
			visible = visible.Or("team_id IN ?", a.Teams.IDs())
		}
		q = q.Where(visible)
	}

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	if filter.TeamID != "" {
		q = q.Where("team_id = ?", filter.TeamID)
	}

	tickets := []models.Ticket{}
	if err := q.Order("created_at desc").Order("id asc").Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}
