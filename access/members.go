package access

import (
	"context"
	"errors"
	"fmt"

	"workhub/models"

	"gorm.io/gorm"
)

// Members adds and removes project and team memberships. Uniqueness of
// (entity, user) is enforced by the database index, so two concurrent adds
// of the same pair yield one row and one ErrConflict.
type Members struct {
	db *gorm.DB
}

func NewMembers(db *gorm.DB) *Members {
	return &Members{db: db}
}

// WithDB returns a copy working through db, typically a transaction.
func (m *Members) WithDB(db *gorm.DB) *Members {
	return &Members{db: db}
}

// AddProjectMember inserts a project membership.
func (m *Members) AddProjectMember(ctx context.Context, projectID, userID string, role models.ProjectRole) (*models.ProjectMember, error) {
	db := m.db.WithContext(ctx)
	if err := mustExist(db, &models.Project{}, projectID, "project"); err != nil {
		return nil, err
	}
	if err := mustExist(db, &models.User{}, userID, "user"); err != nil {
		return nil, err
	}
	if role == "" {
		role = models.ProjectRoleMember
	}

	member := &models.ProjectMember{ProjectID: projectID, UserID: userID, Role: role}
	if err := db.Create(member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("user %s in project %s: %w", userID, projectID, ErrConflict)
		}
		return nil, fmt.Errorf("add project member: %w", err)
	}
	return member, nil
}

// RemoveProjectMember deletes a project membership together with the user's
// memberships of that project's teams.
func (m *Members) RemoveProjectMember(ctx context.Context, projectID, userID string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("project_id = ? AND user_id = ?", projectID, userID).Delete(&models.ProjectMember{})
		if res.Error != nil {
			return fmt.Errorf("remove project member: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user %s in project %s: %w", userID, projectID, ErrNotFound)
		}

		teamIDs := tx.Model(&models.Team{}).Select("id").Where("project_id = ?", projectID)
		if err := tx.Where("user_id = ? AND team_id IN (?)", userID, teamIDs).Delete(&models.TeamMember{}).Error; err != nil {
			return fmt.Errorf("remove team memberships: %w", err)
		}
		return nil
	})
}

// ListProjectMembers returns the project's members with their users loaded.
func (m *Members) ListProjectMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error) {
	members := []models.ProjectMember{}
	err := m.db.WithContext(ctx).Preload("User").
		Where("project_id = ?", projectID).
		Order("created_at asc").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	return members, nil
}

// AddTeamMember inserts a team membership.
func (m *Members) AddTeamMember(ctx context.Context, teamID, userID string) (*models.TeamMember, error) {
	db := m.db.WithContext(ctx)
	if err := mustExist(db, &models.Team{}, teamID, "team"); err != nil {
		return nil, err
	}
	if err := mustExist(db, &models.User{}, userID, "user"); err != nil {
		return nil, err
	}

	member := &models.TeamMember{TeamID: teamID, UserID: userID}
	if err := db.Create(member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("user %s in team %s: %w", userID, teamID, ErrConflict)
		}
		return nil, fmt.Errorf("add team member: %w", err)
	}
	return member, nil
}

func (m *Members) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	res := m.db.WithContext(ctx).Where("team_id = ? AND user_id = ?", teamID, userID).Delete(&models.TeamMember{})
	if res.Error != nil {
		return fmt.Errorf("remove team member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s in team %s: %w", userID, teamID, ErrNotFound)
	}
	return nil
}

func (m *Members) ListTeamMembers(ctx context.Context, teamID string) ([]models.TeamMember, error) {
	members := []models.TeamMember{}
	err := m.db.WithContext(ctx).Preload("User").
		Where("team_id = ?", teamID).
		Order("created_at asc").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	return members, nil
}

func mustExist(db *gorm.DB, model interface{}, id, kind string) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("check %s: %w", kind, err)
	}
	if count == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
