// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"workhub/database"
	"workhub/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Password is the plaintext password of every user created by NewUser.
const Password = "correct-horse"

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open("sqlite", ":memory:", false)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	// Every connection to ":memory:" is a separate database, so pin one.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// NewUser inserts a user with the given username and role.
func NewUser(t *testing.T, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func NewProject(t *testing.T, db *gorm.DB, name string, owner *models.User) *models.Project {
	t.Helper()

	p := &models.Project{Name: name, OwnerID: owner.ID}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create project %s: %v", name, err)
	}
	return p
}

func NewTeam(t *testing.T, db *gorm.DB, name string, project *models.Project) *models.Team {
	t.Helper()

	team := &models.Team{Name: name, ProjectID: project.ID}
	if err := db.Create(team).Error; err != nil {
		t.Fatalf("create team %s: %v", name, err)
	}
	return team
}

// NewTicket inserts a ticket; nil ids leave the relation empty.
func NewTicket(t *testing.T, db *gorm.DB, title string, creator *models.User, projectID, teamID, assigneeID *string) *models.Ticket {
	t.Helper()

	ticket := &models.Ticket{
		Title:      title,
		Status:     models.StatusOpen,
		Priority:   models.PriorityMedium,
		ProjectID:  projectID,
		TeamID:     teamID,
		AssigneeID: assigneeID,
		CreatorID:  creator.ID,
	}
	if err := db.Create(ticket).Error; err != nil {
		t.Fatalf("create ticket %s: %v", title, err)
	}
	return ticket
}

func AddProjectMember(t *testing.T, db *gorm.DB, project *models.Project, user *models.User) {
	t.Helper()

	m := &models.ProjectMember{ProjectID: project.ID, UserID: user.ID, Role: models.ProjectRoleMember}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("add project member: %v", err)
	}
}

func AddTeamMember(t *testing.T, db *gorm.DB, team *models.Team, user *models.User) {
	t.Helper()

	m := &models.TeamMember{TeamID: team.ID, UserID: user.ID}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("add team member: %v", err)
	}
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}
