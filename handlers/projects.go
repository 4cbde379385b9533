package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"workhub/access"
	"workhub/audit"
	"workhub/httputil"
	"workhub/models"

	"gorm.io/gorm"
)

type ProjectHandler struct {
	Deps
}

func NewProjectHandler(d Deps) *ProjectHandler {
	return &ProjectHandler{Deps: d}
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Resolver.GetUserProjects(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, projects)
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create makes a project owned by the caller, who becomes its OWNER member.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if !models.CanCreateProjects(user.Role) {
		httputil.WriteForbidden(w, "your role cannot create projects")
		return
	}

	var req createProjectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	project := &models.Project{Name: req.Name, Description: req.Description, OwnerID: user.ID}
	err := audited(r, h.Deps, audit.ActionProjectCreate, audit.TargetProject, func(tx *gorm.DB, e *audit.Entry) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		owner := &models.ProjectMember{ProjectID: project.ID, UserID: user.ID, Role: models.ProjectRoleOwner}
		if err := tx.Create(owner).Error; err != nil {
			return err
		}
		e.TargetID = project.ID
		e.Details = fmt.Sprintf("created project %q", project.Name)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteCreated(w, project)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID := urlID(r, "projectID")
	ok, err := h.Resolver.CanAccessProject(r.Context(), currentUser(r).ID, projectID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !ok {
		denied(w, r, h.Deps, &models.Project{}, projectID)
		return
	}

	var project models.Project
	if err := h.DB.WithContext(r.Context()).Preload("Teams").Where("id = ?", projectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httputil.WriteNotFound(w, "not found")
			return
		}
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// Delete removes a project, its teams and memberships. Tickets survive with
// their project and team cleared.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID := urlID(r, "projectID")
	if !h.canManage(w, r, projectID) {
		return
	}

	err := audited(r, h.Deps, audit.ActionProjectDelete, audit.TargetProject, func(tx *gorm.DB, e *audit.Entry) error {
		var project models.Project
		if err := tx.Where("id = ?", projectID).First(&project).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("project %s: %w", projectID, access.ErrNotFound)
			}
			return err
		}

		teamIDs := tx.Model(&models.Team{}).Select("id").Where("project_id = ?", projectID)
		if err := tx.Model(&models.Ticket{}).
			Where("project_id = ? OR team_id IN (?)", projectID, teamIDs).
			Updates(map[string]interface{}{"project_id": nil, "team_id": nil}).Error; err != nil {
			return err
		}
		if err := tx.Where("team_id IN (?)", teamIDs).Delete(&models.TeamMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Team{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&project).Error; err != nil {
			return err
		}

		e.TargetID = projectID
		e.Details = fmt.Sprintf("deleted project %q", project.Name)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	projectID := urlID(r, "projectID")
	ok, err := h.Resolver.CanAccessProject(r.Context(), currentUser(r).ID, projectID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !ok {
		denied(w, r, h.Deps, &models.Project{}, projectID)
		return
	}

	members, err := h.Members.ListProjectMembers(r.Context(), projectID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

type addProjectMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	projectID := urlID(r, "projectID")
	if !h.canManage(w, r, projectID) {
		return
	}

	var req addProjectMemberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	role := models.ProjectRoleMember
	switch models.ProjectRole(strings.ToUpper(req.Role)) {
	case "", models.ProjectRoleMember:
	case models.ProjectRoleOwner:
		role = models.ProjectRoleOwner
	default:
		httputil.WriteBadRequest(w, "role must be OWNER or MEMBER")
		return
	}

	var member *models.ProjectMember
	err := audited(r, h.Deps, audit.ActionProjectMemberAdd, audit.TargetProject, func(tx *gorm.DB, e *audit.Entry) error {
		var err error
		member, err = h.Members.WithDB(tx).AddProjectMember(r.Context(), projectID, req.UserID, role)
		if err != nil {
			return err
		}
		e.TargetID = projectID
		e.Details = fmt.Sprintf("added user %s as %s", req.UserID, role)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteCreated(w, member)
}

func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	projectID := urlID(r, "projectID")
	userID := urlID(r, "userID")
	if !h.canManage(w, r, projectID) {
		return
	}

	err := audited(r, h.Deps, audit.ActionProjectMemberRemove, audit.TargetProject, func(tx *gorm.DB, e *audit.Entry) error {
		if err := h.Members.WithDB(tx).RemoveProjectMember(r.Context(), projectID, userID); err != nil {
			return err
		}
		e.TargetID = projectID
		e.Details = fmt.Sprintf("removed user %s", userID)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteNoContent(w)
}

// canManage allows admins and project owners. It writes the rejection itself.
func (h *ProjectHandler) canManage(w http.ResponseWriter, r *http.Request, projectID string) bool {
	ok, err := canManageProject(r, h.Deps, projectID, models.CanManageProjects)
	if err != nil {
		writeError(w, r, h.Log, err)
		return false
	}
	if !ok {
		denied(w, r, h.Deps, &models.Project{}, projectID)
		return false
	}
	return true
}

// canManageProject is true when the caller's role has the capability (and
// the project exists) or when the caller owns the project.
func canManageProject(r *http.Request, d Deps, projectID string, capability func(models.Role) bool) (bool, error) {
	user := currentUser(r)
	if capability(user.Role) {
		var count int64
		err := d.DB.WithContext(r.Context()).Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error
		return count > 0, err
	}

	role, member, err := d.Resolver.ProjectRole(r.Context(), user.ID, projectID)
	if err != nil {
		return false, err
	}
	return member && role == models.ProjectRoleOwner, nil
}
