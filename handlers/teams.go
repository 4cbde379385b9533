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

type TeamHandler struct {
	Deps
}

func NewTeamHandler(d Deps) *TeamHandler {
	return &TeamHandler{Deps: d}
}

func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	teams, err := h.Resolver.GetUserTeams(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, teams)
}

type createTeamRequest struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// Create adds a team to a project. Admins and owners of that project may.
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.ProjectID == "" {
		httputil.WriteBadRequest(w, "project_id and name are required")
		return
	}

	ok, err := h.canManageProjectTeams(r, req.ProjectID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !ok {
		denied(w, r, h.Deps, &models.Project{}, req.ProjectID)
		return
	}

	team := &models.Team{ProjectID: req.ProjectID, Name: req.Name}
	err = audited(r, h.Deps, audit.ActionTeamCreate, audit.TargetTeam, func(tx *gorm.DB, e *audit.Entry) error {
		if err := tx.Create(team).Error; err != nil {
			return err
		}
		e.TargetID = team.ID
		e.Details = fmt.Sprintf("created team %q in project %s", team.Name, team.ProjectID)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteCreated(w, team)
}

func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	teamID := urlID(r, "teamID")
	ok, err := h.Resolver.CanAccessTeam(r.Context(), currentUser(r).ID, teamID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !ok {
		denied(w, r, h.Deps, &models.Team{}, teamID)
		return
	}

	team, err := h.loadTeam(r, teamID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, team)
}

func (h *TeamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	teamID := urlID(r, "teamID")
	team, ok := h.authorizeManage(w, r, teamID)
	if !ok {
		return
	}

	err := audited(r, h.Deps, audit.ActionTeamDelete, audit.TargetTeam, func(tx *gorm.DB, e *audit.Entry) error {
		if err := tx.Model(&models.Ticket{}).Where("team_id = ?", teamID).Update("team_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("team_id = ?", teamID).Delete(&models.TeamMember{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(team).Error; err != nil {
			return err
		}
		e.TargetID = teamID
		e.Details = fmt.Sprintf("deleted team %q", team.Name)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	teamID := urlID(r, "teamID")
	ok, err := h.Resolver.CanAccessTeam(r.Context(), currentUser(r).ID, teamID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !ok {
		denied(w, r, h.Deps, &models.Team{}, teamID)
		return
	}

	members, err := h.Members.ListTeamMembers(r.Context(), teamID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

type addTeamMemberRequest struct {
	UserID string `json:"user_id"`
}

func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	teamID := urlID(r, "teamID")
	if _, ok := h.authorizeManage(w, r, teamID); !ok {
		return
	}

	var req addTeamMemberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	var member *models.TeamMember
	err := audited(r, h.Deps, audit.ActionTeamMemberAdd, audit.TargetTeam, func(tx *gorm.DB, e *audit.Entry) error {
		var err error
		member, err = h.Members.WithDB(tx).AddTeamMember(r.Context(), teamID, req.UserID)
		if err != nil {
			return err
		}
		e.TargetID = teamID
		e.Details = fmt.Sprintf("added user %s", req.UserID)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteCreated(w, member)
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID := urlID(r, "teamID")
	userID := urlID(r, "userID")
	if _, ok := h.authorizeManage(w, r, teamID); !ok {
		return
	}

	err := audited(r, h.Deps, audit.ActionTeamMemberRemove, audit.TargetTeam, func(tx *gorm.DB, e *audit.Entry) error {
		if err := h.Members.WithDB(tx).RemoveTeamMember(r.Context(), teamID, userID); err != nil {
			return err
		}
		e.TargetID = teamID
		e.Details = fmt.Sprintf("removed user %s", userID)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteNoContent(w)
}

// authorizeManage loads the team and checks the caller may manage it. On
// failure the response is already written.
func (h *TeamHandler) authorizeManage(w http.ResponseWriter, r *http.Request, teamID string) (*models.Team, bool) {
	team, err := h.loadTeam(r, teamID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return nil, false
	}

	ok, err := h.canManageProjectTeams(r, team.ProjectID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return nil, false
	}
	if !ok {
		httputil.WriteForbidden(w, "forbidden")
		return nil, false
	}
	return team, true
}

// canManageProjectTeams allows team managers and owners of the project.
func (h *TeamHandler) canManageProjectTeams(r *http.Request, projectID string) (bool, error) {
	return canManageProject(r, h.Deps, projectID, models.CanManageTeams)
}

func (h *TeamHandler) loadTeam(r *http.Request, teamID string) (*models.Team, error) {
	var team models.Team
	err := h.DB.WithContext(r.Context()).Where("id = ?", teamID).First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("team %s: %w", teamID, access.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}
