package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"workhub/access"
	"workhub/audit"
	"workhub/httputil"
	"workhub/models"

	"gorm.io/gorm"
)

type AdminHandler struct {
	Deps
}

func NewAdminHandler(d Deps) *AdminHandler {
	return &AdminHandler{Deps: d}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !currentUser(r).CanManageUsers() {
		httputil.WriteForbidden(w, "forbidden")
		return
	}

	users := []models.User{}
	if err := h.DB.WithContext(r.Context()).Order("username asc").Find(&users).Error; err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

type updateUserRequest struct {
	Role string `json:"role"`
}

// UpdateUser changes another user's role. Admins can never change their own
// role here, whatever the payload says.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	admin := currentUser(r)
	if !admin.CanManageUsers() {
		httputil.WriteForbidden(w, "forbidden")
		return
	}
	userID := urlID(r, "userID")
	if userID == admin.ID {
		httputil.WriteForbidden(w, "cannot change your own role")
		return
	}

	var req updateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var user models.User
	err = audited(r, h.Deps, audit.ActionUserRoleChange, audit.TargetUser, func(tx *gorm.DB, e *audit.Entry) error {
		if err := loadUser(tx, userID, &user); err != nil {
			return err
		}
		previous := user.Role
		if err := tx.Model(&user).Update("role", role).Error; err != nil {
			return err
		}
		user.Role = role
		e.TargetID = user.ID
		e.Details = fmt.Sprintf("changed role of %s from %s to %s", user.Username, previous, role)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// DeleteUser removes another user with their memberships and unassigns their
// tickets.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	admin := currentUser(r)
	if !admin.CanManageUsers() {
		httputil.WriteForbidden(w, "forbidden")
		return
	}
	userID := urlID(r, "userID")
	if userID == admin.ID {
		httputil.WriteForbidden(w, "cannot delete your own account")
		return
	}

	err := audited(r, h.Deps, audit.ActionUserDelete, audit.TargetUser, func(tx *gorm.DB, e *audit.Entry) error {
		var user models.User
		if err := loadUser(tx, userID, &user); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.TeamMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.PasswordReset{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Ticket{}).Where("assignee_id = ?", userID).Update("assignee_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Delete(&user).Error; err != nil {
			return err
		}
		e.TargetID = user.ID
		e.Details = fmt.Sprintf("deleted user %s (%s)", user.Username, user.Role)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *AdminHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if !currentUser(r).CanViewAuditLog() {
		httputil.WriteForbidden(w, "forbidden")
		return
	}

	records, err := h.Audit.GetAdminAuditTrail(r.Context(), queryLimit(r, audit.DefaultTrailLimit, audit.MaxTrailLimit))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, records)
}

func loadUser(tx *gorm.DB, id string, user *models.User) error {
	err := tx.Where("id = ?", id).First(user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user %s: %w", id, access.ErrNotFound)
	}
	return err
}
