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

type TicketHandler struct {
	Deps
}

func NewTicketHandler(d Deps) *TicketHandler {
	return &TicketHandler{Deps: d}
}

// List returns visible tickets, narrowed by the status, priority, project_id
// and team_id query parameters.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.TicketFilter{
		ProjectID: q.Get("project_id"),
		TeamID:    q.Get("team_id"),
	}
	if s := q.Get("status"); s != "" {
		status, err := models.ParseTicketStatus(s)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		filter.Status = status
	}
	if p := q.Get("priority"); p != "" {
		priority, err := models.ParseTicketPriority(p)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		filter.Priority = priority
	}

	tickets, err := h.Resolver.GetUserTickets(r.Context(), currentUser(r).ID, filter)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, tickets)
}

type createTicketRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	ProjectID   *string `json:"project_id"`
	TeamID      *string `json:"team_id"`
	AssigneeID  *string `json:"assignee_id"`
}

func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if !models.CanCreateTickets(user.Role) {
		httputil.WriteForbidden(w, "your role cannot create tickets")
		return
	}

	var req createTicketRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ticket := &models.Ticket{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      models.StatusOpen,
		Priority:    models.PriorityMedium,
		CreatorID:   user.ID,
	}
	if ticket.Title == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}
	if req.Priority != "" {
		priority, err := models.ParseTicketPriority(req.Priority)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		ticket.Priority = priority
	}

	if err := h.placeTicket(r, ticket, nonEmpty(req.ProjectID), nonEmpty(req.TeamID)); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if err := h.assign(r, ticket, nonEmpty(req.AssigneeID)); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	if err := h.DB.WithContext(r.Context()).Create(ticket).Error; err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteCreated(w, ticket)
}

func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.authorize(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, ticket)
}

type updateTicketRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	ProjectID   *string `json:"project_id"`
	TeamID      *string `json:"team_id"`
	// An empty string unassigns.
	AssigneeID *string `json:"assignee_id"`
}

func (h *TicketHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !models.CanEditTickets(currentUser(r).Role) {
		httputil.WriteForbidden(w, "your role cannot edit tickets")
		return
	}
	ticket, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req updateTicketRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if req.Title != nil {
		ticket.Title = strings.TrimSpace(*req.Title)
		if ticket.Title == "" {
			httputil.WriteBadRequest(w, "title cannot be empty")
			return
		}
	}
	if req.Description != nil {
		ticket.Description = *req.Description
	}
	if req.Status != nil {
		status, err := models.ParseTicketStatus(*req.Status)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		ticket.Status = status
	}
	if req.Priority != nil {
		priority, err := models.ParseTicketPriority(*req.Priority)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		ticket.Priority = priority
	}
	if req.ProjectID != nil || req.TeamID != nil {
		projectID, teamID := ticket.ProjectID, ticket.TeamID
		if req.ProjectID != nil {
			projectID = nonEmpty(req.ProjectID)
		}
		if req.TeamID != nil {
			teamID = nonEmpty(req.TeamID)
		}
		if err := h.placeTicket(r, ticket, projectID, teamID); err != nil {
			writeError(w, r, h.Log, err)
			return
		}
	}
	if req.AssigneeID != nil {
		if err := h.assign(r, ticket, nonEmpty(req.AssigneeID)); err != nil {
			writeError(w, r, h.Log, err)
			return
		}
	}

	err := h.DB.WithContext(r.Context()).Model(ticket).
		Select("title", "description", "status", "priority", "project_id", "team_id", "assignee_id").
		Updates(ticket).Error
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, ticket)
}

func (h *TicketHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !models.CanDeleteTickets(currentUser(r).Role) {
		httputil.WriteForbidden(w, "your role cannot delete tickets")
		return
	}
	ticket, ok := h.authorize(w, r)
	if !ok {
		return
	}

	err := audited(r, h.Deps, audit.ActionTicketDelete, audit.TargetTicket, func(tx *gorm.DB, e *audit.Entry) error {
		if err := tx.Delete(ticket).Error; err != nil {
			return err
		}
		e.TargetID = ticket.ID
		e.Details = fmt.Sprintf("deleted ticket %q", ticket.Title)
		return nil
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteNoContent(w)
}

// authorize runs the fine-grained ticket check and loads the ticket. On
// failure the response is already written.
func (h *TicketHandler) authorize(w http.ResponseWriter, r *http.Request) (*models.Ticket, bool) {
	ticketID := urlID(r, "ticketID")
	ok, err := h.Resolver.CanAccessTicket(r.Context(), currentUser(r).ID, ticketID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return nil, false
	}
	if !ok {
		denied(w, r, h.Deps, &models.Ticket{}, ticketID)
		return nil, false
	}

	var ticket models.Ticket
	if err := h.DB.WithContext(r.Context()).Where("id = ?", ticketID).First(&ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httputil.WriteNotFound(w, "not found")
			return nil, false
		}
		writeError(w, r, h.Log, err)
		return nil, false
	}
	return &ticket, true
}

// placeTicket sets the ticket's project and team after checking the caller
// can reach both. A team implies its project; a mismatched pair is rejected.
func (h *TicketHandler) placeTicket(r *http.Request, ticket *models.Ticket, projectID, teamID *string) error {
	ctx := r.Context()
	userID := currentUser(r).ID

	if teamID != nil {
		var team models.Team
		err := h.DB.WithContext(ctx).Where("id = ?", *teamID).First(&team).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("team %s: %w", *teamID, access.ErrInvalidInput)
		}
		if err != nil {
			return err
		}
		if projectID == nil {
			projectID = &team.ProjectID
		} else if *projectID != team.ProjectID {
			return fmt.Errorf("team %s is not part of project %s: %w", team.ID, *projectID, access.ErrInvalidInput)
		}

		ok, err := h.Resolver.CanAccessTeam(ctx, userID, *teamID)
		if err != nil {
			return err
		}
		if !ok {
			// Team membership is enough only if the project is reachable too.
			if ok, err = h.Resolver.CanAccessProject(ctx, userID, *projectID); err != nil {
				return err
			}
		}
		if !ok {
			return fmt.Errorf("team %s: %w", *teamID, access.ErrForbidden)
		}
	}

	if projectID != nil && teamID == nil {
		ok, err := h.Resolver.CanAccessProject(ctx, userID, *projectID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("project %s: %w", *projectID, access.ErrForbidden)
		}
	}

	ticket.ProjectID = projectID
	ticket.TeamID = teamID
	return nil
}

func (h *TicketHandler) assign(r *http.Request, ticket *models.Ticket, assigneeID *string) error {
	if assigneeID == nil {
		ticket.AssigneeID = nil
		return nil
	}

	var count int64
	if err := h.DB.WithContext(r.Context()).Model(&models.User{}).Where("id = ?", *assigneeID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("assignee %s does not exist: %w", *assigneeID, access.ErrInvalidInput)
	}
	ticket.AssigneeID = assigneeID
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
