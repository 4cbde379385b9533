package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"workhub/access"
	"workhub/audit"
	"workhub/config"
	"workhub/httputil"
	"workhub/identity"
	"workhub/logger"
	"workhub/middleware"
	"workhub/models"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Resolver *access.Resolver
	Members  *access.Members
	Audit    *audit.Log
	Identity *identity.Service
	Tokens   *identity.Tokens
	Log      *logger.Logger
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, access.ErrInvalidInput):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, access.ErrNotFound):
		httputil.WriteNotFound(w, "not found")
	case errors.Is(err, access.ErrConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		httputil.WriteConflict(w, "already exists")
	case errors.Is(err, access.ErrForbidden):
		httputil.WriteForbidden(w, "forbidden")
	case errors.Is(err, access.ErrUnauthorized):
		httputil.WriteUnauthorized(w, "authentication required")
	default:
		reqLog := log.WithContext(r.Context())
		if user := middleware.GetUserFromContext(r.Context()); user != nil {
			reqLog = reqLog.WithUser(user.ID)
		}
		reqLog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		httputil.WriteInternalError(w)
	}
}

// currentUser returns the session user; Authenticate guarantees one on every
// route that calls this.
func currentUser(r *http.Request) *models.User {
	return middleware.GetUserFromContext(r.Context())
}

// denied answers a failed access check: 404 when the entity does not exist,
// 403 otherwise.
func denied(w http.ResponseWriter, r *http.Request, d Deps, model interface{}, id string) {
	var count int64
	if err := d.DB.WithContext(r.Context()).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		writeError(w, r, d.Log, err)
		return
	}
	if count == 0 {
		httputil.WriteNotFound(w, "not found")
		return
	}
	httputil.WriteForbidden(w, "forbidden")
}

// audited runs mutate in a transaction and, when the actor is an admin,
// records the admin action it describes. mutate fills in the entry fields
// only it knows, such as the target id. In strict mode the audit write joins
// the transaction, so a failed write rolls the mutation back; in lenient mode
// it runs after commit and its failure is only logged. The audit log line is
// emitted only once the mutation has committed.
func audited(r *http.Request, d Deps, action, targetType string, mutate func(tx *gorm.DB, e *audit.Entry) error) error {
	ctx := r.Context()
	user := currentUser(r)
	entry := audit.EntryFromRequest(r, user.ID, action, targetType, "", "")

	if !user.IsAdmin() {
		return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return mutate(tx, &entry)
		})
	}

	if d.Audit.Strict() {
		err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mutate(tx, &entry); err != nil {
				return err
			}
			return d.Audit.WithDB(tx).Record(ctx, entry)
		})
		if err != nil {
			return err
		}
		d.Audit.Announce(ctx, entry)
		return nil
	}

	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return mutate(tx, &entry)
	})
	if err != nil {
		return err
	}
	d.Audit.Announce(ctx, entry)
	return d.Audit.Record(ctx, entry)
}

func queryLimit(r *http.Request, def, max int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func urlID(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
