// Package handler serves the audit trail read surface: entry listing with
// filters, filter facets, and the sequence gap check.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"veritrail/internal/actor"
	"veritrail/internal/auditlog"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

// Scopes opens isolation scopes. Implemented by tenantscope.Manager.
type Scopes interface {
	WithTenantScope(ctx context.Context, a actor.Context, fn func(ctx context.Context, s tenantscope.Scope) error) error
}

// Reader lists entries and checks for sequence gaps.
type Reader interface {
	ListEntries(ctx context.Context, scope tenantscope.Scope, f auditlog.Filters, p auditlog.Page) ([]auditlog.Entry, error)
	DetectGaps(ctx context.Context, scope tenantscope.Scope) (*auditlog.GapReport, error)
}

// Facets serves the distinct filter values, possibly from cache.
type Facets interface {
	TableNames(ctx context.Context, scope tenantscope.Scope) ([]string, error)
	ActionTypes(ctx context.Context, scope tenantscope.Scope) ([]string, error)
}

// Handler serves audit endpoints.
type Handler struct {
	scopes Scopes
	reader Reader
	facets Facets
	logger *slog.Logger
}

func New(scopes Scopes, reader Reader, facets Facets, logger *slog.Logger) *Handler {
	return &Handler{scopes: scopes, reader: reader, facets: facets, logger: logger}
}

// Register mounts audit endpoints on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/entries", h.HandleListEntries)
	r.Get("/audit/facets", h.HandleFacets)
	r.Get("/audit/gaps", h.HandleGapCheck)
}

func (h *Handler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := h.requireRole(ctx, w, domain.RoleAuditor, domain.RoleAuditManager, domain.RoleCAE)
	if !ok {
		return
	}

	filters, page, err := parseListQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var entries []auditlog.Entry
	err = h.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		var err error
		entries, err = h.reader.ListEntries(ctx, scope, filters, page)
		return err
	})
	if err != nil {
		h.logError(ctx, "audit entry listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) HandleFacets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := h.requireRole(ctx, w, domain.RoleAuditor, domain.RoleAuditManager, domain.RoleCAE)
	if !ok {
		return
	}

	var tables, actions []string
	err := h.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		var err error
		if tables, err = h.facets.TableNames(ctx, scope); err != nil {
			return err
		}
		actions, err = h.facets.ActionTypes(ctx, scope)
		return err
	})
	if err != nil {
		h.logError(ctx, "audit facets failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"table_names":  tables,
		"action_types": actions,
	})
}

func (h *Handler) HandleGapCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := h.requireRole(ctx, w, domain.RoleAuditManager, domain.RoleCAE)
	if !ok {
		return
	}

	var report *auditlog.GapReport
	err := h.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		var err error
		report, err = h.reader.DetectGaps(ctx, scope)
		return err
	})
	if err != nil {
		h.logError(ctx, "audit gap check failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) requireRole(ctx context.Context, w http.ResponseWriter, roles ...domain.Role) (actor.Context, bool) {
	a, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "authentication required"))
		return actor.Context{}, false
	}
	if !a.HasAnyRole(roles...) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role for audit access"))
		return actor.Context{}, false
	}
	return a, true
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func parseListQuery(r *http.Request) (auditlog.Filters, auditlog.Page, error) {
	q := r.URL.Query()

	filters := auditlog.Filters{
		TableName:  q.Get("table_name"),
		ActionType: q.Get("action_type"),
	}

	if v := q.Get("user_id"); v != "" {
		userID, err := domain.ParseUserID(v)
		if err != nil {
			return auditlog.Filters{}, auditlog.Page{}, err
		}
		filters.UserID = &userID
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return auditlog.Filters{}, auditlog.Page{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid from timestamp")
		}
		filters.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return auditlog.Filters{}, auditlog.Page{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid to timestamp")
		}
		filters.To = &t
	}

	var page auditlog.Page
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return auditlog.Filters{}, auditlog.Page{}, dErrors.New(dErrors.CodeInvalidInput, "invalid page_size")
		}
		page.Size = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return auditlog.Filters{}, auditlog.Page{}, dErrors.New(dErrors.CodeInvalidInput, "invalid offset")
		}
		page.Offset = n
	}

	return filters, page, nil
}
