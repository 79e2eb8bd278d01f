// Package handler serves tenant administration and invitation endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"veritrail/internal/actor"
	"veritrail/internal/tenant"
	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

// Service defines the tenant operations the handler needs.
type Service interface {
	Provision(ctx context.Context, name string) (*tenant.Tenant, error)
	Get(ctx context.Context, a actor.Context) (*tenant.Tenant, error)
	Deactivate(ctx context.Context, a actor.Context, justification string) (*tenant.Tenant, error)
	Reactivate(ctx context.Context, a actor.Context, justification string) (*tenant.Tenant, error)
	InviteUser(ctx context.Context, a actor.Context, email string, roles []domain.Role) (*tenant.Invitation, string, error)
	AcceptInvitation(ctx context.Context, tenantID domain.TenantID, invitationID uuid.UUID, secret string) (*tenant.Invitation, error)
}

// Handler serves tenant endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts tenant endpoints that require an authenticated actor.
func (h *Handler) Register(r chi.Router) {
	r.Get("/tenant", h.HandleGet)
	r.Post("/tenant/deactivate", h.HandleDeactivate)
	r.Post("/tenant/reactivate", h.HandleReactivate)
	r.Post("/tenant/invitations", h.HandleInvite)
}

// RegisterOperator mounts the provisioning endpoint. It sits behind the
// operator token, not tenant authentication.
func (h *Handler) RegisterOperator(r chi.Router) {
	r.Post("/tenants", h.HandleProvision)
}

// RegisterPublic mounts the invitation redeem endpoint. The invitee has no
// token yet.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/invitations/accept", h.HandleAcceptInvitation)
}

func (h *Handler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeJSON[ProvisionRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	t, err := h.service.Provision(ctx, req.Name)
	if err != nil {
		h.logError(ctx, "tenant provisioning failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	t, err := h.service.Get(ctx, a)
	if err != nil {
		h.logError(ctx, "tenant get failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.handleStatusChange(w, r, "tenant deactivation failed", h.service.Deactivate)
}

func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	h.handleStatusChange(w, r, "tenant reactivation failed", h.service.Reactivate)
}

func (h *Handler) handleStatusChange(
	w http.ResponseWriter,
	r *http.Request,
	logMsg string,
	op func(context.Context, actor.Context, string) (*tenant.Tenant, error),
) {
	ctx := r.Context()
	a, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	req, ok := httputil.DecodeJSON[StatusChangeRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	t, err := op(ctx, a, req.Justification)
	if err != nil {
		h.logError(ctx, logMsg, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	req, ok := httputil.DecodeJSON[InviteRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	roles, err := domain.ParseRoles(req.Roles)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	inv, secret, err := h.service.InviteUser(ctx, a, req.Email, roles)
	if err != nil {
		h.logError(ctx, "user invitation failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, InviteResponse{
		InvitationID: inv.ID.String(),
		Email:        inv.Email,
		ExpiresAt:    inv.ExpiresAt,
		Secret:       secret,
	})
}

func (h *Handler) HandleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeJSON[AcceptInvitationRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	tenantID, err := domain.ParseTenantID(req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	invitationID, err := uuid.Parse(req.InvitationID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid invitation id"))
		return
	}

	inv, err := h.service.AcceptInvitation(ctx, tenantID, invitationID, req.Secret)
	if err != nil {
		h.logError(ctx, "invitation redeem failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func requireActor(ctx context.Context, w http.ResponseWriter) (actor.Context, bool) {
	a, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "authentication required"))
		return actor.Context{}, false
	}
	return a, true
}
