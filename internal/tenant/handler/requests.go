package handler

import "time"

// ProvisionRequest is the operator request for POST /tenants.
type ProvisionRequest struct {
	Name string `json:"name"`
}

// StatusChangeRequest carries the justification for deactivate/reactivate.
type StatusChangeRequest struct {
	Justification string `json:"justification"`
}

// InviteRequest is the request for POST /tenant/invitations.
type InviteRequest struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// InviteResponse returns the invitation with its one-time secret. The
// secret appears here and nowhere else.
type InviteResponse struct {
	InvitationID string    `json:"invitation_id"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
	Secret       string    `json:"secret"`
}

// AcceptInvitationRequest redeems an invitation.
type AcceptInvitationRequest struct {
	TenantID     string `json:"tenant_id"`
	InvitationID string `json:"invitation_id"`
	Secret       string `json:"secret"`
}
