// Package handler wires observation endpoints to the observation service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"veritrail/internal/actor"
	"veritrail/internal/observation"
	obsservice "veritrail/internal/observation/service"
	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

// Service defines the observation operations the handler needs.
type Service interface {
	Create(ctx context.Context, a actor.Context, input obsservice.CreateInput) (*observation.Observation, error)
	Get(ctx context.Context, a actor.Context, id domain.ObservationID) (*observation.Observation, error)
	AvailableTransitions(ctx context.Context, a actor.Context, id domain.ObservationID) ([]observation.Transition, error)
	Transition(ctx context.Context, a actor.Context, id domain.ObservationID, target observation.Status, justification string) (*observation.Observation, error)
	RecordRecurrence(ctx context.Context, a actor.Context, id domain.ObservationID) (*observation.Observation, error)
}

// Handler serves the observation lifecycle endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts observation endpoints on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/observations", h.HandleCreate)
	r.Get("/observations/{observationID}", h.HandleGet)
	r.Get("/observations/{observationID}/transitions", h.HandleAvailableTransitions)
	r.Post("/observations/{observationID}/transitions", h.HandleTransition)
	r.Post("/observations/{observationID}/recurrences", h.HandleRecurrence)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	req, ok := httputil.DecodeJSON[CreateRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	input, err := req.ToServiceInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	o, err := h.service.Create(ctx, a, input)
	if err != nil {
		h.logError(ctx, "observation create failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromObservation(o))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	id, err := domain.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	o, err := h.service.Get(ctx, a, id)
	if err != nil {
		h.logError(ctx, "observation get failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromObservation(o))
}

func (h *Handler) HandleAvailableTransitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	id, err := domain.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	transitions, err := h.service.AvailableTransitions(ctx, a, id)
	if err != nil {
		h.logError(ctx, "available transitions failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTransitions(transitions))
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	id, err := domain.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeJSON[TransitionRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	target, err := req.ParsedTarget()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	o, err := h.service.Transition(ctx, a, id, target, req.Justification)
	if err != nil {
		h.logError(ctx, "observation transition failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromObservation(o))
}

func (h *Handler) HandleRecurrence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	id, err := domain.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	o, err := h.service.RecordRecurrence(ctx, a, id)
	if err != nil {
		h.logError(ctx, "observation recurrence failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromObservation(o))
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
