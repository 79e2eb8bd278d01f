package handler

import (
	"time"

	"veritrail/internal/observation"
)

// ObservationResponse is the HTTP shape of an observation.
type ObservationResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	Severity        string    `json:"severity"`
	OccurrenceCount int       `json:"occurrence_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func FromObservation(o *observation.Observation) *ObservationResponse {
	return &ObservationResponse{
		ID:              o.ID.String(),
		Title:           o.Title,
		Status:          string(o.Status),
		Severity:        string(o.Severity),
		OccurrenceCount: o.OccurrenceCount,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// TransitionResponse is one entry of the action menu.
type TransitionResponse struct {
	TargetStatus string `json:"target_status"`
	Label        string `json:"label"`
}

func FromTransitions(transitions []observation.Transition) []TransitionResponse {
	out := make([]TransitionResponse, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, TransitionResponse{
			TargetStatus: string(t.To),
			Label:        t.Label,
		})
	}
	return out
}
