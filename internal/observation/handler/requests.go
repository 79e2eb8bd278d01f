package handler

import (
	"veritrail/internal/observation"
	obsservice "veritrail/internal/observation/service"
)

// CreateRequest is the HTTP request for POST /observations.
type CreateRequest struct {
	Title    string `json:"title"`
	Severity string `json:"severity"`
}

func (r CreateRequest) ToServiceInput() (obsservice.CreateInput, error) {
	severity, err := observation.ParseSeverity(r.Severity)
	if err != nil {
		return obsservice.CreateInput{}, err
	}
	return obsservice.CreateInput{Title: r.Title, Severity: severity}, nil
}

// TransitionRequest is the HTTP request for POST /observations/{id}/transitions.
type TransitionRequest struct {
	TargetStatus  string `json:"target_status"`
	Justification string `json:"justification,omitempty"`
}

func (r TransitionRequest) ParsedTarget() (observation.Status, error) {
	return observation.ParseStatus(r.TargetStatus)
}
