package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/reference"
	"github.com/roach88/testworker/internal/store"
	"github.com/roach88/testworker/internal/workflow"
)

// JobRequest is the POST /job body.
type JobRequest struct {
	Label            string            `json:"label"`
	EventDeliveryURL string            `json:"event_delivery_url"`
	MaximumDuration  int64             `json:"maximum_duration_in_seconds"`
	Manifest         []string          `json:"manifest"`
	Sources          map[string]string `json:"sources"`
}

// JobStatus is the GET /job body.
type JobStatus struct {
	Label            string                     `json:"label"`
	EventDeliveryURL string                     `json:"event_delivery_url"`
	MaximumDuration  int64                      `json:"maximum_duration_in_seconds"`
	TestPaths        []string                   `json:"test_paths"`
	EndState         *domain.EndState           `json:"end_state"`
	CreatedAt        time.Time                  `json:"created_at"`
	Sources          []domain.Source            `json:"sources"`
	Tests            []domain.Test              `json:"tests"`
	References       []domain.ResourceReference `json:"references"`
	EventIDs         []int64                    `json:"event_ids"`
}

// AbortResult is the POST /event/{sequence_number}/abort body.
type AbortResult struct {
	Event   domain.WorkerEvent `json:"event"`
	Aborted bool               `json:"aborted"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	body, apiErr := readBody(w, r)
	if apiErr != nil {
		respondError(w, apiErr)
		return
	}
	if details := s.validator.Validate(body); len(details) > 0 {
		respondError(w, &Error{
			Status:  http.StatusBadRequest,
			Code:    CodeInvalidRequest,
			Message: "job submission failed validation",
			Details: details,
		})
		return
	}

	var req JobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, &Error{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: err.Error()})
		return
	}

	job, err := s.intake.Submit(r.Context(), workflow.Submission{
		Label:            req.Label,
		EventDeliveryURL: req.EventDeliveryURL,
		MaximumDuration:  req.MaximumDuration,
		Manifest:         req.Manifest,
		Sources:          req.Sources,
	})
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, job)
	case workflow.IsSubmissionError(err):
		respondError(w, &Error{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: err.Error()})
	case errors.Is(err, store.ErrJobExists):
		respondError(w, &Error{Status: http.StatusBadRequest, Code: CodeJobExists, Message: "a job has already been submitted"})
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job, ok, err := s.repo.FindJob(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !ok {
		respondError(w, &Error{Status: http.StatusNotFound, Code: CodeNoJob, Message: "no job has been submitted"})
		return
	}

	sources, err := s.repo.Sources(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	tests, err := s.repo.Tests(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	seqs, err := s.repo.SequenceNumbers(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, JobStatus{
		Label:            job.Label,
		EventDeliveryURL: job.EventDeliveryURL,
		MaximumDuration:  job.MaximumDuration,
		TestPaths:        job.TestPaths,
		EndState:         job.EndState,
		CreatedAt:        job.CreatedAt,
		Sources:          sources,
		Tests:            tests,
		References:       references(job, tests),
		EventIDs:         seqs,
	})
}

// references lists the job, its expected tests and every compiled step.
func references(job domain.Job, tests []domain.Test) []domain.ResourceReference {
	refs := []domain.ResourceReference{reference.Resource(job.Label)}
	refs = append(refs, reference.ForTests(job.Label, job.TestPaths)...)
	for _, t := range tests {
		refs = append(refs, reference.ForSteps(job.Label, t.Source, t.StepNames)...)
	}
	return refs
}

func (s *Server) applicationState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.state.Snapshot(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	seq, apiErr := sequenceParam(r)
	if apiErr != nil {
		respondError(w, apiErr)
		return
	}
	e, err := s.repo.GetWorkerEvent(r.Context(), seq)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, eventNotFound())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) abortEvent(w http.ResponseWriter, r *http.Request) {
	seq, apiErr := sequenceParam(r)
	if apiErr != nil {
		respondError(w, apiErr)
		return
	}
	e, aborted, err := s.aborter.Fail(r.Context(), seq)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, eventNotFound())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if aborted {
		s.logger.Info("worker event aborted", "sequence_number", seq)
	}
	respondJSON(w, http.StatusOK, AbortResult{Event: e, Aborted: aborted})
}

func eventNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: "worker event not found"}
}
