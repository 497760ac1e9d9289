package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mpi-hub/orientation-hub/internal/application/query"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth answers 503 only when a critical dependency is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady answers 503 while any dependency is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// ORIENTATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleOrientation(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Orientation.Handle(r.Context(), query.GetOrientationQuery{
		Section:   r.PathValue("section"),
		StudentID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// simulateRequest is the body of the simulate endpoint.
type simulateRequest struct {
	Grades []query.SimulatedGrade `json:"grades"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var body simulateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return
		}
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Request body must be {\"grades\": [...]}: "+err.Error())
		return
	}

	dto, err := s.deps.Simulate.Handle(r.Context(), query.SimulateQuery{
		Section:   r.PathValue("section"),
		StudentID: r.PathValue("id"),
		Grades:    body.Grades,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	window, err := queryInt(r, "window")
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	dto, err := s.deps.Ranking.Handle(r.Context(), query.GetTrackRankingQuery{
		Section: r.PathValue("section"),
		Track:   r.PathValue("track"),
		Limit:   limit,
		Offset:  offset,
		Around:  r.URL.Query().Get("around"),
		Window:  window,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Progress.Handle(r.Context(), query.GetProgressQuery{
		Section:   r.PathValue("section"),
		StudentID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleStanding(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Standing.Handle(r.Context(), query.GetStandingQuery{
		Section:   r.PathValue("section"),
		StudentID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Subjects.Handle(r.Context(), query.GetSubjectTableQuery{
		Section:   r.PathValue("section"),
		StudentID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Comparison.Handle(r.Context(), query.GetComparisonQuery{
		Track:     r.PathValue("track"),
		Section:   r.PathValue("section"),
		StudentID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: requestID(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeEnvelope(w, status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: requestID(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error to a status code. Internal details of 5xx
// errors are logged, not returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}

	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err))
		message = http.StatusText(status)
	}
	writeJSONError(w, r, status, code, message)
}

func statusFor(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case shared.IsExternalService(err):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// queryInt reads an optional integer parameter; absent means 0.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
