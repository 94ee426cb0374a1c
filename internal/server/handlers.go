package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/optimode/mailprobe"
	"github.com/optimode/mailprobe/batch"
	"github.com/optimode/mailprobe/types"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to a temporary file.
const multipartMemory = 32 << 20

// RequestOptions are the per-request validation switches.
type RequestOptions struct {
	SkipSMTP  bool `json:"skip_smtp"`
	ForceSMTP bool `json:"force_smtp"`
}

func (o RequestOptions) batch() batch.Options {
	return batch.Options{SkipSMTP: o.SkipSMTP, ForceSMTP: o.ForceSMTP}
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	Email   string         `json:"email"`
	Options RequestOptions `json:"options"`
}

// BulkRequest is the body of POST /v1/validate/bulk.
type BulkRequest struct {
	Emails  []string       `json:"emails"`
	Options RequestOptions `json:"options"`
}

// SubmitResponse acknowledges a queued job.
type SubmitResponse struct {
	JobID  string      `json:"jobId"`
	Total  int         `json:"total"`
	Status batch.State `json:"status"`
}

// ResultsResponse is the body of GET /v1/jobs/{id}/results.
type ResultsResponse struct {
	JobID   string                   `json:"jobId"`
	Results []types.ValidationResult `json:"results"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string    `json:"status"`
	Instance   string    `json:"instance"`
	Timestamp  time.Time `json:"timestamp"`
	ActiveJobs int       `json:"activeJobs"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	batch.Stats
	Instance string `json:"instance"`
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	result, err := s.validator.Validate(r.Context(), email, mailprobe.ValidateOptions{
		SkipSMTP:  req.Options.SkipSMTP,
		ForceSMTP: req.Options.ForceSMTP,
	})
	if err != nil {
		s.logger.Error("validate failed", zap.Error(err))
		HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) submitBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Emails == nil {
		writeError(w, http.StatusBadRequest, "emails array is required")
		return
	}

	id, err := s.engine.Submit(r.Context(), req.Emails, req.Options.batch())
	if err != nil {
		HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: id, Total: len(req.Emails), Status: batch.StateQueued})
}

func (s *Server) submitCSV(w http.ResponseWriter, r *http.Request) {
	file, ok := uploadedCSV(w, r)
	if !ok {
		return
	}
	defer file.Close()

	var opts RequestOptions
	if raw := r.FormValue("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			writeError(w, http.StatusBadRequest, "options must be a JSON object")
			return
		}
	}

	header, rows, err := batch.ReadRows(file, r.FormValue("emailColumn"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.engine.SubmitRows(r.Context(), header, rows, opts.batch())
	if err != nil {
		HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: id, Total: len(rows), Status: batch.StateQueued})
}

func (s *Server) csvHeaders(w http.ResponseWriter, r *http.Request) {
	file, ok := uploadedCSV(w, r)
	if !ok {
		return
	}
	defer file.Close()

	header, err := batch.ReadHeader(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"headers": header})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.GetStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) jobResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	results, err := s.engine.GetResults(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResultsResponse{JobID: id, Results: results})
}

func (s *Server) jobResultsCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.engine.GetJob(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	if job.State != batch.StateCompleted {
		HandleError(w, batch.ErrJobNotCompleted)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "validation_results_"+id+".csv"))
	if err := batch.WriteCSV(w, job); err != nil {
		// headers are already sent
		s.logger.Error("csv export failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "OK",
		Instance:   s.instance,
		Timestamp:  time.Now().UTC(),
		ActiveJobs: s.engine.ActiveJobs(),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Stats(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: st, Instance: s.instance})
}

func (s *Server) jobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.engine.Jobs(r.Context(), 0)
	if err != nil {
		HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// decodeJSON writes the error reply itself and reports whether to go on.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleError(w, err)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func uploadedCSV(w http.ResponseWriter, r *http.Request) (multipart.File, bool) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleError(w, err)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "CSV file is required")
		return nil, false
	}
	file, _, err := r.FormFile("csvFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "CSV file is required")
		return nil, false
	}
	return file, true
}
