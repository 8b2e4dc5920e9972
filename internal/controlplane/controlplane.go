// Package controlplane implements C10: the HTTP entry point that accepts a
// "create report" request, allocates the Report+Task rows, and publishes the
// three step messages that fan the work out to the worker pools. It is
// decoupled from completion; clients poll Task state through the repository
// directly or through a future read endpoint, not through this package.
package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ytreport/internal/bus"
	"ytreport/internal/logging"
	"ytreport/internal/model"
	"ytreport/internal/repository"
)

// Publisher is the subset of bus.Producer this package depends on.
type Publisher interface {
	PublishReportCreated(ctx context.Context, taskID, reportID int64, googleAccessToken string, v2 bool, timestamp time.Time) error
}

// Server holds the collaborators the two report-creation endpoints share.
type Server struct {
	Reports   repository.ReportRepository
	Tasks     repository.TaskRepository
	Publisher Publisher

	// RunIdeaStepOnV2 mirrors steps.Deps.RunIdeaStepOnV2: when false, a
	// v2 report has its idea axis pre-marked COMPLETED here, before the
	// idea message is published; the idea handler still receives the
	// message and skips its workflow.
	RunIdeaStepOnV2 bool

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewServer constructs a Server with Now defaulted to time.Now.
func NewServer(reports repository.ReportRepository, tasks repository.TaskRepository, publisher Publisher, runIdeaStepOnV2 bool) *Server {
	return &Server{Reports: reports, Tasks: tasks, Publisher: publisher, RunIdeaStepOnV2: runIdeaStepOnV2, Now: time.Now}
}

// Routes registers the two report-creation endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /reports", s.handleCreate(false))
	mux.HandleFunc("POST /reports/v2", s.handleCreate(true))
}

type createReportRequest struct {
	GoogleAccessToken string `json:"googleAccessToken"`
}

type createReportResponse struct {
	TaskID int64 `json:"task_id"`
}

// handleCreate builds the POST /reports (v2=false) or POST /reports/v2
// (v2=true) handler. Both read video_id from the query string, insert a
// Report with only video_id populated, insert an all-PENDING Task, and
// publish three step messages. v2 additionally forces skip_vector_save and
// pre-marks idea_status COMPLETED when RunIdeaStepOnV2 is false. The idea
// message is published in every mode, including v2 with RunIdeaStepOnV2
// false, so the idea worker pool still receives it.
func (s *Server) handleCreate(v2 bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		log := logging.Log.WithField("request_id", requestID)

		videoID, err := strconv.ParseInt(r.URL.Query().Get("video_id"), 10, 64)
		if err != nil || videoID <= 0 {
			http.Error(w, "video_id query parameter is required", http.StatusBadRequest)
			return
		}

		var req createReportRequest
		if r.Body != nil {
			defer r.Body.Close()
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		ctx := r.Context()
		report, err := s.Reports.Create(ctx, videoID)
		if err != nil {
			log.Errorf("create report for video %d: %v", videoID, err)
			http.Error(w, "failed to create report", http.StatusInternalServerError)
			return
		}

		task, err := s.Tasks.Create(ctx, report.ID)
		if err != nil {
			log.Errorf("create task for report %d: %v", report.ID, err)
			http.Error(w, "failed to create task", http.StatusInternalServerError)
			return
		}

		if v2 && !s.RunIdeaStepOnV2 {
			if err := s.Tasks.SetIdeaStatus(ctx, report.ID, model.TaskCompleted); err != nil {
				log.Errorf("pre-mark idea status for report %d: %v", report.ID, err)
				http.Error(w, "failed to finalize task", http.StatusInternalServerError)
				return
			}
		}

		if err := s.Publisher.PublishReportCreated(ctx, task.ID, report.ID, req.GoogleAccessToken, v2, s.Now()); err != nil {
			log.Errorf("publish step messages for report %d: %v", report.ID, err)
			http.Error(w, "failed to enqueue report", http.StatusBadGateway)
			return
		}

		log.Infof("created report %d (task %d, v2=%v)", report.ID, task.ID, v2)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(createReportResponse{TaskID: task.ID})
	}
}
