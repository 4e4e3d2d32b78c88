package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"

	"dev/bravebird/pageload-verifier/pkg/models"
)

const (
	workflowName  = "PageVerificationWorkflow"
	progressQuery = "getProgress"
)

// Store persists verification runs
type Store interface {
	CreateVerificationRun(ctx context.Context, run *models.VerificationRun) error
	MarkVerificationRunStarted(ctx context.Context, id, workflowID, runID string) error
	GetVerificationRun(ctx context.Context, id string) (*models.VerificationRun, error)
	ListVerificationRuns(ctx context.Context, status models.RunStatus, limit int) ([]models.VerificationRun, error)
	UpdateVerificationRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	CompleteVerificationRun(ctx context.Context, id string, result models.VerificationResult) error
	GetConsoleMessages(ctx context.Context, runID string) ([]models.ConsoleMessage, error)
}

// Options configures the handlers
type Options struct {
	TaskQueue     string
	Headless      bool
	RetryAttempts int
	PollInterval  time.Duration
}

// Handlers contains API handlers
type Handlers struct {
	db             Store
	temporalClient client.Client
	opts           Options
	log            logrus.FieldLogger
	upgrader       websocket.Upgrader
}

// NewHandlers creates new API handlers; db may be nil to run without persistence
func NewHandlers(db Store, temporalClient client.Client, opts Options, log logrus.FieldLogger) *Handlers {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handlers{
		db:             db,
		temporalClient: temporalClient,
		opts:           opts,
		log:            log.WithField("component", "api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WorkflowID returns the Temporal workflow ID used for a run
func WorkflowID(runID string) string {
	return "page-verification-" + runID
}

// Health reports that the server is up
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==================== Verification Handlers ====================

// CreateVerification starts a page verification
func (h *Handlers) CreateVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PageURL == "" {
		http.Error(w, "page_url is required", http.StatusBadRequest)
		return
	}
	if req.TimeoutSeconds < 0 {
		http.Error(w, "timeout_seconds must not be negative", http.StatusBadRequest)
		return
	}

	if h.temporalClient == nil {
		http.Error(w, "Temporal not available", http.StatusServiceUnavailable)
		return
	}

	headless := h.opts.Headless
	if req.Headless != nil {
		headless = *req.Headless
	}

	runID := uuid.New().String()
	run := &models.VerificationRun{
		ID:              runID,
		PageURL:         req.PageURL,
		ExpectedMessage: req.ExpectedMessage,
		Status:          models.StatusPending,
	}

	if h.db != nil {
		if err := h.db.CreateVerificationRun(ctx, run); err != nil {
			http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	input := models.VerificationInput{
		RunID:           runID,
		PageURL:         req.PageURL,
		ExpectedMessage: req.ExpectedMessage,
		Headless:        headless,
		Timeout:         req.TimeoutSeconds,
		RetryAttempts:   h.opts.RetryAttempts,
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        WorkflowID(runID),
		TaskQueue: h.opts.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflowName, input)
	if err != nil {
		if h.db != nil {
			if uerr := h.db.UpdateVerificationRunStatus(ctx, runID, models.StatusFailed, err.Error()); uerr != nil {
				h.log.WithError(uerr).WithField("run_id", runID).Warn("Failed to mark run failed")
			}
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if h.db != nil {
		if err := h.db.MarkVerificationRunStarted(ctx, runID, we.GetID(), we.GetRunID()); err != nil {
			h.log.WithError(err).WithField("run_id", runID).Warn("Failed to mark run started")
		}
	}

	h.log.WithFields(logrus.Fields{"run_id": runID, "page": req.PageURL}).Info("Verification started")

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":               runID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"status":               models.StatusRunning,
	})
}

// ListVerifications lists recent verification runs
func (h *Handlers) ListVerifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	status := models.RunStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusPending, models.StatusRunning, models.StatusSuccess, models.StatusFailed, models.StatusCanceled:
	default:
		http.Error(w, "Unknown status: "+string(status), http.StatusBadRequest)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.db.ListVerificationRuns(ctx, status, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

// GetVerification retrieves a verification run with its console output
func (h *Handlers) GetVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetVerificationRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	if !run.Status.IsTerminal() {
		if _, err := h.syncRun(ctx, id); err != nil {
			h.log.WithError(err).WithField("run_id", id).Debug("Progress not available")
		} else if updated, err := h.db.GetVerificationRun(ctx, id); err == nil && updated != nil {
			run = updated
		}
	}

	messages, err := h.db.GetConsoleMessages(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	run.ConsoleMessages = messages

	respondJSON(w, http.StatusOK, run)
}

// CancelVerification cancels a running verification
func (h *Handlers) CancelVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetVerificationRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.IsTerminal() {
		http.Error(w, "Run already finished", http.StatusConflict)
		return
	}

	// Cancel Temporal workflow
	if run.TemporalWorkflowID != "" && h.temporalClient != nil {
		err = h.temporalClient.CancelWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID)
		if err != nil {
			http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.db.UpdateVerificationRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusCanceled)})
}

// StreamVerification streams run updates via WebSocket until the run finishes
func (h *Handlers) StreamVerification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// r.Context() is not canceled when a hijacked client goes away; the
	// reader cancels the poll loop instead.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	var lastStatus models.RunStatus
	lastCount := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			progress, err := h.progress(ctx, id)
			if err != nil {
				continue
			}

			if progress.Status == lastStatus && len(progress.ConsoleMessages) == lastCount {
				continue
			}

			msg := models.WSMessage{
				Type:    "run_update",
				Payload: progress,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

			lastStatus = progress.Status
			lastCount = len(progress.ConsoleMessages)

			// Close if completed
			if progress.Status.IsTerminal() {
				return
			}
		}
	}
}

// ==================== Helpers ====================

// progress returns the current state of a run, from Temporal when possible
func (h *Handlers) progress(ctx context.Context, id string) (models.VerificationResult, error) {
	if h.temporalClient != nil {
		if result, err := h.syncRun(ctx, id); err == nil {
			return result, nil
		}
	}

	// Fall back to DB if Temporal query didn't work
	if h.db == nil {
		return models.VerificationResult{}, errors.New("run progress not available")
	}
	run, err := h.db.GetVerificationRun(ctx, id)
	if err != nil {
		return models.VerificationResult{}, err
	}
	if run == nil {
		return models.VerificationResult{}, fmt.Errorf("run %s not found", id)
	}
	return h.storedResult(ctx, run), nil
}

// syncRun queries the workflow for progress and stores a finished result.
// A run already stored as finished is returned as stored; in particular a
// canceled run keeps its status.
func (h *Handlers) syncRun(ctx context.Context, id string) (models.VerificationResult, error) {
	var result models.VerificationResult
	if h.temporalClient == nil {
		return result, errors.New("temporal not available")
	}

	if h.db != nil {
		run, err := h.db.GetVerificationRun(ctx, id)
		if err != nil {
			return result, err
		}
		if run != nil && run.Status.IsTerminal() {
			return h.storedResult(ctx, run), nil
		}
	}

	resp, err := h.temporalClient.QueryWorkflow(ctx, WorkflowID(id), "", progressQuery)
	if err != nil {
		return result, fmt.Errorf("failed to query workflow: %w", err)
	}
	if err := resp.Get(&result); err != nil {
		return result, fmt.Errorf("failed to decode progress: %w", err)
	}

	if result.Status.IsTerminal() && h.db != nil {
		if err := h.db.CompleteVerificationRun(ctx, id, result); err != nil {
			h.log.WithError(err).WithField("run_id", id).Warn("Failed to store result")
		}
	}
	return result, nil
}

// storedResult rebuilds a result from a stored run and its console messages
func (h *Handlers) storedResult(ctx context.Context, run *models.VerificationRun) models.VerificationResult {
	result := models.VerificationResult{
		RunID:           run.ID,
		Status:          run.Status,
		PageURL:         run.PageURL,
		ExpectedMessage: run.ExpectedMessage,
		LoadStatus:      run.LoadStatus,
		MessageObserved: run.MessageObserved,
		Verdict:         run.Verdict,
		ExitCode:        models.ExitFail,
		Duration:        run.Duration,
		ErrorMessage:    run.ErrorMessage,
	}
	if run.ExitCode != nil {
		result.ExitCode = *run.ExitCode
	}

	messages, err := h.db.GetConsoleMessages(ctx, run.ID)
	if err != nil {
		h.log.WithError(err).WithField("run_id", run.ID).Warn("Failed to read console messages")
	}
	for _, m := range messages {
		result.ConsoleMessages = append(result.ConsoleMessages, m.Message)
	}
	return result
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
