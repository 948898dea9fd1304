package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/private-doc-vault/docvault-ocr-service/internal/api/shared"
	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
	"github.com/private-doc-vault/docvault-ocr-service/internal/task"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500

	// multipartMemory is kept in memory while parsing an upload; the rest
	// spills to temporary files.
	multipartMemory = 8 << 20
)

// TaskService is the task admission and query surface used by the handlers.
type TaskService interface {
	Submit(ctx context.Context, spec domain.TaskSpec) (*domain.Task, error)
	SubmitBatch(ctx context.Context, specs []domain.TaskSpec) (string, []*domain.Task, error)
	Status(ctx context.Context, id string) (*domain.Task, error)
	Result(ctx context.Context, id string) (*domain.Result, error)
	ProgressHistory(ctx context.Context, id string) ([]domain.ProgressEntry, error)
	Cancel(ctx context.Context, id string) (*domain.Task, error)
	BatchStatus(ctx context.Context, batchID string) (*domain.BatchStatus, error)
	QueueStats(ctx context.Context) (*task.QueueStats, error)
	DeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error)
	RetryDeadLetter(ctx context.Context, id string) (*domain.Task, error)
}

var _ TaskService = (*task.Service)(nil)

// Uploader stores uploaded documents where workers can read them.
type Uploader interface {
	Save(ctx context.Context, filename string, r io.Reader, maxBytes int64) (string, error)
	Cleanup(ctx context.Context, path string) error
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	service        TaskService
	uploads        Uploader
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewTaskHandler creates a new TaskHandler. uploads may be nil, in which
// case only JSON submissions naming an existing file are accepted.
func NewTaskHandler(
	service TaskService,
	uploads Uploader,
	maxUploadBytes int64,
	logger *slog.Logger,
) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		service:        service,
		uploads:        uploads,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /tasks. The body is either a JSON
// CreateTaskRequest or a multipart form with a "file" part.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var (
		req      CreateTaskRequest
		uploaded string
		ok       bool
	)
	if isMultipart(r) {
		req, uploaded, ok = h.receiveUpload(w, r)
	} else {
		ok = h.decodeAndValidate(w, r, &req)
	}
	if !ok {
		return
	}

	t, err := h.service.Submit(r.Context(), req.toSpec())
	if err != nil {
		h.discardUpload(r, uploaded)
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	log.Debug("task submitted", slog.String("task_id", t.ID), slog.Bool("uploaded", uploaded != ""))
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(t))
}

// receiveUpload parses a multipart submission and stores its file part.
func (h *TaskHandler) receiveUpload(w http.ResponseWriter, r *http.Request) (CreateTaskRequest, string, bool) {
	var req CreateTaskRequest
	if h.uploads == nil {
		shared.RespondWithError(w, r, http.StatusUnsupportedMediaType, "File uploads are not enabled")
		return req, "", false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			shared.RespondWithErrorAndLog(w, r, http.StatusRequestEntityTooLarge, "Document too large", err)
			return req, "", false
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return req, "", false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Missing file part", err)
		return req, "", false
	}
	defer func() { _ = file.Close() }()

	req = CreateTaskRequest{
		DocumentID:  r.FormValue("document_id"),
		FilePath:    header.Filename,
		Languages:   parseLanguages(r.FormValue("languages")),
		Priority:    r.FormValue("priority"),
		CallbackURL: r.FormValue("callback_url"),
	}
	if !h.validate(w, r, &req) {
		return req, "", false
	}

	path, err := h.uploads.Save(r.Context(), header.Filename, file, h.maxUploadBytes)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to store document")
		return req, "", false
	}
	req.FilePath = path
	return req, path, true
}

func (h *TaskHandler) discardUpload(r *http.Request, path string) {
	if path == "" {
		return
	}
	if err := h.uploads.Cleanup(context.WithoutCancel(r.Context()), path); err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).
			Warn("failed to remove rejected upload", slog.String("error", err.Error()))
	}
}

// CreateBatch handles POST /batches.
func (h *TaskHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateBatchRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	specs := make([]domain.TaskSpec, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		specs = append(specs, t.toSpec())
	}

	batchID, admitted, err := h.service.SubmitBatch(r.Context(), specs)
	if err != nil {
		if len(admitted) == 0 {
			HandleAPIError(w, r, err, "Failed to submit batch")
			return
		}
		status := MapErrorToStatusCode(err)
		log.Warn("batch partially admitted",
			slog.String("batch_id", batchID),
			slog.Int("admitted", len(admitted)),
			slog.Int("requested", len(specs)),
			slog.String("error", err.Error()))
		shared.RespondWithJSON(w, r, status, BatchResponse{
			BatchID: batchID,
			Tasks:   tasksToResponse(admitted),
			Error:   GetSafeErrorMessage(err),
		})
		return
	}

	log.Debug("batch submitted", slog.String("batch_id", batchID), slog.Int("tasks", len(admitted)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, BatchResponse{
		BatchID: batchID,
		Tasks:   tasksToResponse(admitted),
	})
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.service.Status(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// GetResult handles GET /tasks/{id}/result. A task that exists but has no
// result yet answers 409 with its current status.
func (h *TaskHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.service.Result(r.Context(), id)
	if err == nil {
		shared.RespondWithJSON(w, r, http.StatusOK, result)
		return
	}
	if !errors.Is(err, domain.ErrNotFound) {
		HandleAPIError(w, r, err, "Failed to get result")
		return
	}

	t, statusErr := h.service.Status(r.Context(), id)
	switch {
	case statusErr != nil:
		HandleAPIError(w, r, statusErr, "Failed to get result")
	case t.Status == domain.StatusCompleted:
		shared.RespondWithError(w, r, http.StatusGone, "Result has expired")
	default:
		shared.RespondWithError(w, r, http.StatusConflict, "Result not available, task is "+string(t.Status))
	}
}

// GetProgress handles GET /tasks/{id}/progress.
func (h *TaskHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	history, err := h.service.ProgressHistory(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get progress")
		return
	}
	if history == nil {
		history = []domain.ProgressEntry{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ProgressResponse{TaskID: id, History: history})
}

// CancelTask handles DELETE /tasks/{id}. Only QUEUED tasks can be cancelled.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to cancel task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// GetBatch handles GET /batches/{id}.
func (h *TaskHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.service.BatchStatus(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get batch")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, batchToResponse(b))
}

// GetQueueStats handles GET /queue/stats.
func (h *TaskHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.QueueStats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get queue stats")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, statsToResponse(stats))
}

// ListDeadLetters handles GET /dead-letters?limit=n.
func (h *TaskHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDeadLetterLimit {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				"Invalid limit: must be between 1 and "+strconv.Itoa(maxDeadLetterLimit))
			return
		}
		limit = n
	}

	dead, err := h.service.DeadLetters(r.Context(), limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list dead letters")
		return
	}
	if dead == nil {
		dead = []store.DeadLetter{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, DeadLettersResponse{DeadLetters: dead, Count: len(dead)})
}

// RetryDeadLetter handles POST /dead-letters/{id}/retry.
func (h *TaskHandler) RetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.service.RetryDeadLetter(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retry task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(t))
}

func (h *TaskHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	return h.validate(w, r, v)
}

func (h *TaskHandler) validate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}

// pathID extracts a UUID path parameter, writing a 400 response when it is
// missing or malformed.
func pathID(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+param)
		return "", false
	}
	return id.String(), true
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
