package api

import (
	"strings"
	"time"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
	"github.com/private-doc-vault/docvault-ocr-service/internal/task"
)

// MaxBatchSize caps the number of tasks in one batch submission.
const MaxBatchSize = 100

// CreateTaskRequest defines the payload for submitting one document.
type CreateTaskRequest struct {
	DocumentID string `json:"document_id" validate:"omitempty,max=255"`

	// FilePath names a document already present in shared storage. It is
	// filled in by the server for multipart uploads.
	FilePath    string   `json:"file_path"    validate:"required,max=1024"`
	Languages   []string `json:"languages"    validate:"omitempty,max=8,dive,required,max=16"`
	Priority    string   `json:"priority"     validate:"omitempty,oneof=high normal low"`
	CallbackURL string   `json:"callback_url" validate:"omitempty,url,max=2048"`
}

func (r CreateTaskRequest) toSpec() domain.TaskSpec {
	return domain.TaskSpec{
		DocumentID:  r.DocumentID,
		FilePath:    r.FilePath,
		Languages:   r.Languages,
		Priority:    domain.Priority(r.Priority),
		CallbackURL: r.CallbackURL,
	}
}

// CreateBatchRequest defines the payload for submitting several documents
// under one batch id.
type CreateBatchRequest struct {
	Tasks []CreateTaskRequest `json:"tasks" validate:"required,min=1,max=100,dive"`
}

// TaskResponse is the public view of a task. Claim tokens and callback URLs
// are internal and never returned.
type TaskResponse struct {
	TaskID      string     `json:"task_id"`
	DocumentID  string     `json:"document_id,omitempty"`
	BatchID     string     `json:"batch_id,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Languages   []string   `json:"languages,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		TaskID:      t.ID,
		DocumentID:  t.DocumentID,
		BatchID:     t.BatchID,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Progress:    t.Progress,
		Message:     t.Message,
		Languages:   t.Languages,
		RetryCount:  t.RetryCount,
		MaxRetries:  t.MaxRetries,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

func tasksToResponse(tasks []*domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToResponse(t))
	}
	return out
}

// BatchResponse is returned by batch submission. Error is set when only a
// prefix of the batch was admitted.
type BatchResponse struct {
	BatchID string         `json:"batch_id"`
	Tasks   []TaskResponse `json:"tasks"`
	Error   string         `json:"error,omitempty"`
}

// BatchStatusResponse aggregates the state of a batch.
type BatchStatusResponse struct {
	BatchID  string         `json:"batch_id"`
	Total    int            `json:"total"`
	Counts   map[string]int `json:"counts"`
	Progress int            `json:"progress"`
	Done     bool           `json:"done"`
	Tasks    []TaskResponse `json:"tasks"`
}

func batchToResponse(b *domain.BatchStatus) BatchStatusResponse {
	counts := make(map[string]int, len(b.Counts))
	for status, n := range b.Counts {
		counts[string(status)] = n
	}
	return BatchStatusResponse{
		BatchID:  b.BatchID,
		Total:    b.Total,
		Counts:   counts,
		Progress: b.Progress,
		Done:     b.Done,
		Tasks:    tasksToResponse(b.Tasks),
	}
}

// ProgressResponse lists the recent progress history of a task, oldest first.
type ProgressResponse struct {
	TaskID  string                 `json:"task_id"`
	History []domain.ProgressEntry `json:"history"`
}

// QueueStatsResponse reports queue depths per priority tier.
type QueueStatsResponse struct {
	Depths      map[string]int64 `json:"depths"`
	Total       int64            `json:"total"`
	DeadLetters int64            `json:"dead_letters"`
}

func statsToResponse(s *task.QueueStats) QueueStatsResponse {
	depths := make(map[string]int64, len(domain.Priorities))
	for _, p := range domain.Priorities {
		depths[string(p)] = s.Depths[p]
	}
	return QueueStatsResponse{Depths: depths, Total: s.Total, DeadLetters: s.DeadLetters}
}

// DeadLettersResponse lists failed tasks awaiting manual attention.
type DeadLettersResponse struct {
	DeadLetters []store.DeadLetter `json:"dead_letters"`
	Count       int                `json:"count"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// parseLanguages splits a comma separated form value.
func parseLanguages(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
