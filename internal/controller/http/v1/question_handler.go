package v1

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"franklin/internal/domain/entity"
	"franklin/internal/domain/usecase"
)

type QuestionUseCase interface {
	Submit(ctx context.Context, question string) (*entity.Job, error)
}

// JobReader is the read side of the job store.
type JobReader interface {
	Get(ctx context.Context, id string) (*entity.Job, error)
	List(ctx context.Context) ([]*entity.Job, error)
}

type QuestionHandler struct {
	UseCase QuestionUseCase
	Jobs    JobReader
	logger  *log.Logger
}

func NewQuestionHandler(u QuestionUseCase, jobs JobReader, logger *log.Logger) *QuestionHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &QuestionHandler{UseCase: u, Jobs: jobs, logger: logger}
}

type submitRequest struct {
	Question string `json:"question"`
}

type submitResponse struct {
	JobID     string           `json:"jobId"`
	RequestID string           `json:"requestId"`
	Status    entity.JobStatus `json:"status"`
	Message   string           `json:"message"`
	StatusURL string           `json:"statusUrl"`
	ResultURL string           `json:"resultUrl"`
}

type statusResponse struct {
	JobID       string           `json:"jobId"`
	RequestID   string           `json:"requestId"`
	Status      entity.JobStatus `json:"status"`
	Stage       entity.JobStage  `json:"stage"`
	Progress    int              `json:"progress"`
	Message     string           `json:"message,omitempty"`
	Question    string           `json:"question"`
	Error       *entity.JobError `json:"error"`
	StartTime   time.Time        `json:"startTime"`
	LastUpdated time.Time        `json:"lastUpdated"`
	EndTime     *time.Time       `json:"endTime,omitempty"`
	ResultReady bool             `json:"resultReady"`
}

type resultResponse struct {
	JobID     string           `json:"jobId"`
	RequestID string           `json:"requestId"`
	Status    entity.JobStatus `json:"status"`
	Answer    string           `json:"answer"`
	AudioURL  string           `json:"audioUrl,omitempty"`
	VideoURL  string           `json:"videoUrl"`
}

func statusURL(id string) string { return "/api/v1/question/" + id + "/status" }
func resultURL(id string) string { return "/api/v1/question/" + id + "/result" }

func (h *QuestionHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
		return
	}

	job, err := h.UseCase.Submit(c.Request.Context(), req.Question)
	if errors.Is(err, usecase.ErrEmptyQuestion) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
		return
	}
	if err != nil {
		h.logger.Printf("submit question: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "An error occurred while processing your request",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, submitResponse{
		JobID:     job.ID,
		RequestID: job.ID,
		Status:    job.Status,
		Message:   job.Message,
		StatusURL: statusURL(job.ID),
		ResultURL: resultURL(job.ID),
	})
}

// load writes the 404 or 503 response itself and returns nil when the job
// cannot be read.
func (h *QuestionHandler) load(c *gin.Context) *entity.Job {
	jobID := c.Param("jobId")
	job, err := h.Jobs.Get(c.Request.Context(), jobID)
	if errors.Is(err, entity.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return nil
	}
	if err != nil {
		h.logger.Printf("[JOB %s] read failed: %v", jobID, err)
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job state temporarily unavailable"})
		return nil
	}
	return job
}

func (h *QuestionHandler) GetStatus(c *gin.Context) {
	job := h.load(c)
	if job == nil {
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		JobID:       job.ID,
		RequestID:   job.ID,
		Status:      job.Status,
		Stage:       job.Stage,
		Progress:    job.Progress,
		Message:     job.Message,
		Question:    job.Question,
		Error:       job.Error,
		StartTime:   job.StartTime,
		LastUpdated: job.LastUpdated,
		EndTime:     job.EndTime,
		ResultReady: job.Status == entity.StatusCompleted,
	})
}

func (h *QuestionHandler) GetResult(c *gin.Context) {
	job := h.load(c)
	if job == nil {
		return
	}

	if job.Status != entity.StatusCompleted || job.Result == nil {
		body := gin.H{
			"error":    "Result not yet available",
			"status":   job.Status,
			"stage":    job.Stage,
			"progress": job.Progress,
		}
		if job.Error != nil {
			body["jobError"] = job.Error
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}

	c.JSON(http.StatusOK, resultResponse{
		JobID:     job.ID,
		RequestID: job.ID,
		Status:    entity.StatusCompleted,
		Answer:    job.Result.Answer,
		AudioURL:  job.Result.AudioURL,
		VideoURL:  job.Result.VideoURL,
	})
}
