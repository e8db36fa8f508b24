package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"franklin/internal/domain/entity"
)

type DebugHandler struct {
	Jobs   JobReader
	Config map[string]any
}

func NewDebugHandler(jobs JobReader, config map[string]any) *DebugHandler {
	return &DebugHandler{Jobs: jobs, Config: config}
}

type jobSummary struct {
	JobID       string           `json:"jobId"`
	Status      entity.JobStatus `json:"status"`
	Stage       entity.JobStage  `json:"stage"`
	Progress    int              `json:"progress"`
	Question    string           `json:"question"`
	StartTime   time.Time        `json:"startTime"`
	LastUpdated time.Time        `json:"lastUpdated"`
	EndTime     *time.Time       `json:"endTime,omitempty"`
	Error       *entity.JobError `json:"error,omitempty"`
	ResultReady bool             `json:"resultReady"`
}

// ListJobs summarizes every stored job without result payloads.
func (h *DebugHandler) ListJobs(c *gin.Context) {
	jobs, err := h.Jobs.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Error fetching request data",
			"details": err.Error(),
		})
		return
	}

	out := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobSummary{
			JobID:       j.ID,
			Status:      j.Status,
			Stage:       j.Stage,
			Progress:    j.Progress,
			Question:    j.Question,
			StartTime:   j.StartTime,
			LastUpdated: j.LastUpdated,
			EndTime:     j.EndTime,
			Error:       j.Error,
			ResultReady: j.Status == entity.StatusCompleted,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp":     time.Now().UTC(),
		"totalRequests": len(out),
		"requests":      out,
	})
}

func (h *DebugHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.Config)
}
