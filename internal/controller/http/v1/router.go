package v1

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"franklin/pkg/middleware"
)

type RouterDeps struct {
	Questions QuestionUseCase
	Jobs      JobReader
	Events    Subscriber
	// Config is the secret-free summary served on /debug/config.
	Config map[string]any
	// RateLimit guards submissions when set.
	RateLimit gin.HandlerFunc
	Logger    *log.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.CORS())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	questions := NewQuestionHandler(d.Questions, d.Jobs, d.Logger)
	debug := NewDebugHandler(d.Jobs, d.Config)

	v1Group := r.Group("/api/v1")
	{
		submit := []gin.HandlerFunc{questions.Submit}
		if d.RateLimit != nil {
			submit = append([]gin.HandlerFunc{d.RateLimit}, submit...)
		}
		v1Group.POST("/question", submit...)
		v1Group.GET("/question/:jobId/status", questions.GetStatus)
		v1Group.GET("/question/:jobId/result", questions.GetResult)

		if d.Events != nil {
			v1Group.GET("/socket", NewSocketHandler(d.Events, d.Logger).Serve)
		}

		v1Group.GET("/debug/jobs", debug.ListJobs)
		v1Group.GET("/debug/config", debug.GetConfig)
	}
	return r
}
