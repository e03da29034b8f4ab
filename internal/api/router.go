package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agenttool/agenttool/internal/agent"
	"github.com/agenttool/agenttool/internal/agent/registry"
	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/events/bus"
	"github.com/agenttool/agenttool/internal/session"
	"github.com/agenttool/agenttool/internal/session/store"
)

// NewRouter builds the gin engine with all API routes mounted.
func NewRouter(orch *session.Orchestrator, reg *registry.Registry, pool *agent.Pool, st store.Store, eventBus bus.EventBus, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	SetupRoutes(router.Group("/api/v1"), orch, reg, pool, st, eventBus, log)
	return router
}

// SetupRoutes configures the orchestration API routes
func SetupRoutes(router *gin.RouterGroup, orch *session.Orchestrator, reg *registry.Registry, pool *agent.Pool, st store.Store, eventBus bus.EventBus, log *logger.Logger) {
	handler := NewHandler(orch, reg, pool, st, log)
	stream := NewStreamHandler(eventBus, log)

	// Session routes
	sessions := router.Group("/sessions")
	{
		sessions.POST("", handler.CreateSession)
		sessions.GET("", handler.ListSessions)
		sessions.GET("/:sessionId", handler.GetSession)
		sessions.POST("/:sessionId/messages", handler.SendMessage)
		sessions.GET("/:sessionId/messages", handler.ListMessages)
		sessions.GET("/:sessionId/tasks", handler.ListTasks)
		sessions.POST("/:sessionId/pause", handler.PauseSession)
		sessions.POST("/:sessionId/resume", handler.ResumeSession)
		sessions.POST("/:sessionId/complete", handler.CompleteSession)
		sessions.POST("/:sessionId/merge", handler.MergeSession)
	}

	// Agent routes
	agents := router.Group("/agents")
	{
		agents.POST("", handler.RegisterAgent)
		agents.GET("", handler.ListAgents)
		agents.GET("/:agentId", handler.GetAgent)
		agents.GET("/:agentId/status", handler.GetAgentStatus)
		agents.PUT("/:agentId/permissions", handler.UpdateAgentPermissions)
	}

	// Event stream
	router.GET("/events", stream.StreamEvents)
}
