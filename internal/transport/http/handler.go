package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/lending-eventbus/internal/eventbus"
	"github.com/richardliu001/lending-eventbus/internal/model"
	"github.com/richardliu001/lending-eventbus/internal/repo"
)

// Bus is the part of eventbus.Bus the admin API uses.
type Bus interface {
	Publish(ctx context.Context, draft model.EventDraft) (*model.DomainEvent, error)
	GetEventHistory(ctx context.Context, aggregateID, aggregateType string) ([]model.DomainEvent, error)
	EventsByCorrelation(ctx context.Context, correlationID string) ([]model.DomainEvent, error)
	ExecutionLog(ctx context.Context, eventID string) ([]model.EventProcessingLog, error)
	Handlers(ctx context.Context) ([]model.EventHandler, error)
	SetEnabled(ctx context.Context, handlerName string, enabled bool) error
	Replay(ctx context.Context, aggregateID, aggregateType string) (int, error)
}

func RegisterHandlers(r *gin.Engine, bus Bus) {
	v1 := r.Group("/v1")
	{
		v1.POST("/events", publishHandler(bus))
		v1.GET("/events", correlationHandler(bus))
		v1.GET("/events/:id/executions", executionsHandler(bus))
		v1.GET("/aggregates/:type/:id/events", historyHandler(bus))
		v1.POST("/aggregates/:type/:id/replay", replayHandler(bus))
		v1.GET("/handlers", listHandlersHandler(bus))
		v1.POST("/handlers/:name/enable", toggleHandler(bus, true))
		v1.POST("/handlers/:name/disable", toggleHandler(bus, false))
	}
}

type publishReq struct {
	EventType     string                 `json:"eventType" binding:"required"`
	EventVersion  string                 `json:"eventVersion"`
	AggregateID   string                 `json:"aggregateId" binding:"required"`
	AggregateType string                 `json:"aggregateType" binding:"required"`
	Payload       json.RawMessage        `json:"payload"`
	Metadata      map[string]interface{} `json:"metadata"`
	CausationID   string                 `json:"causationId"`
	CorrelationID string                 `json:"correlationId"`
}

func publishHandler(bus Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req publishReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		evt, err := bus.Publish(c, model.EventDraft{
			EventType:     req.EventType,
			EventVersion:  req.EventVersion,
			AggregateID:   req.AggregateID,
			AggregateType: req.AggregateType,
			Payload:       req.Payload,
			Metadata:      req.Metadata,
			CausationID:   req.CausationID,
			CorrelationID: req.CorrelationID,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, evt)
	}
}

func correlationHandler(bus Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Query("correlation_id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "correlation_id is required"})
			return
		}
		evts, err := bus.EventsByCorrelation(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, evts)
	}
}

func executionsHandler(bus Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := bus.ExecutionLog(c, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func historyHandler(bus Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		evts, err := bus.GetEventHistory(c, c.Param("id"), c.Param("type"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, evts)
	}
}

func replayHandler(bus Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := bus.Replay(c, c.Param("id"), c.Param("type"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"replayed": n})
	}
}

func listHandlersHandler(bus Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		hs, err := bus.Handlers(c)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, hs)
	}
}

func toggleHandler(bus Bus, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := bus.SetEnabled(c, name, enabled); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"handler": name, "enabled": enabled})
	}
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, eventbus.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repo.ErrHandlerNotFound), errors.Is(err, repo.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repo.ErrSequenceConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, eventbus.ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
