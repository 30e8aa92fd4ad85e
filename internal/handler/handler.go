package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/dto"
	"github.com/signalfold/signal-collector/internal/service"
)

type Handler struct {
	incidentService service.IncidentServicer
	router          *gin.Engine
	log             *zap.Logger
}

func NewHandler(incidentService service.IncidentServicer, log *zap.Logger) *Handler {
	h := &Handler{
		incidentService: incidentService,
		router:          gin.Default(),
		log:             log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.GET("/incidents", h.listIncidents)
	h.router.GET("/incidents/:key", h.getIncident)
	h.router.GET("/incidents/:key/events", h.getIncidentEvents)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.incidentService.Ping(c.Request.Context()); err != nil {
		h.log.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// listIncidents handles GET /incidents
func (h *Handler) listIncidents(c *gin.Context) {
	var req dto.ListIncidentsRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Warn("Invalid incident listing request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.incidentService.ListIncidents(c.Request.Context(), &req)
	if err != nil {
		h.log.Error("Failed to list incidents",
			zap.Error(err),
			zap.String("status", req.Status))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

// getIncident handles GET /incidents/:key
func (h *Handler) getIncident(c *gin.Context) {
	key := c.Param("key")

	response, err := h.incidentService.GetIncident(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "not_found",
				Message: "no incident for key " + key,
			})
			return
		}
		h.log.Error("Failed to get incident",
			zap.Error(err),
			zap.String("incident_key", key))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

// getIncidentEvents handles GET /incidents/:key/events
func (h *Handler) getIncidentEvents(c *gin.Context) {
	key := c.Param("key")

	response, err := h.incidentService.GetIncidentEvents(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "not_found",
				Message: "no incident for key " + key,
			})
			return
		}
		h.log.Error("Failed to get incident events",
			zap.Error(err),
			zap.String("incident_key", key))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}
