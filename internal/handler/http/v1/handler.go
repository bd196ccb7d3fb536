package v1

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/bus"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	incidentService service.IncidentService
	routeService    service.RouteService
	broker          *bus.Broker
	operatorPolicy  OperatorPolicy
	logger          *logrus.Logger
	validate        *validator.Validate
	cfg             *config.Config
}

func NewHandler(incidentService service.IncidentService, routeService service.RouteService, broker *bus.Broker, operatorPolicy OperatorPolicy, logger *logrus.Logger, cfg *config.Config) *Handler {
	return &Handler{
		incidentService: incidentService,
		routeService:    routeService,
		broker:          broker,
		operatorPolicy:  operatorPolicy,
		logger:          logger,
		validate:        validator.New(),
		cfg:             cfg,
	}
}

// @Summary Create a rescue report
// @Description Submit a new geotagged rescue report. The image is assumed already verified by the calling layer. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param report body CreateReportRequest true "Report creation request"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports [post]
func (h *Handler) createReport(c *gin.Context) {
	var input CreateReportRequest
	log := h.logger.WithField("method", "createReport")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model := DTOToIncidentModel(input)
	if err := h.incidentService.CreateReport(c.Request.Context(), model); err != nil {
		log.WithError(err).Error("Failed to create report in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(model))
}

// @Summary Get a list of reports
// @Description Get a paginated list of all reports, newest first. Dashboards use this as the full reconciliation fetch. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(10)
// @Success 200 {array} IncidentResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports [get]
func (h *Handler) listReports(c *gin.Context) {
	log := h.logger.WithField("method", "listReports")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list reports from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Discover open reports nearby
// @Description Find open reports within a radius of a point, nearest first. Live query, no caching. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param lat query number true "Latitude"
// @Param lon query number true "Longitude"
// @Param radius_km query number false "Search radius in kilometers" default(10)
// @Success 200 {array} IncidentResponse
// @Failure 400 {object} map[string]string "Missing or invalid coordinates"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports/nearby [get]
func (h *Handler) nearbyReports(c *gin.Context) {
	log := h.logger.WithField("method", "nearbyReports")

	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon query parameters are required"})
		return
	}
	radiusKm, _ := strconv.ParseFloat(c.DefaultQuery("radius_km", "0"), 64)

	incidents, err := h.incidentService.FindOpenNear(c.Request.Context(), lat, lon, radiusKm)
	if err != nil {
		log.WithError(err).Error("Failed to discover nearby reports")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get reporter's reports and stats
// @Description Get all reports of a reporter, newest first, with live reputation stats. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param reporter_id query string true "Reporter ID"
// @Success 200 {object} MyReportsResponse
// @Failure 400 {object} map[string]string "Missing reporter_id"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports/mine [get]
func (h *Handler) myReports(c *gin.Context) {
	log := h.logger.WithField("method", "myReports")

	reporterID := c.Query("reporter_id")
	if reporterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reporter_id query parameter is required"})
		return
	}

	incidents, err := h.incidentService.ListReporterIncidents(c.Request.Context(), reporterID)
	if err != nil {
		log.WithError(err).Error("Failed to list reporter's reports")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	stats, err := h.incidentService.LiveStatsFor(c.Request.Context(), reporterID)
	if err != nil {
		log.WithError(err).Error("Failed to compute reporter stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, MyReportsResponse{
		Reports: ModelsToIncidentResponses(incidents),
		Stats: ReporterStatsResponse{
			ResolvedCount: stats.ResolvedCount,
			TotalCount:    stats.TotalCount,
			KarmaPoints:   stats.KarmaPoints,
		},
	})
}

// @Summary Get report by ID
// @Description Get a single report by its ID. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid report ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports/{id} [get]
func (h *Handler) getReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
		return
	}
	log := h.logger.WithField("method", "getReport").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		log.WithError(err).Error("Failed to get report from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Claim a report
// @Description Atomically claim an open report for a rescue organization. Exactly one concurrent claimer succeeds. Operators only.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Param claim body ClaimReportRequest true "Claim request"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid report ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Operators only"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 409 {object} map[string]string "Report already claimed"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports/{id}/claim [post]
func (h *Handler) claimReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
		return
	}
	log := h.logger.WithField("method", "claimReport").WithField("id", id)

	var input ClaimReportRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.incidentService.ClaimIncident(c.Request.Context(), id, input.OrganizationID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrStateConflict):
			// Штатный исход гонки, отличимый от настоящей ошибки
			c.JSON(http.StatusConflict, gin.H{"error": "report already taken by another organization"})
		case errors.Is(err, models.ErrIncidentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		default:
			log.WithError(err).Error("Failed to claim report in service")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Resolve a report
// @Description Mark a claimed report as resolved. Operators only.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid report ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Operators only"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 409 {object} map[string]string "Report is not claimed"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports/{id}/resolve [post]
func (h *Handler) resolveReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
		return
	}
	log := h.logger.WithField("method", "resolveReport").WithField("id", id)

	incident, err := h.incidentService.ResolveIncident(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrStateConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "report is not in a claimed state"})
		case errors.Is(err, models.ErrIncidentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		default:
			log.WithError(err).Error("Failed to resolve report in service")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Plan a multi-stop rescue route
// @Description Request an ordered visiting sequence for claimed reports from the external routing service. Operators only.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param route body PlanRouteRequest true "Route planning request"
// @Success 200 {object} RoutePlanResponse
// @Failure 400 {object} map[string]string "Invalid request or fewer than two waypoints"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Operators only"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 502 {object} map[string]string "Routing service failure"
// @Router /routes/plan [post]
func (h *Handler) planRoute(c *gin.Context) {
	var input PlanRouteRequest
	log := h.logger.WithField("method", "planRoute")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incidentIDs := make([]uuid.UUID, 0, len(input.IncidentIDs))
	for _, raw := range input.IncidentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID in route request"})
			return
		}
		incidentIDs = append(incidentIDs, id)
	}

	plan, err := h.routeService.PlanRoute(c.Request.Context(), input.Latitude, input.Longitude, incidentIDs)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotEnoughWaypoints):
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least two incidents are required for a route"})
		case errors.Is(err, models.ErrIncidentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		case errors.Is(err, models.ErrRoutingFailure):
			// Не фатально: заявки остаются за организацией
			c.JSON(http.StatusBadGateway, gin.H{"error": "routing service failed, claims are unaffected"})
		default:
			log.WithError(err).Error("Failed to plan route in service")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, ModelToRoutePlanResponse(plan))
}

// @Summary Stream lifecycle events
// @Description Server-sent events stream of report lifecycle transitions. Best-effort delivery, reconcile with a full fetch after reconnect. Requires API key.
// @Tags Events
// @Produce text/event-stream
// @Security ApiKeyAuth
// @Success 200 {string} string "event stream"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /events [get]
func (h *Handler) streamEvents(c *gin.Context) {
	sub := h.broker.Subscribe()
	defer h.broker.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		}
	})
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
