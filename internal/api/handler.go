package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/vessel-alert-engine/internal/alerts"
	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
)

type Handler struct {
	manager     *alerts.Manager
	store       repository.Store
	broadcaster *alerts.Broadcaster
}

func NewHandler(manager *alerts.Manager, store repository.Store, broadcaster *alerts.Broadcaster) *Handler {
	return &Handler{
		manager:     manager,
		store:       store,
		broadcaster: broadcaster,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	r.GET("/api/alerts", h.listAlerts)
	r.GET("/api/alerts/stream", h.streamAlerts)
	r.GET("/api/alerts/:id", h.getAlert)
	r.POST("/api/alerts/:id/ack", h.acknowledgeAlert)
	r.POST("/api/alerts/:id/retry", h.retryAlert)

	r.GET("/api/policies", h.listPolicies)
	r.GET("/api/vessels", h.listVessels)
	r.POST("/api/positions", h.pushPosition)
	r.POST("/api/events", h.pushEvent)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listAlerts(c *gin.Context) {
	filter := repository.AlertFilter{
		Limit: 50, // Default to 50 alerts if limit param not supplied
	}

	if v := c.Query("vessel_id"); v != "" {
		filter.VesselID = &v
	}
	if e := c.Query("event_id"); e != "" {
		filter.EventID = &e
	}
	if s := c.Query("status"); s != "" {
		status := models.AlertStatus(s)
		filter.Status = &status
	}
	if s := c.Query("severity"); s != "" {
		sev := models.Severity(s)
		if sev.Valid() {
			filter.Severity = &sev
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filter.Since = &t
		} else if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	list, err := h.manager.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch alerts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": toAlertViews(list)})
}

func (h *Handler) getAlert(c *gin.Context) {
	id := c.Param("id")

	alert, err := h.manager.GetAlert(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alert"})
		return
	}

	deliveries, err := h.manager.ListDeliveries(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch deliveries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alert":      toAlertView(alert),
		"deliveries": toDeliveryViews(deliveries),
	})
}

func (h *Handler) acknowledgeAlert(c *gin.Context) {
	id := c.Param("id")

	alert, err := h.manager.Acknowledge(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, alerts.ErrInvalidRequest) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found or already terminal"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to acknowledge alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alert": toAlertView(alert)})
}

func (h *Handler) retryAlert(c *gin.Context) {
	id := c.Param("id")

	requeued, err := h.manager.RetryFailedDeliveries(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, alerts.ErrInvalidRequest) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry deliveries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requeued": requeued})
}

// streamAlerts serves newly created alerts over SSE until the client
// disconnects.
func (h *Handler) streamAlerts(c *gin.Context) {
	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case alert, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("alert", toAlertView(alert))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *Handler) listPolicies(c *gin.Context) {
	policies, err := h.store.ListPolicies(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch policies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": toPolicyViews(policies)})
}

func (h *Handler) listVessels(c *gin.Context) {
	vessels, err := h.store.ListVessels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch vessels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vessels": toVesselViews(vessels)})
}

type positionPush struct {
	VesselID   string     `json:"vessel_id" binding:"required"`
	MMSI       string     `json:"mmsi"`
	Name       string     `json:"name"`
	Latitude   float64    `json:"latitude" binding:"min=-90,max=90"`
	Longitude  float64    `json:"longitude" binding:"min=-180,max=180"`
	ObservedAt *time.Time `json:"observed_at"`
}

// pushPosition accepts a single position report. Unknown vessels are
// registered on first sighting, same as the polled feed.
func (h *Handler) pushPosition(c *gin.Context) {
	var req positionPush
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	observed := time.Now()
	if req.ObservedAt != nil {
		observed = *req.ObservedAt
	}
	pos := models.Position{Latitude: req.Latitude, Longitude: req.Longitude, ObservedAt: observed}

	ctx := c.Request.Context()
	err := h.store.RecordPosition(ctx, req.VesselID, pos)
	if errors.Is(err, repository.ErrNotFound) {
		vessel := &models.Vessel{ID: req.VesselID, MMSI: req.MMSI, Name: req.Name}
		if err := h.store.UpsertVessel(ctx, vessel); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register vessel"})
			return
		}
		err = h.store.RecordPosition(ctx, req.VesselID, pos)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record position"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"vessel_id": req.VesselID})
}

type eventPush struct {
	ID               string     `json:"id" binding:"required"`
	Kind             string     `json:"kind" binding:"required"`
	Latitude         float64    `json:"latitude" binding:"min=-90,max=90"`
	Longitude        float64    `json:"longitude" binding:"min=-180,max=180"`
	Magnitude        float64    `json:"magnitude"`
	SeverityLevel    string     `json:"severity_level"`
	WaveHeightMeters float64    `json:"wave_height_meters"`
	OccurredAt       *time.Time `json:"occurred_at"`
	LocationLabel    string     `json:"location_label"`
}

// pushEvent accepts a hazard event directly, bypassing the polled feed.
// The proximity sweep picks it up on its next pass.
func (h *Handler) pushEvent(c *gin.Context) {
	var req eventPush
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := models.HazardKind(req.Kind)
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown hazard kind"})
		return
	}

	occurred := time.Now()
	if req.OccurredAt != nil {
		occurred = *req.OccurredAt
	}
	event := &models.HazardEvent{
		ID:               req.ID,
		Kind:             kind,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		Magnitude:        req.Magnitude,
		SeverityLevel:    req.SeverityLevel,
		WaveHeightMeters: req.WaveHeightMeters,
		OccurredAt:       occurred,
		LocationLabel:    req.LocationLabel,
		Active:           true,
		CreatedAt:        time.Now(),
	}

	if err := h.store.UpsertEvent(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store event"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": event.ID})
}
