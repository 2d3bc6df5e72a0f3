package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/models"
	"github.com/MacJediWizard/slatrack/internal/sla"
)

// WorkItemStore defines the persistence operations for work item
// ingestion and SLA state queries.
type WorkItemStore interface {
	UpsertWorkItem(ctx context.Context, item *models.WorkItem) error
	GetWorkItem(ctx context.Context, id uuid.UUID) (*models.WorkItem, error)
	UpdateWorkItem(ctx context.Context, item *models.WorkItem) error

	GetSLAState(ctx context.Context, workItemID uuid.UUID) (*models.SLAState, error)
	ListWorkItemStates(ctx context.Context, orgID uuid.UUID, status models.SLAStatus, limit int) ([]models.WorkItemWithState, error)
	GetComplianceSummary(ctx context.Context, orgID uuid.UUID) (*models.ComplianceSummary, error)
	ListNotificationDeliveries(ctx context.Context, workItemID uuid.UUID) ([]models.NotificationDelivery, error)
}

// EvaluationTrigger starts an evaluation pass on demand.
type EvaluationTrigger interface {
	RunNow(ctx context.Context) (sla.RunStats, error)
}

// WorkItemsHandler handles work item and SLA state endpoints.
type WorkItemsHandler struct {
	store   WorkItemStore
	trigger EvaluationTrigger
	logger  zerolog.Logger
}

// NewWorkItemsHandler creates a new WorkItemsHandler. trigger may be
// nil, in which case the manual evaluation endpoint returns 503.
func NewWorkItemsHandler(store WorkItemStore, trigger EvaluationTrigger, logger zerolog.Logger) *WorkItemsHandler {
	return &WorkItemsHandler{
		store:   store,
		trigger: trigger,
		logger:  logger.With().Str("component", "work_items_handler").Logger(),
	}
}

// RegisterRoutes registers work item routes on the given router group.
func (h *WorkItemsHandler) RegisterRoutes(r *gin.RouterGroup) {
	items := r.Group("/orgs/:org_id/work-items")
	{
		items.POST("", h.Ingest)
		items.GET("", h.ListStates)
		items.GET("/:id", h.Get)
		items.PATCH("/:id", h.Update)
		items.GET("/:id/sla", h.GetState)
		items.GET("/:id/deliveries", h.ListDeliveries)
	}

	r.GET("/orgs/:org_id/compliance", h.Compliance)
	r.POST("/evaluations/actions/run", h.RunEvaluation)
}

// Ingest mirrors a work item from the system of record. Re-sending an
// item updates its mutable attributes without disturbing tracked SLA
// state.
// POST /api/v1/orgs/:org_id/work-items
func (h *WorkItemsHandler) Ingest(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	var req models.IngestWorkItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	now := time.Now()
	item := &models.WorkItem{
		ID:        req.ID,
		OrgID:     orgID,
		Subject:   req.Subject,
		InfoType:  req.InfoType,
		Priority:  req.Priority,
		Channel:   req.Channel,
		Status:    models.WorkItemOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.CreatedAt != nil {
		item.CreatedAt = *req.CreatedAt
	}

	if err := h.store.UpsertWorkItem(c.Request.Context(), item); err != nil {
		h.logger.Error().Err(err).Str("work_item_id", req.ID.String()).Msg("failed to ingest work item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest work item"})
		return
	}

	h.logger.Info().
		Str("work_item_id", item.ID.String()).
		Str("org_id", orgID.String()).
		Str("info_type", item.InfoType).
		Str("priority", string(item.Priority)).
		Msg("work item ingested")

	c.JSON(http.StatusCreated, item)
}

// Get returns a work item.
// GET /api/v1/orgs/:org_id/work-items/:id
func (h *WorkItemsHandler) Get(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "work item")
	if !ok {
		return
	}

	item, err := h.store.GetWorkItem(c.Request.Context(), id)
	if err != nil || item.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "work item not found"})
		return
	}

	c.JSON(http.StatusOK, item)
}

// Update applies lifecycle changes from the system of record: status
// transitions, priority changes, first response and resolution stamps.
// First response is recorded once; later values never overwrite it.
// PATCH /api/v1/orgs/:org_id/work-items/:id
func (h *WorkItemsHandler) Update(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "work item")
	if !ok {
		return
	}

	item, err := h.store.GetWorkItem(c.Request.Context(), id)
	if err != nil || item.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "work item not found"})
		return
	}

	var req models.UpdateWorkItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if req.Status != nil {
		switch *req.Status {
		case models.WorkItemOpen, models.WorkItemInProgress, models.WorkItemPending,
			models.WorkItemResolved, models.WorkItemClosed:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work item status"})
			return
		}
		item.Status = *req.Status
	}
	if req.Priority != nil {
		if !models.ValidPriorityTier(*req.Priority) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority tier"})
			return
		}
		item.Priority = *req.Priority
	}
	if req.FirstRespondedAt != nil && item.FirstRespondedAt == nil {
		item.FirstRespondedAt = req.FirstRespondedAt
	}
	if req.ResolvedAt != nil {
		item.ResolvedAt = req.ResolvedAt
	}
	if item.Status.IsTerminal() && item.ResolvedAt == nil {
		now := time.Now()
		item.ResolvedAt = &now
	}
	item.UpdatedAt = time.Now()

	if err := h.store.UpdateWorkItem(c.Request.Context(), item); err != nil {
		h.logger.Error().Err(err).Str("work_item_id", id.String()).Msg("failed to update work item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update work item"})
		return
	}

	h.logger.Info().
		Str("work_item_id", id.String()).
		Str("status", string(item.Status)).
		Msg("work item updated")

	c.JSON(http.StatusOK, item)
}

// ListStates returns work items joined with their tracked SLA state,
// optionally filtered by SLA status.
// GET /api/v1/orgs/:org_id/work-items?status=breached&limit=100
func (h *WorkItemsHandler) ListStates(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	status := models.SLAStatus(c.Query("status"))
	switch status {
	case "", models.SLAUnevaluated, models.SLAOnTrack, models.SLAAtRisk, models.SLABreached:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sla status filter"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	states, err := h.store.ListWorkItemStates(c.Request.Context(), orgID, status, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to list work item states")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list work item states"})
		return
	}

	if states == nil {
		states = []models.WorkItemWithState{}
	}

	c.JSON(http.StatusOK, models.WorkItemStatesResponse{Items: states})
}

// GetState returns the tracked SLA state for one work item.
// GET /api/v1/orgs/:org_id/work-items/:id/sla
func (h *WorkItemsHandler) GetState(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "work item")
	if !ok {
		return
	}

	state, err := h.store.GetSLAState(c.Request.Context(), id)
	if errors.Is(err, sla.ErrStateNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "work item has no tracked sla state yet"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("work_item_id", id.String()).Msg("failed to get sla state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get sla state"})
		return
	}
	if state.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "work item has no tracked sla state yet"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// ListDeliveries returns the notification delivery log for a work item.
// GET /api/v1/orgs/:org_id/work-items/:id/deliveries
func (h *WorkItemsHandler) ListDeliveries(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "work item")
	if !ok {
		return
	}

	item, err := h.store.GetWorkItem(c.Request.Context(), id)
	if err != nil || item.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "work item not found"})
		return
	}

	deliveries, err := h.store.ListNotificationDeliveries(c.Request.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("work_item_id", id.String()).Msg("failed to list deliveries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list deliveries"})
		return
	}

	if deliveries == nil {
		deliveries = []models.NotificationDelivery{}
	}

	c.JSON(http.StatusOK, models.NotificationDeliveriesResponse{Deliveries: deliveries})
}

// Compliance returns an org's current SLA compliance summary.
// GET /api/v1/orgs/:org_id/compliance
func (h *WorkItemsHandler) Compliance(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	summary, err := h.store.GetComplianceSummary(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to build compliance summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build compliance summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// RunEvaluation triggers an immediate evaluation pass and reports its
// stats. A pass already in flight yields 409.
// POST /api/v1/evaluations/actions/run
func (h *WorkItemsHandler) RunEvaluation(c *gin.Context) {
	if h.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "evaluation scheduler not available"})
		return
	}

	stats, err := h.trigger.RunNow(c.Request.Context())
	if errors.Is(err, sla.ErrPassInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "evaluation pass already in progress"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("manual evaluation pass failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation pass failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"evaluated":   stats.Evaluated,
		"persisted":   stats.Persisted,
		"escalations": stats.Escalations,
		"conflicts":   stats.Conflicts,
		"skipped":     stats.Skipped,
		"errors":      stats.Errors,
		"duration":    stats.Duration.String(),
	})
}
