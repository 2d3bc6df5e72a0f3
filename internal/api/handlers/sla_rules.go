// Package handlers implements the HTTP endpoints for the slatrack API.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/models"
	"github.com/MacJediWizard/slatrack/internal/sla"
)

// RuleStore defines the persistence operations for SLA rule and
// business hours administration.
type RuleStore interface {
	CreateSLARule(ctx context.Context, rule *models.SLARule) error
	GetSLARule(ctx context.Context, id uuid.UUID) (*models.SLARule, error)
	ListSLARules(ctx context.Context, orgID uuid.UUID) ([]models.SLARule, error)
	UpdateSLARule(ctx context.Context, rule *models.SLARule) error
	DeleteSLARule(ctx context.Context, id uuid.UUID) error
	SetDefaultRule(ctx context.Context, orgID, ruleID uuid.UUID) error

	CreateBusinessHours(ctx context.Context, cfg *models.BusinessHoursConfig) error
	GetBusinessHours(ctx context.Context, id uuid.UUID) (*models.BusinessHoursConfig, error)
	ListBusinessHoursByOrg(ctx context.Context, orgID uuid.UUID) ([]models.BusinessHoursConfig, error)
	UpdateBusinessHours(ctx context.Context, cfg *models.BusinessHoursConfig) error
	DeleteBusinessHours(ctx context.Context, id uuid.UUID) error
}

// SLARulesHandler handles rule and business hours administration
// endpoints.
type SLARulesHandler struct {
	store  RuleStore
	logger zerolog.Logger
}

// NewSLARulesHandler creates a new SLARulesHandler.
func NewSLARulesHandler(store RuleStore, logger zerolog.Logger) *SLARulesHandler {
	return &SLARulesHandler{
		store:  store,
		logger: logger.With().Str("component", "sla_rules_handler").Logger(),
	}
}

// RegisterRoutes registers rule routes on the given router group.
func (h *SLARulesHandler) RegisterRoutes(r *gin.RouterGroup) {
	rules := r.Group("/orgs/:org_id/sla-rules")
	{
		rules.GET("", h.List)
		rules.POST("", h.Create)
		rules.GET("/:id", h.Get)
		rules.PUT("/:id", h.Update)
		rules.DELETE("/:id", h.Delete)
		rules.POST("/:id/actions/set-default", h.SetDefault)
	}

	hours := r.Group("/orgs/:org_id/business-hours")
	{
		hours.GET("", h.ListBusinessHours)
		hours.POST("", h.CreateBusinessHours)
		hours.GET("/:id", h.GetBusinessHours)
		hours.PUT("/:id", h.UpdateBusinessHours)
		hours.DELETE("/:id", h.DeleteBusinessHours)
	}
}

// orgIDParam parses the :org_id path parameter, writing a 400 response
// and returning false on failure.
func orgIDParam(c *gin.Context) (uuid.UUID, bool) {
	orgID, err := uuid.Parse(c.Param("org_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid org ID"})
		return uuid.Nil, false
	}
	return orgID, true
}

// idParam parses the :id path parameter, writing a 400 response and
// returning false on failure.
func idParam(c *gin.Context, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// List returns all rules for an organization, defaults first.
// GET /api/v1/orgs/:org_id/sla-rules
func (h *SLARulesHandler) List(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	rules, err := h.store.ListSLARules(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to list sla rules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sla rules"})
		return
	}

	if rules == nil {
		rules = []models.SLARule{}
	}

	c.JSON(http.StatusOK, models.SLARulesResponse{Rules: rules})
}

// Create creates a new SLA rule.
// POST /api/v1/orgs/:org_id/sla-rules
func (h *SLARulesHandler) Create(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	var req models.CreateSLARuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	rule := models.NewSLARule(orgID, req.Name, req.InfoType, req.Priority)
	rule.Description = req.Description
	rule.Channel = req.Channel
	rule.ResponseTimeMinutes = req.ResponseTimeMinutes
	rule.ResolutionTimeMinutes = req.ResolutionTimeMinutes
	rule.BusinessHoursID = req.BusinessHoursID
	rule.IsDefault = req.IsDefault
	rule.EscalationLevels = toEscalationLevels(req.EscalationLevels)
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if err := rule.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if rule.BusinessHoursID != nil {
		if _, err := h.store.GetBusinessHours(c.Request.Context(), *rule.BusinessHoursID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business hours config not found"})
			return
		}
	}

	if err := h.store.CreateSLARule(c.Request.Context(), rule); err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("failed to create sla rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create sla rule"})
		return
	}

	h.logger.Info().
		Str("rule_id", rule.ID.String()).
		Str("org_id", orgID.String()).
		Str("name", rule.Name).
		Bool("default", rule.IsDefault).
		Msg("sla rule created")

	c.JSON(http.StatusCreated, rule)
}

// Get returns a specific rule by ID.
// GET /api/v1/orgs/:org_id/sla-rules/:id
func (h *SLARulesHandler) Get(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "rule")
	if !ok {
		return
	}

	rule, err := h.store.GetSLARule(c.Request.Context(), id)
	if err != nil || rule.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "sla rule not found"})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// Update updates an existing rule. Nil request fields are left
// unchanged.
// PUT /api/v1/orgs/:org_id/sla-rules/:id
func (h *SLARulesHandler) Update(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "rule")
	if !ok {
		return
	}

	rule, err := h.store.GetSLARule(c.Request.Context(), id)
	if err != nil || rule.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "sla rule not found"})
		return
	}

	var req models.UpdateSLARuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.InfoType != nil {
		rule.InfoType = *req.InfoType
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Channel != nil {
		rule.Channel = req.Channel
	}
	if req.ResponseTimeMinutes != nil {
		rule.ResponseTimeMinutes = *req.ResponseTimeMinutes
	}
	if req.ResolutionTimeMinutes != nil {
		rule.ResolutionTimeMinutes = *req.ResolutionTimeMinutes
	}
	if req.BusinessHoursID != nil {
		rule.BusinessHoursID = req.BusinessHoursID
	}
	if req.EscalationLevels != nil {
		rule.EscalationLevels = toEscalationLevels(req.EscalationLevels)
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	rule.UpdatedAt = time.Now()

	if err := rule.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateSLARule(c.Request.Context(), rule); err != nil {
		h.logger.Error().Err(err).Str("rule_id", id.String()).Msg("failed to update sla rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update sla rule"})
		return
	}

	h.logger.Info().Str("rule_id", id.String()).Msg("sla rule updated")

	c.JSON(http.StatusOK, rule)
}

// Delete removes a rule. Work items already bound to the rule keep
// their recorded due dates and remain breach-detectable.
// DELETE /api/v1/orgs/:org_id/sla-rules/:id
func (h *SLARulesHandler) Delete(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "rule")
	if !ok {
		return
	}

	rule, err := h.store.GetSLARule(c.Request.Context(), id)
	if err != nil || rule.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "sla rule not found"})
		return
	}

	if err := h.store.DeleteSLARule(c.Request.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("rule_id", id.String()).Msg("failed to delete sla rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete sla rule"})
		return
	}

	h.logger.Info().Str("rule_id", id.String()).Msg("sla rule deleted")
	c.JSON(http.StatusOK, gin.H{"message": "sla rule deleted"})
}

// SetDefault promotes a rule to the org's single default fallback,
// demoting any previous default in the same transaction.
// POST /api/v1/orgs/:org_id/sla-rules/:id/actions/set-default
func (h *SLARulesHandler) SetDefault(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "rule")
	if !ok {
		return
	}

	err := h.store.SetDefaultRule(c.Request.Context(), orgID, id)
	switch {
	case errors.Is(err, sla.ErrRuleInactive):
		c.JSON(http.StatusBadRequest, gin.H{"error": "inactive rule cannot be the default"})
		return
	case errors.Is(err, sla.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "sla rule not found"})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("rule_id", id.String()).Msg("failed to set default rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set default rule"})
		return
	}

	h.logger.Info().
		Str("rule_id", id.String()).
		Str("org_id", orgID.String()).
		Msg("default sla rule changed")

	c.JSON(http.StatusOK, gin.H{"message": "default rule updated"})
}

// toEscalationLevels converts request rungs into model levels.
func toEscalationLevels(reqs []models.EscalationLevelRequest) []models.EscalationLevel {
	if len(reqs) == 0 {
		return nil
	}
	levels := make([]models.EscalationLevel, 0, len(reqs))
	for _, r := range reqs {
		levels = append(levels, models.EscalationLevel{
			Level:                r.Level,
			EscalateAfterMinutes: r.EscalateAfterMinutes,
			Target:               r.Target,
			NotifyChannels:       r.NotifyChannels,
		})
	}
	return levels
}

// Business hours handlers

// ListBusinessHours returns all business hours configs for an org.
// GET /api/v1/orgs/:org_id/business-hours
func (h *SLARulesHandler) ListBusinessHours(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	configs, err := h.store.ListBusinessHoursByOrg(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to list business hours")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list business hours"})
		return
	}

	if configs == nil {
		configs = []models.BusinessHoursConfig{}
	}

	c.JSON(http.StatusOK, models.BusinessHoursResponse{Configs: configs})
}

// CreateBusinessHours creates a new business hours config.
// POST /api/v1/orgs/:org_id/business-hours
func (h *SLARulesHandler) CreateBusinessHours(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	var req models.CreateBusinessHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	cfg := models.NewBusinessHoursConfig(orgID, req.Name)
	cfg.Timezone = req.Timezone
	cfg.StartMinute = req.StartMinute
	cfg.EndMinute = req.EndMinute
	for _, d := range req.WorkingDays {
		cfg.WorkingDays = append(cfg.WorkingDays, time.Weekday(d))
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}

	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.CreateBusinessHours(c.Request.Context(), cfg); err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("failed to create business hours")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create business hours"})
		return
	}

	h.logger.Info().
		Str("business_hours_id", cfg.ID.String()).
		Str("org_id", orgID.String()).
		Str("name", cfg.Name).
		Msg("business hours created")

	c.JSON(http.StatusCreated, cfg)
}

// GetBusinessHours returns a specific business hours config.
// GET /api/v1/orgs/:org_id/business-hours/:id
func (h *SLARulesHandler) GetBusinessHours(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "business hours")
	if !ok {
		return
	}

	cfg, err := h.store.GetBusinessHours(c.Request.Context(), id)
	if err != nil || cfg.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "business hours config not found"})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// UpdateBusinessHours replaces a business hours config's window.
// PUT /api/v1/orgs/:org_id/business-hours/:id
func (h *SLARulesHandler) UpdateBusinessHours(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "business hours")
	if !ok {
		return
	}

	cfg, err := h.store.GetBusinessHours(c.Request.Context(), id)
	if err != nil || cfg.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "business hours config not found"})
		return
	}

	var req models.CreateBusinessHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	cfg.Name = req.Name
	cfg.Timezone = req.Timezone
	cfg.StartMinute = req.StartMinute
	cfg.EndMinute = req.EndMinute
	cfg.WorkingDays = cfg.WorkingDays[:0]
	for _, d := range req.WorkingDays {
		cfg.WorkingDays = append(cfg.WorkingDays, time.Weekday(d))
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	cfg.UpdatedAt = time.Now()

	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateBusinessHours(c.Request.Context(), cfg); err != nil {
		h.logger.Error().Err(err).Str("business_hours_id", id.String()).Msg("failed to update business hours")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update business hours"})
		return
	}

	h.logger.Info().Str("business_hours_id", id.String()).Msg("business hours updated")

	c.JSON(http.StatusOK, cfg)
}

// DeleteBusinessHours removes a config. Rules still referencing it fall
// back to wall-clock deadline math on the next evaluation pass.
// DELETE /api/v1/orgs/:org_id/business-hours/:id
func (h *SLARulesHandler) DeleteBusinessHours(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "business hours")
	if !ok {
		return
	}

	cfg, err := h.store.GetBusinessHours(c.Request.Context(), id)
	if err != nil || cfg.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "business hours config not found"})
		return
	}

	if err := h.store.DeleteBusinessHours(c.Request.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("business_hours_id", id.String()).Msg("failed to delete business hours")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete business hours"})
		return
	}

	h.logger.Info().Str("business_hours_id", id.String()).Msg("business hours deleted")
	c.JSON(http.StatusOK, gin.H{"message": "business hours deleted"})
}
