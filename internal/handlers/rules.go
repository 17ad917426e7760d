package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mastuka/tg-tool-bot/internal/engine"
	"github.com/mastuka/tg-tool-bot/internal/model"
)

func ruleID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid rule ID",
			Code:    http.StatusBadRequest,
		})
		return 0, false
	}
	return uint(id), true
}

// CreateRule creates a new forwarding rule in stopped status.
func (h *Handlers) CreateRule(c *gin.Context) {
	var req model.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	rule, err := h.engine.Create(req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewRuleResponse(rule))
}

// ListRules returns all rules.
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.rules.List()
	if err != nil {
		fail(c, err)
		return
	}

	responses := make([]model.RuleResponse, 0, len(rules))
	for i := range rules {
		resp := model.NewRuleResponse(&rules[i])
		resp.SessionForwarded = h.engine.SessionForwarded(rules[i].ID)
		responses = append(responses, resp)
	}
	c.JSON(http.StatusOK, responses)
}

// GetRule returns one rule.
func (h *Handlers) GetRule(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	rule, err := h.rules.Get(id)
	if err != nil {
		fail(c, err)
		return
	}
	if rule == nil {
		fail(c, engine.ErrRuleNotFound)
		return
	}
	resp := model.NewRuleResponse(rule)
	resp.SessionForwarded = h.engine.SessionForwarded(rule.ID)
	c.JSON(http.StatusOK, resp)
}

// StartRule activates a rule.
func (h *Handlers) StartRule(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	if err := h.engine.Start(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule started", "status": model.RuleRunning})
}

// StopRule deactivates a rule.
func (h *Handlers) StopRule(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	if err := h.engine.Stop(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule stopped", "status": model.RuleStopped})
}

// DeleteRule stops and deletes a rule.
func (h *Handlers) DeleteRule(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	if err := h.engine.Delete(id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RuleMessages returns the forwarded-message audit log for a rule.
func (h *Handlers) RuleMessages(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	recs, err := h.rules.ListForwarded(id, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// RuleErrors returns the error audit log for a rule.
func (h *Handlers) RuleErrors(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	recs, err := h.rules.ListErrors(id, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// RuleRecent returns the newest messages visible on the rule's source, a
// liveness probe for the conversation being mirrored.
func (h *Handlers) RuleRecent(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}
	msgs, err := h.engine.RecentMessages(c.Request.Context(), id, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// RuleStats returns aggregate statistics for one rule.
func (h *Handlers) RuleStats(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	stats, err := h.engine.Statistics(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GlobalStats returns aggregate statistics across all rules.
func (h *Handlers) GlobalStats(c *gin.Context) {
	stats, err := h.engine.Statistics(0)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
