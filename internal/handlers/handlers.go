// Package handlers is the HTTP operator surface. It is a pure caller of the
// pool and engine; no forwarding or lifecycle logic lives here.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/mastuka/tg-tool-bot/internal/engine"
	"github.com/mastuka/tg-tool-bot/internal/model"
	"github.com/mastuka/tg-tool-bot/internal/pool"
	"github.com/mastuka/tg-tool-bot/internal/protocol"
	"github.com/mastuka/tg-tool-bot/internal/repository"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db       *gorm.DB
	pool     *pool.Pool
	engine   *engine.Engine
	accounts *repository.AccountRepository
	rules    *repository.RuleRepository
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, p *pool.Pool, e *engine.Engine, accounts *repository.AccountRepository, rules *repository.RuleRepository) *Handlers {
	return &Handlers{
		db:       db,
		pool:     p,
		engine:   e,
		accounts: accounts,
		rules:    rules,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		// Accounts
		api.POST("/accounts", h.RegisterAccount)
		api.GET("/accounts", h.ListAccounts)
		api.GET("/accounts/:phone", h.GetAccount)
		api.DELETE("/accounts/:phone", h.RemoveAccount)
		api.POST("/accounts/:phone/auth", h.CompleteAuth)
		api.POST("/accounts/:phone/connect", h.ConnectAccount)
		api.POST("/accounts/:phone/disconnect", h.DisconnectAccount)
		api.POST("/accounts/:phone/reconnect", h.ReconnectAccount)
		api.PATCH("/accounts/:phone/status", h.UpdateAccountStatus)

		// Pool
		api.GET("/pool/status", h.PoolStatus)
		api.GET("/pool/available", h.AvailableAccount)

		// Forwarding rules
		api.GET("/rules", h.ListRules)
		api.POST("/rules", h.CreateRule)
		api.GET("/rules/:id", h.GetRule)
		api.DELETE("/rules/:id", h.DeleteRule)
		api.POST("/rules/:id/start", h.StartRule)
		api.POST("/rules/:id/stop", h.StopRule)
		api.GET("/rules/:id/messages", h.RuleMessages)
		api.GET("/rules/:id/errors", h.RuleErrors)
		api.GET("/rules/:id/recent", h.RuleRecent)
		api.GET("/rules/:id/stats", h.RuleStats)

		// Global statistics
		api.GET("/stats", h.GlobalStats)
	}
}

// fail writes the canonical error body for err.
func fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	kind := "internal_error"

	switch {
	case errors.Is(err, pool.ErrInvalidPhone),
		errors.Is(err, pool.ErrMissingCredentials),
		errors.Is(err, protocol.ErrPhoneInvalid),
		errors.Is(err, engine.ErrNoDestinations):
		code, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, pool.ErrDuplicateAccount),
		errors.Is(err, pool.ErrAlreadyAuthorized):
		code, kind = http.StatusConflict, "conflict"
	case errors.Is(err, pool.ErrAccountNotFound),
		errors.Is(err, engine.ErrRuleNotFound),
		errors.Is(err, engine.ErrUnknownAccount),
		errors.Is(err, pool.ErrNoPendingAuth):
		code, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, pool.ErrAccountBanned),
		errors.Is(err, protocol.ErrPhoneBanned):
		code, kind = http.StatusForbidden, "banned"
	case errors.Is(err, protocol.ErrCodeInvalid),
		errors.Is(err, protocol.ErrCodeExpired),
		errors.Is(err, protocol.ErrPasswordInvalid):
		code, kind = http.StatusUnauthorized, "auth_error"
	default:
		if _, ok := protocol.AsFloodWait(err); ok {
			code, kind = http.StatusTooManyRequests, "rate_limited"
		}
	}

	c.JSON(code, model.ErrorResponse{
		Error:   kind,
		Message: err.Error(),
		Code:    code,
	})
}
