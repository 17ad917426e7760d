package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mastuka/tg-tool-bot/internal/model"
	"github.com/mastuka/tg-tool-bot/internal/pool"
	"github.com/mastuka/tg-tool-bot/internal/protocol"
)

// RegisterAccount starts account registration and requests a login code.
func (h *Handlers) RegisterAccount(c *gin.Context) {
	var req model.RegisterAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	if err := h.pool.Register(c.Request.Context(), req.Phone, req.APIID, req.APIHash, req.Proxy); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Login code sent",
		"phone":   req.Phone,
		"status":  model.StatusPendingCode,
	})
}

// CompleteAuth finishes a pending registration with code and/or password.
func (h *Handlers) CompleteAuth(c *gin.Context) {
	phone := c.Param("phone")

	var req model.CompleteAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	acc, err := h.pool.CompleteAuth(c.Request.Context(), phone, req.Code, req.Password)
	if err != nil {
		// 2FA is a requirement, not a failure
		if errors.Is(err, protocol.ErrPasswordNeeded) {
			c.JSON(http.StatusAccepted, gin.H{
				"message": "Two-step verification password needed",
				"phone":   phone,
				"status":  model.StatusPending2FA,
			})
			return
		}
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, acc)
}

// ListAccounts returns all accounts.
func (h *Handlers) ListAccounts(c *gin.Context) {
	accounts, err := h.accounts.List()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

// GetAccount returns one account.
func (h *Handlers) GetAccount(c *gin.Context) {
	acc, err := h.accounts.GetByPhone(c.Param("phone"))
	if err != nil {
		fail(c, err)
		return
	}
	if acc == nil {
		fail(c, pool.ErrAccountNotFound)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// RemoveAccount deletes an account; ?delete_session=true also removes the
// local session artifact.
func (h *Handlers) RemoveAccount(c *gin.Context) {
	deleteSession := c.DefaultQuery("delete_session", "false") == "true"
	if err := h.pool.Remove(c.Param("phone"), deleteSession); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ConnectAccount brings an account online.
func (h *Handlers) ConnectAccount(c *gin.Context) {
	if err := h.pool.Connect(c.Request.Context(), c.Param("phone")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account connected", "status": model.StatusActive})
}

// DisconnectAccount takes an account offline.
func (h *Handlers) DisconnectAccount(c *gin.Context) {
	if err := h.pool.Disconnect(c.Param("phone")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account disconnected", "status": model.StatusOffline})
}

// ReconnectAccount re-establishes the account's handle.
func (h *Handlers) ReconnectAccount(c *gin.Context) {
	if err := h.pool.Reconnect(c.Request.Context(), c.Param("phone")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account reconnected", "status": model.StatusActive})
}

// UpdateAccountStatus forces an account into a status.
func (h *Handlers) UpdateAccountStatus(c *gin.Context) {
	var req model.UpdateAccountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	if err := h.pool.UpdateStatus(c.Param("phone"), req.Status); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated", "status": req.Status})
}

// PoolStatus returns the aggregate pool report.
func (h *Handlers) PoolStatus(c *gin.Context) {
	report, err := h.pool.StatusReport()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// AvailableAccount hands out the best eligible account for a unit of work.
func (h *Handlers) AvailableAccount(c *gin.Context) {
	purpose := c.DefaultQuery("purpose", "generic")
	acc, err := h.pool.GetAvailable(purpose)
	if err != nil {
		fail(c, err)
		return
	}
	if acc == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error:   "no_account_available",
			Message: "No account is eligible right now",
			Code:    http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, acc)
}
