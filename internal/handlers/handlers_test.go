package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mastuka/tg-tool-bot/internal/engine"
	"github.com/mastuka/tg-tool-bot/internal/pool"
	"github.com/mastuka/tg-tool-bot/internal/protocol"
)

func TestFailStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err  error
		code int
	}{
		{pool.ErrInvalidPhone, http.StatusBadRequest},
		{pool.ErrMissingCredentials, http.StatusBadRequest},
		{protocol.ErrPhoneInvalid, http.StatusBadRequest},
		{engine.ErrNoDestinations, http.StatusBadRequest},
		{pool.ErrDuplicateAccount, http.StatusConflict},
		{pool.ErrAlreadyAuthorized, http.StatusConflict},
		{pool.ErrAccountNotFound, http.StatusNotFound},
		{engine.ErrRuleNotFound, http.StatusNotFound},
		{pool.ErrAccountBanned, http.StatusForbidden},
		{protocol.ErrPhoneBanned, http.StatusForbidden},
		{protocol.ErrCodeInvalid, http.StatusUnauthorized},
		{protocol.ErrPasswordInvalid, http.StatusUnauthorized},
		{&protocol.FloodWaitError{Duration: time.Second}, http.StatusTooManyRequests},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		fail(c, tc.err)
		assert.Equal(t, tc.code, w.Code, "unexpected status for %v", tc.err)
	}
}
