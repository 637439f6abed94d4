package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin/internal/attendance"
)

var statusByCode = map[string]int{
	"session_not_found":     http.StatusNotFound,
	"session_expired":       http.StatusGone,
	"session_ended":         http.StatusGone,
	"schedule_not_found":    http.StatusNotFound,
	"no_schedule_today":     http.StatusConflict,
	"unknown_badge":         http.StatusNotFound,
	"no_open_attendance":    http.StatusConflict,
	"invalid_scan":          http.StatusBadRequest,
	"invalid_date":          http.StatusBadRequest,
	"transient_store_error": http.StatusServiceUnavailable,
}

// writeError renders a typed failure. Only transient failures are marked retryable;
// their internals are logged, not returned.
func writeError(c *gin.Context, err error) {
	code := attendance.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": code, "retryable": false})
		return
	}
	msg := err.Error()
	retryable := code == "transient_store_error"
	if retryable {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "attendance service temporarily unavailable, please scan again"
	}
	c.JSON(status, gin.H{"error": msg, "code": code, "retryable": retryable})
}
