package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/qrtoken"
)

// statusFor maps domain errors to HTTP status codes; 0 means unexpected.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrExpired):
		return http.StatusGone
	case errors.Is(err, attendance.ErrSessionMismatch),
		errors.Is(err, attendance.ErrInvalidState),
		errors.Is(err, attendance.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrUnknownStudent),
		errors.Is(err, attendance.ErrSessionNotFound),
		errors.Is(err, attendance.ErrSectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrReasonRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidActor),
		errors.Is(err, attendance.ErrEmptyBatch),
		errors.Is(err, attendance.ErrInvalidRoster),
		errors.Is(err, attendance.ErrInvalidSchedule),
		errors.Is(err, qrtoken.ErrMalformed):
		return http.StatusBadRequest
	default:
		return 0
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == 0 {
		s.logger.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
