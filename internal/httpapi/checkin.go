package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/qrtoken"
)

func (s *Server) handleCheckIn(c *gin.Context) {
	var req struct {
		Token     string `json:"token" binding:"required"`
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.CheckIns.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tok, err := s.codec.Decode(strings.TrimSpace(req.Token))
	if err == nil {
		var res attendance.CheckIn
		res, err = s.engine.Submit(tok, strings.TrimSpace(req.StudentID))
		if err == nil {
			outcome := "accepted"
			if !res.Changed {
				outcome = "unchanged"
			}
			s.metrics.CheckIns.WithLabelValues(outcome).Inc()
			c.JSON(http.StatusOK, res)
			return
		}
	}
	s.metrics.CheckIns.WithLabelValues(checkInOutcome(err)).Inc()
	s.writeError(c, err)
}

func checkInOutcome(err error) string {
	switch {
	case errors.Is(err, attendance.ErrExpired):
		return "expired"
	case errors.Is(err, attendance.ErrSessionMismatch):
		return "mismatch"
	case errors.Is(err, attendance.ErrUnknownStudent):
		return "unknown_student"
	case errors.Is(err, qrtoken.ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
