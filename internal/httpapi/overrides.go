package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
)

func (s *Server) handleOverride(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	actor, _ := auth.ActorFrom(c)
	entry, err := s.engine.Override(c.Param("id"), c.Param("student_id"), status, actor, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.Overrides.WithLabelValues(string(entry.Action)).Inc()
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleBulkOverride(c *gin.Context) {
	var req struct {
		StudentIDs []string `json:"student_ids" binding:"required"`
		Status     string   `json:"status" binding:"required"`
		Reason     string   `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	actor, _ := auth.ActorFrom(c)
	entries, err := s.engine.BulkOverride(c.Param("id"), req.StudentIDs, status, actor, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.Overrides.WithLabelValues(string(attendance.ActionBulkUpdate)).Add(float64(len(entries)))
	c.JSON(http.StatusOK, gin.H{"updated": len(entries), "entries": entries})
}

func (s *Server) handleAuditLog(c *gin.Context) {
	f := attendance.AuditFilter{
		SessionID: c.Query("session_id"),
		StudentID: c.Query("student_id"),
		CourseID:  c.Query("course_id"),
		ActorID:   c.Query("actor_id"),
		Limit:     100,
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			f.Limit = parsed
		}
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		f.Since = since
	}
	entries := s.engine.AuditLog(f)
	source := "engine"
	// Sessions from before a restart only live in the journal.
	if len(entries) == 0 && f.SessionID != "" && s.audit != nil {
		archived, err := s.audit.ListAuditEntries(c.Request.Context(), f.SessionID, f.Limit)
		if err != nil {
			s.writeError(c, err)
			return
		}
		entries, source = f.Select(archived), "journal"
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "source": source})
}
