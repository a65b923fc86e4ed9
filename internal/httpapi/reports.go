package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
)

const dateLayout = "2006-01-02"

// parseBound accepts a calendar date or an RFC3339 instant. A date used as
// an upper bound covers the whole day.
func parseBound(v string, upper bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		if upper {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) thresholdParam(c *gin.Context) (int, bool) {
	v := c.Query("threshold")
	if v == "" {
		return s.threshold, true
	}
	t, err := strconv.Atoi(v)
	if err != nil || t < 0 || t > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a percentage between 0 and 100"})
		return 0, false
	}
	return t, true
}

func (s *Server) handleHistory(c *gin.Context) {
	from, err := parseBound(c.Query("from"), false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, err := parseBound(c.Query("to"), true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}
	sessions := s.engine.History(attendance.HistoryFilter{
		CourseID:  c.Query("course_id"),
		SectionID: c.Query("section_id"),
		From:      from,
		To:        to,
	})
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleStudentAttendance(c *gin.Context) {
	threshold, ok := s.thresholdParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.engine.StudentAttendance(c.Param("id"), threshold))
}

func (s *Server) handleStudentHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.engine.StudentHistory(c.Param("id"))})
}

func (s *Server) handleLowAttendance(c *gin.Context) {
	threshold, ok := s.thresholdParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"threshold": threshold, "students": s.engine.LowAttendanceReport(threshold)})
}

func (s *Server) handleCourseSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.CourseSummary(c.Param("id")))
}
