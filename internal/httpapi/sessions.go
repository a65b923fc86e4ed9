package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/qrtoken"
)

type tokenResponse struct {
	SessionID string    `json:"session_id"`
	CourseID  string    `json:"course_id"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

func (s *Server) tokenResponse(tok attendance.Token) (tokenResponse, error) {
	text, err := s.codec.Encode(tok)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		SessionID: tok.SessionID,
		CourseID:  tok.CourseID,
		Token:     text,
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
		ExpiresIn: int(tok.ExpiresAt.Sub(tok.IssuedAt).Seconds()),
	}, nil
}

func (s *Server) writeToken(c *gin.Context, status int, tok attendance.Token) {
	resp, err := s.tokenResponse(tok)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(status, resp)
}

func (s *Server) handlePutStudent(c *gin.Context) {
	var req attendance.Student
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.roster.PutStudent(c.Request.Context(), req); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (s *Server) handleGetStudent(c *gin.Context) {
	st, err := s.roster.Student(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handlePutSection(c *gin.Context) {
	var req attendance.CourseSection
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.roster.PutSection(c.Request.Context(), req); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req struct {
		ID        string    `json:"id"`
		SectionID string    `json:"section_id" binding:"required"`
		StartsAt  time.Time `json:"starts_at"`
		EndsAt    time.Time `json:"ends_at"`
		Location  string    `json:"location"`
		Mode      string    `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := s.engine.CreateSession(c.Request.Context(), attendance.SessionParams{
		ID:        req.ID,
		SectionID: req.SectionID,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Location:  req.Location,
		Mode:      attendance.DeliveryMode(req.Mode),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.Lifecycle.WithLabelValues("created").Inc()
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.engine.Session(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	counts, err := s.engine.Counts(sess.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "counts": counts})
}

func (s *Server) handleStartSession(c *gin.Context) {
	tok, err := s.engine.StartSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.Lifecycle.WithLabelValues("started").Inc()
	s.writeToken(c, http.StatusOK, tok)
}

func (s *Server) handleStopSession(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	sess, err := s.engine.StopSessionAs(c.Param("id"), actor)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.Lifecycle.WithLabelValues("stopped").Inc()
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleRotateToken(c *gin.Context) {
	tok, err := s.engine.RotateToken(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.Lifecycle.WithLabelValues("rotated").Inc()
	s.writeToken(c, http.StatusOK, tok)
}

func (s *Server) handleGetToken(c *gin.Context) {
	tok, err := s.engine.ActiveToken(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeToken(c, http.StatusOK, tok)
}

func (s *Server) renderActiveToken(c *gin.Context) (attendance.Token, []byte, bool) {
	tok, err := s.engine.ActiveToken(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return attendance.Token{}, nil, false
	}
	text, err := s.codec.Encode(tok)
	if err != nil {
		s.writeError(c, err)
		return attendance.Token{}, nil, false
	}
	size := qrtoken.DefaultPNGSize
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 64 && parsed <= 1024 {
			size = parsed
		}
	}
	png, err := qrtoken.PNG(text, size)
	if err != nil {
		s.writeError(c, err)
		return attendance.Token{}, nil, false
	}
	return tok, png, true
}

func (s *Server) handleTokenPNG(c *gin.Context) {
	if _, png, ok := s.renderActiveToken(c); ok {
		c.Data(http.StatusOK, "image/png", png)
	}
}

func (s *Server) handlePublishToken(c *gin.Context) {
	if s.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	tok, png, ok := s.renderActiveToken(c)
	if !ok {
		return
	}
	res, err := s.publisher.UploadPNG(c.Request.Context(), png, "session-"+tok.SessionID)
	if err != nil {
		s.logger.Printf("publish qr for session %s: %v", tok.SessionID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": tok.SessionID,
		"url":        res.SecureURL,
		"expires_at": tok.ExpiresAt,
	})
}

func (s *Server) handleRecords(c *gin.Context) {
	recs, err := s.engine.Records(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (s *Server) handleChanges(c *gin.Context) {
	changes, err := s.engine.Changes(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if changes == nil {
		changes = []attendance.Change{}
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func (s *Server) handleCounts(c *gin.Context) {
	counts, err := s.engine.Counts(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
