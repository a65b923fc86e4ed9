// Package httpapi exposes the attendance engine over HTTP.
package httpapi

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/cloudinary"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/metrics"
	"qrattend/internal/qrtoken"
)

// TokenPublisher uploads a rendered QR code and returns where it can be viewed.
type TokenPublisher interface {
	UploadPNG(ctx context.Context, png []byte, publicID string) (*cloudinary.UploadResult, error)
}

// Roster is the reference data the API reads and registers.
type Roster interface {
	attendance.RosterStore
	attendance.RosterWriter
}

// AuditArchive serves audit entries persisted by the journal, for sessions
// the running engine no longer holds.
type AuditArchive interface {
	ListAuditEntries(ctx context.Context, sessionID string, limit int) ([]attendance.AuditEntry, error)
}

// HealthCheck reports whether one backing service is reachable.
type HealthCheck func(ctx context.Context) bool

// AuthConfig controls staff bearer tokens.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	AccessTTL  time.Duration
	// DevTokens enables POST /v1/actors/token, which mints tokens for any
	// actor. It must stay off in production.
	DevTokens bool
}

type Dependencies struct {
	Logger      *log.Logger
	Addr        string
	Engine      *attendance.Engine
	Roster      Roster
	Audit       AuditArchive
	Codec       qrtoken.Codec
	Metrics     *metrics.Metrics
	Publisher   TokenPublisher
	Auth        AuthConfig
	Limiter     *httpmiddleware.TokenBucket
	CORSOrigins []string
	Checks      map[string]HealthCheck
	// Threshold is the default low-attendance percentage for reports.
	Threshold int
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	router     *gin.Engine
	engine     *attendance.Engine
	roster     Roster
	audit      AuditArchive
	codec      qrtoken.Codec
	metrics    *metrics.Metrics
	publisher  TokenPublisher
	auth       AuthConfig
	checks     map[string]HealthCheck
	threshold  int
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	if d.Codec == nil {
		d.Codec = qrtoken.JSONCodec{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(d.Engine.ActiveSessions, d.Engine.DroppedEvents)
	}
	if d.Auth.AccessTTL <= 0 {
		d.Auth.AccessTTL = 8 * time.Hour
	}

	s := &Server{
		logger:    d.Logger,
		router:    gin.New(),
		engine:    d.Engine,
		roster:    d.Roster,
		audit:     d.Audit,
		codec:     d.Codec,
		metrics:   d.Metrics,
		publisher: d.Publisher,
		auth:      d.Auth,
		checks:    d.Checks,
		threshold: d.Threshold,
	}

	r := s.router
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    d.Logger.Writer(),
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(d.CORSOrigins))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/healthz", s.handleHealth)

	if d.Auth.DevTokens {
		r.POST("/v1/actors/token", s.handleIssueActorToken)
	}

	checkins := []gin.HandlerFunc{}
	if d.Limiter != nil {
		checkins = append(checkins, d.Limiter.GinMiddleware())
	}
	r.POST("/v1/checkins", append(checkins, s.handleCheckIn)...)

	staff := r.Group("/v1", auth.RequireActor(d.Auth.SigningKey, d.Auth.Issuer))
	admin := r.Group("/v1", auth.RequireActor(d.Auth.SigningKey, d.Auth.Issuer, attendance.RoleAdmin))

	admin.POST("/students", s.handlePutStudent)
	admin.POST("/sections", s.handlePutSection)
	admin.GET("/audit", s.handleAuditLog)

	staff.GET("/students/:id", s.handleGetStudent)

	staff.POST("/sessions", s.handleCreateSession)
	staff.GET("/sessions/:id", s.handleGetSession)
	staff.POST("/sessions/:id/start", s.handleStartSession)
	staff.POST("/sessions/:id/stop", s.handleStopSession)
	staff.POST("/sessions/:id/rotate", s.handleRotateToken)
	staff.GET("/sessions/:id/token", s.handleGetToken)
	staff.GET("/sessions/:id/qr", s.handleTokenPNG)
	staff.POST("/sessions/:id/publish", s.handlePublishToken)
	staff.GET("/sessions/:id/records", s.handleRecords)
	staff.GET("/sessions/:id/changes", s.handleChanges)
	staff.GET("/sessions/:id/counts", s.handleCounts)
	staff.PUT("/sessions/:id/records/:student_id", s.handleOverride)
	staff.POST("/sessions/:id/records/bulk", s.handleBulkOverride)

	staff.GET("/reports/history", s.handleHistory)
	staff.GET("/reports/low-attendance", s.handleLowAttendance)
	staff.GET("/reports/students/:id", s.handleStudentAttendance)
	staff.GET("/reports/students/:id/history", s.handleStudentHistory)
	staff.GET("/reports/courses/:id", s.handleCourseSummary)

	s.httpServer = &http.Server{
		Addr:         d.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range s.checks {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	body["active_sessions"] = s.engine.ActiveSessions()
	c.JSON(status, body)
}

func (s *Server) handleIssueActorToken(c *gin.Context) {
	var req struct {
		ActorID string `json:"actor_id" binding:"required"`
		Role    string `json:"role" binding:"required,oneof=faculty admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := attendance.Actor{ID: req.ActorID, Role: attendance.Role(req.Role)}
	tok, exp, err := auth.IssueActorToken(actor, s.auth.Issuer, s.auth.SigningKey, s.auth.AccessTTL)
	if err != nil {
		s.logger.Printf("issue actor token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": tok, "expires_at": exp.Unix()})
}
