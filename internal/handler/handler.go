package handler

import (
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/cloudinary"
	"github.com/campusattend/attendance/internal/httpmiddleware"
	"github.com/campusattend/attendance/internal/queue"
	"github.com/campusattend/attendance/internal/recognition"
	"github.com/campusattend/attendance/internal/store"
)

// Deps are the collaborators the HTTP surface needs. Cloud, Queue and Redis are optional.
type Deps struct {
	Service         *attendance.Service
	Repo            *attendance.Repository
	Issuer          auth.Issuer
	Cloud           *cloudinary.Client
	Queue           queue.Queue
	DB              *store.DB
	Redis           *store.Redis
	RateLimitPerMin int
	// WebDir holds index.html for the capture page; empty disables it.
	WebDir string
}

type Handler struct {
	svc     *attendance.Service
	repo    *attendance.Repository
	issuer  auth.Issuer
	cloud   *cloudinary.Client
	queue   queue.Queue
	db      *store.DB
	redis   *store.Redis
	limiter *httpmiddleware.TokenBucket
	webDir  string
}

func New(d Deps) *Handler {
	rate := d.RateLimitPerMin
	if rate <= 0 {
		rate = 120
	}
	return &Handler{
		svc:     d.Service,
		repo:    d.Repo,
		issuer:  d.Issuer,
		cloud:   d.Cloud,
		queue:   d.Queue,
		db:      d.DB,
		redis:   d.Redis,
		limiter: httpmiddleware.NewTokenBucket(rate, rate),
		webDir:  d.WebDir,
	}
}

// Router builds the gin engine with middleware and all routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(securityHeaders())

	if h.webDir != "" {
		r.StaticFile("/", filepath.Join(h.webDir, "index.html"))
	}
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/v1", h.limiter.GinMiddleware())
	public.POST("/devices/register", h.RegisterDevice)
	public.POST("/devices/refresh", h.RefreshDevice)

	// limiter runs after auth so authenticated traffic is keyed by device
	v1 := r.Group("/v1", auth.DeviceAuth(h.issuer), h.limiter.GinMiddleware())
	v1.POST("/upload", h.Upload)
	v1.POST("/students", h.RegisterStudent)
	v1.GET("/students", h.ListStudents)
	v1.GET("/students/:id", h.GetStudent)
	v1.POST("/students/:id/enroll", h.Enroll)
	v1.POST("/mark", h.Mark)
	v1.GET("/events", h.ListEvents)
	v1.GET("/dashboard", h.Dashboard)
	v1.GET("/defaulters", h.Defaulters)
	v1.POST("/notifications/run", h.RunNotifications)

	return r
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// statusFor maps service errors to HTTP status and the message shown to clients.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, attendance.ErrInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, recognition.ErrNoMatch):
		return http.StatusUnprocessableEntity, "not recognized, try again"
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound, "student not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": msg})
}

// ---------- Health ----------

// Healthz reports database and (when configured) redis reachability.
func (h *Handler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	dbHealthy := h.db != nil && h.db.Healthy(ctx)
	body := gin.H{"status": "ok", "db": dbHealthy}
	healthy := dbHealthy
	if h.redis != nil {
		redisHealthy := h.redis.Healthy(ctx)
		body["redis"] = redisHealthy
		healthy = healthy && redisHealthy
	}
	status := http.StatusOK
	if !healthy {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}

// ---------- Devices ----------

// RegisterDevice records a kiosk and issues its first token pair.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required,max=64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.UpsertDevice(c.Request.Context(), req.DeviceID); err != nil {
		fail(c, err)
		return
	}
	h.issue(c, req.DeviceID, http.StatusCreated)
}

// RefreshDevice rotates a refresh token. The presented token is revoked.
func (h *Handler) RefreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	claims, err := h.issuer.Parse(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	active, err := h.repo.RefreshTokenActive(ctx, req.RefreshToken, time.Now())
	if err != nil {
		fail(c, err)
		return
	}
	if !active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token revoked or expired"})
		return
	}
	if err := h.repo.RevokeRefreshToken(ctx, req.RefreshToken); err != nil {
		fail(c, err)
		return
	}
	h.issue(c, claims.Subject, http.StatusOK)
}

func (h *Handler) issue(c *gin.Context, deviceID string, status int) {
	tokens, err := h.issuer.Issue(deviceID, auth.RoleKiosk)
	if err != nil {
		log.Printf("issue tokens for %s: %v", deviceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	if err := h.repo.SaveRefreshToken(c.Request.Context(), deviceID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}
