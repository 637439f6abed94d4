// Package api is the kiosk HTTP façade over the session service and the attendance
// resolver.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkin/internal/attendance"
	"checkin/internal/auth"
	"checkin/internal/events"
	"checkin/internal/httpmiddleware"
	"checkin/internal/kiosk"
	"checkin/internal/schedule"
)

// Config is the slice of app config the handlers need.
type Config struct {
	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	StaffAPIKey     string
	RateLimitPerMin int
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler serves the kiosk API.
type Handler struct {
	cfg       Config
	sessions  *kiosk.Service
	resolver  *attendance.Resolver
	schedules schedule.Directory
	hub       *events.Hub
	health    map[string]HealthCheck
}

// New creates the handler set.
func New(cfg Config, sessions *kiosk.Service, resolver *attendance.Resolver, schedules schedule.Directory, hub *events.Hub, health map[string]HealthCheck) *Handler {
	return &Handler{cfg: cfg, sessions: sessions, resolver: resolver, schedules: schedules, hub: hub, health: health}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.POST("/staff/token", h.IssueStaffToken)

	scan := []gin.HandlerFunc{h.SubmitScan}
	if h.cfg.RateLimitPerMin > 0 {
		limiter := httpmiddleware.NewTokenBucket(h.cfg.RateLimitPerMin/4, h.cfg.RateLimitPerMin)
		scan = append([]gin.HandlerFunc{limiter.GinMiddleware(httpmiddleware.ClientIP)}, scan...)
	}
	pub := v1.Group("/kiosk")
	pub.GET("/session/:token", h.GetSession)
	pub.GET("/validate/:token", h.ValidateSession)
	pub.GET("/feed/:token", h.Feed)
	pub.POST("/scan", scan...)

	staff := v1.Group("", auth.RequireRole(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, auth.RoleStaff))
	staff.POST("/kiosk/create", h.CreateSession)
	staff.POST("/kiosk/end", h.EndSession)
	staff.GET("/schedules", h.ListSchedules)
	staff.GET("/schedules/:id/attendance", h.ListAttendance)
	staff.POST("/schedules/:id/absences", h.MarkAbsent)
}

// Healthz reports each dependency; any failure turns the response into a 503.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Staff auth ----------

type staffTokenRequest struct {
	StaffID string `json:"staff_id" binding:"required"`
	APIKey  string `json:"api_key" binding:"required"`
}

// IssueStaffToken exchanges the center's staff API key for a short-lived bearer token.
func (h *Handler) IssueStaffToken(c *gin.Context) {
	var req staffTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
		return
	}
	if h.cfg.StaffAPIKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "staff login not configured"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.cfg.StaffAPIKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	tok, err := auth.Issue(req.StaffID, auth.RoleStaff, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL)
	if err != nil {
		log.Printf("token issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt.Unix(),
	})
}

// ---------- Kiosk sessions ----------

type createSessionRequest struct {
	ScheduleID string `json:"schedule_id" binding:"required"`
	KioskID    string `json:"kiosk_id"`
	TTLMinutes int    `json:"ttl_minutes" binding:"omitempty,min=1,max=1440"`
}

// CreateSession binds a kiosk to a schedule.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), req.ScheduleID, req.KioskID, time.Duration(req.TTLMinutes)*time.Minute)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":         sess.Token,
		"schedule_id":   sess.ScheduleID,
		"schedule_name": sess.ScheduleName,
		"kiosk_id":      sess.KioskID,
		"expires_at":    sess.ExpiresAt,
	})
}

// GetSession returns session details; expired and ended sessions answer 410 with the
// details still attached.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, kiosk.ErrSessionExpired) || errors.Is(err, kiosk.ErrSessionEnded) {
			c.JSON(http.StatusGone, gin.H{"error": err.Error(), "code": attendance.ErrorCode(err), "retryable": false, "session": sess})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// ValidateSession is the kiosk's liveness probe.
func (h *Handler) ValidateSession(c *gin.Context) {
	ok, err := h.sessions.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": ok})
}

type endSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// EndSession ends a kiosk session; repeating it is harmless.
func (h *Handler) EndSession(c *gin.Context) {
	var req endSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
		return
	}
	sess, err := h.sessions.End(c.Request.Context(), req.Token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": sess.Status, "ended_at": sess.EndedAt})
}

// ---------- Scans ----------

type scanRequest struct {
	RFID           string `json:"rfid" binding:"required"`
	AttendanceType string `json:"attendance_type" binding:"required"`
	SessionToken   string `json:"session_token" binding:"required"`
}

// SubmitScan resolves one badge read. The server clock stamps the scan.
func (h *Handler) SubmitScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_scan", "retryable": false})
		return
	}
	typ, err := attendance.ParseScanType(req.AttendanceType)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.resolver.Resolve(c.Request.Context(), attendance.ScanEvent{
		RFID:         req.RFID,
		Type:         typ,
		SessionToken: req.SessionToken,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if out.Duplicate || typ == attendance.TimeOut {
		status = http.StatusOK
	}
	c.JSON(status, out)
}

// Feed streams outcomes for the session's schedule as server-sent events until the
// client goes away or the session expires.
func (h *Handler) Feed(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	outcomes, cancel := h.hub.Subscribe(sess.ScheduleID)
	defer cancel()

	expiry := time.NewTimer(sess.ExpiresAt.Sub(h.sessions.Now()))
	defer expiry.Stop()
	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	// The first event confirms the subscription is live.
	c.SSEvent("session", sess)
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case o, ok := <-outcomes:
			if !ok {
				return false
			}
			c.SSEvent("attendance", o)
			return true
		case <-keepalive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-expiry.C:
			c.SSEvent("session_expired", gin.H{"token": sess.Token})
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ---------- Staff views ----------

// ListSchedules lists the classes held on ?date= (default today), for picking which
// schedule a kiosk should be bound to.
func (h *Handler) ListSchedules(c *gin.Context) {
	day, ok := h.dateParam(c)
	if !ok {
		return
	}
	windows, err := h.schedules.SchedulesForDay(c.Request.Context(), day.Weekday())
	if err != nil {
		log.Printf("list schedules: %v", err)
		writeError(c, err)
		return
	}
	if windows == nil {
		windows = []schedule.Window{}
	}
	c.JSON(http.StatusOK, gin.H{"date": day.Format(attendance.DateLayout), "schedules": windows})
}

// ListAttendance returns a class day's records.
func (h *Handler) ListAttendance(c *gin.Context) {
	day, ok := h.dateParam(c)
	if !ok {
		return
	}
	date := day.Format(attendance.DateLayout)
	recs, err := h.resolver.List(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"schedule_id": c.Param("id"), "date": date, "records": recs})
}

type markAbsentRequest struct {
	Date string `json:"date" binding:"required"`
}

// MarkAbsent records absences for students with no scan on the given class day.
func (h *Handler) MarkAbsent(c *gin.Context) {
	var req markAbsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
		return
	}
	n, err := h.resolver.MarkAbsent(c.Request.Context(), c.Param("id"), req.Date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule_id": c.Param("id"), "date": req.Date, "marked_absent": n})
}

// dateParam reads ?date=YYYY-MM-DD, defaulting to today in the center's zone.
func (h *Handler) dateParam(c *gin.Context) (time.Time, bool) {
	today := h.resolver.Today()
	v := c.Query("date")
	if v == "" {
		return today, true
	}
	day, err := time.ParseInLocation(attendance.DateLayout, v, today.Location())
	if err != nil {
		writeError(c, attendance.ErrInvalidDate)
		return time.Time{}, false
	}
	return day, true
}
