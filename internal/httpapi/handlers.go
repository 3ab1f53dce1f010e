package httpapi

import (
	"errors"
	"net/http"
	"time"

	"matchcall/internal/audit"
	"matchcall/internal/auth"
	"matchcall/internal/calls"
	"matchcall/internal/directory"
	"matchcall/internal/reporting"
	"matchcall/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Calls    *calls.Service
	Audit    *audit.Service
	Reports  *reporting.Service
	Profiles directory.Directory

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// DefaultHistoryWindow is used when a history request omits from/to.
const DefaultHistoryWindow = 30 * 24 * time.Hour

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login issues a JWT token pair for any user_id.
//
// NOTE: This is a skeleton-only endpoint; it does not validate credentials and
// is not registered in production, where the account service mints tokens
// with the shared secret.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, auth.RoleMember)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(h.now(), req.RefreshToken)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}

// --- Calls ---

type createCallRequest struct {
	ReceiverID string         `json:"receiver_id"`
	CallType   calls.CallType `json:"call_type"`
}

type terminalRequest struct {
	Status          calls.Status `json:"status"`
	Reason          string       `json:"reason"`
	DurationSeconds int          `json:"duration_seconds"`
}

// CreateCall opens a ringing session with the authenticated user as caller.
func (h Handlers) CreateCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s, err := h.Calls.CreateSession(c.Request.Context(), userID, req.ReceiverID, req.CallType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h Handlers) GetCall(c *gin.Context) {
	s, ok := h.participantSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s)
}

// MarkActive is called by the receiver once they accepted.
func (h Handlers) MarkActive(c *gin.Context) {
	s, ok := h.participantSession(c)
	if !ok {
		return
	}
	out, err := h.Calls.MarkActive(c.Request.Context(), s.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// MarkTerminal records the outcome. A session that is already terminal is
// returned unchanged with 200, so both participants may report.
func (h Handlers) MarkTerminal(c *gin.Context) {
	s, ok := h.participantSession(c)
	if !ok {
		return
	}
	var req terminalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	out, err := h.Calls.MarkTerminal(c.Request.Context(), s.ID, req.Status, req.Reason, req.DurationSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) CallEvents(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	s, ok := h.participantSession(c)
	if !ok {
		return
	}
	events, err := h.Audit.Timeline(c.Request.Context(), s.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": s.ID, "events": events})
}

// ListCalls returns the caller's history, newest first.
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	r, ok := h.timeRange(c)
	if !ok {
		return
	}
	out, err := h.Calls.ListForUser(c.Request.Context(), userID, r.From, r.To)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out, "range": r})
}

func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	r, ok := h.timeRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{UserID: userID, Range: r})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Profiles ---

func (h Handlers) GetProfile(c *gin.Context) {
	if h.Profiles == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profiles not configured"})
		return
	}
	p, err := h.Profiles.Profile(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// --- helpers ---

func requireUser(c *gin.Context) (string, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", false
	}
	return userID, true
}

// participantSession loads :id and rejects anyone who is not on the call.
// Non-participants get 404 so call ids cannot be probed.
func (h Handlers) participantSession(c *gin.Context) (calls.Session, bool) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return calls.Session{}, false
	}
	userID, ok := requireUser(c)
	if !ok {
		return calls.Session{}, false
	}
	s, err := h.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return calls.Session{}, false
	}
	if !s.HasParticipant(userID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return calls.Session{}, false
	}
	return s, true
}

func (h Handlers) timeRange(c *gin.Context) (reporting.TimeRange, bool) {
	to := h.now().UTC()
	from := to.Add(-DefaultHistoryWindow)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		to = t
	}
	return reporting.TimeRange{From: from, To: to}, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, directory.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
