package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"smarttv-backend/internal/audit"
	"smarttv-backend/internal/auth"
	"smarttv-backend/internal/calls"
	"smarttv-backend/internal/rbac"
	"smarttv-backend/internal/reconcile"
	"smarttv-backend/internal/reporting"
	"smarttv-backend/internal/rooms"
	"smarttv-backend/internal/scheduler"
	"smarttv-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SyncController is the scheduler surface exposed over HTTP.
type SyncController interface {
	TriggerNow(ctx context.Context) (reconcile.SyncReport, error)
	TriggerAsync(ctx context.Context) error
	Status() scheduler.Status
}

// CallEnder records client-reported call ends.
type CallEnder interface {
	ReportEnded(ctx context.Context, callID string) (calls.CallRecord, error)
	ReportEndedBy(ctx context.Context, callID, userID string) (calls.CallRecord, error)
}

// Check is a named readiness check.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Sync    SyncController
	Calls   CallEnder
	Reports *reporting.Service
	Audit   *audit.Service
	Checks  []Check

	// Twilio room status callbacks; the route is only mounted when both are set.
	WebhookAuthToken string
	WebhookURL       string
}

// --- Health ---

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz runs every check with a shared short timeout.
func (h Handlers) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	results := gin.H{}
	ready := true
	for _, chk := range h.Checks {
		if err := chk.Fn(ctx); err != nil {
			ready = false
			results[chk.Name] = err.Error()
			continue
		}
		results[chk.Name] = "ok"
	}
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": results})
}

// --- Calls ---

// EndCall records a client_reported end. Admins may end any call; users only their own.
func (h Handlers) EndCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	ctx := c.Request.Context()
	callID := c.Param("call_id")
	id, _ := auth.IdentityFrom(ctx)

	var (
		rec calls.CallRecord
		err error
	)
	if rbac.CanEndAnyCall(id.Role) {
		rec, err = h.Calls.ReportEnded(ctx, callID)
	} else {
		rec, err = h.Calls.ReportEndedBy(ctx, callID, id.UserID)
	}

	switch {
	case err == nil:
	case errors.Is(err, calls.ErrAlreadyEnded):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already ended", "call": rec})
		return
	case errors.Is(err, calls.ErrNotActive):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call is not active"})
		return
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	case errors.Is(err, calls.ErrNotParticipant):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	case errors.Is(err, calls.ErrStoreUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call end failed"})
		return
	}

	if h.Audit != nil {
		ended := audit.CallEnded{CallID: rec.CallID, RoomName: rec.RoomName, Reason: string(rec.EndReason)}
		if rec.EndedAt != nil {
			ended.EndedAt = *rec.EndedAt
		}
		if rec.DurationSeconds != nil {
			ended.DurationSeconds = *rec.DurationSeconds
		}
		if err := h.Audit.LogCallEnded(ctx, id.UserID, id.Role, c.ClientIP(), ended); err != nil {
			logger.FromGin(c).Warn("audit append failed", "call_id", rec.CallID, "err", err)
		}
	}
	c.JSON(http.StatusOK, rec)
}

// --- Admin: sync ---

// TriggerSync runs a reconciliation pass now. With ?async=true it returns 202
// immediately and the outcome is read from SyncStatus.
func (h Handlers) TriggerSync(c *gin.Context) {
	if h.Sync == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sync not configured"})
		return
	}
	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	ctx := c.Request.Context()
	h.auditTrigger(c, async)

	if async {
		if err := h.Sync.TriggerAsync(ctx); err != nil {
			h.syncError(c, err, nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
		return
	}

	report, err := h.Sync.TriggerNow(ctx)
	if err != nil {
		h.syncError(c, err, &report)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h Handlers) syncError(c *gin.Context, err error, report *reconcile.SyncReport) {
	switch {
	case errors.Is(err, scheduler.ErrPassInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "reconciliation pass in progress"})
	case errors.Is(err, scheduler.ErrStopped):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	case errors.Is(err, calls.ErrStoreUnavailable):
		body := gin.H{"error": "store unavailable"}
		if report != nil {
			body["report"] = report
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, body)
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
	}
}

func (h Handlers) auditTrigger(c *gin.Context, async bool) {
	if h.Audit == nil {
		return
	}
	id, _ := auth.IdentityFrom(c.Request.Context())
	if err := h.Audit.LogSyncTriggered(c.Request.Context(), id.UserID, id.Role, c.ClientIP(), async); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}

func (h Handlers) SyncStatus(c *gin.Context) {
	if h.Sync == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sync not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Sync.Status())
}

// --- Admin: reports ---

// CallsSummary aggregates calls created in [from, to). Defaults to the last 24h.
// from/to are RFC3339.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{Range: reporting.TimeRange{From: from, To: to}})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		if errors.Is(err, calls.ErrStoreUnavailable) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Webhooks ---

// RoomStatusCallback turns room-ended and participant-disconnected callbacks into
// an early async reconciliation pass. Nothing is ended from the callback itself.
func (h Handlers) RoomStatusCallback(c *gin.Context) {
	cb, err := rooms.ParseStatusCallback(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if err := rooms.ValidateSignature(c.Request, h.WebhookAuthToken, h.WebhookURL); err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	log := logger.FromGin(c).With("room_name", cb.RoomName, "event", cb.Event)
	if !cb.SignalsEnd() || h.Sync == nil {
		log.Debug("room status callback ignored")
		c.Status(http.StatusNoContent)
		return
	}
	// The pass must outlive this request.
	switch err := h.Sync.TriggerAsync(context.WithoutCancel(c.Request.Context())); {
	case err == nil:
		log.Info("room status callback triggered reconciliation")
	case errors.Is(err, scheduler.ErrPassInProgress):
		log.Debug("room status callback coalesced into running pass")
	case errors.Is(err, scheduler.ErrStopped):
		log.Info("room status callback ignored during shutdown")
	default:
		log.Warn("room status callback trigger failed", "err", err)
	}
	c.Status(http.StatusNoContent)
}
