// README: Job endpoints; the partner's on-site progression and the customer's
// approval step. The job view is enriched with live partner position while the
// job is still running.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sparkle/internal/modules/job"
	"sparkle/internal/types"
)

// Presence supplies the partner's last heartbeat position for live job views.
type Presence interface {
	LastLocation(ctx context.Context, id types.ID) (types.Point, time.Time, error)
}

type JobHandler struct {
	jobs     *job.Service
	presence Presence
}

func NewJobHandler(svc *job.Service, presence Presence) *JobHandler {
	return &JobHandler{jobs: svc, presence: presence}
}

// jobView widens the stored job with the partner's last known position. The
// position lives in the presence index only; it is never persisted on the job.
type jobView struct {
	*job.Job
	PartnerPosition *types.Point `json:"partner_position,omitempty"`
	PartnerSeenAt   *time.Time   `json:"partner_seen_at,omitempty"`
}

func (h *JobHandler) Get(c *gin.Context) {
	who := caller(c)
	if isAdmin(c) {
		who = ""
	}
	j, err := h.jobs.Get(c.Request.Context(), pathID(c), who)
	if err != nil {
		writeError(c, err)
		return
	}
	view := jobView{Job: j}
	if h.presence != nil && j.CompletedAt == nil {
		if p, seen, err := h.presence.LastLocation(c.Request.Context(), j.PartnerID); err == nil {
			view.PartnerPosition = &p
			view.PartnerSeenAt = &seen
		}
	}
	c.JSON(http.StatusOK, view)
}

// partnerStep runs one of the partner-driven transitions and writes the
// updated job.
func (h *JobHandler) partnerStep(c *gin.Context, step func(ctx context.Context, bookingID, partnerID types.ID) (*job.Job, error)) {
	if !requireRole(c, "partner") {
		return
	}
	j, err := step(c.Request.Context(), pathID(c), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *JobHandler) Enroute(c *gin.Context) {
	h.partnerStep(c, h.jobs.Enroute)
}

func (h *JobHandler) Arrive(c *gin.Context) {
	h.partnerStep(c, h.jobs.Arrive)
}

type startVerifyReq struct {
	Method string `json:"method" binding:"required"`
}

func (h *JobHandler) StartVerification(c *gin.Context) {
	if !requireRole(c, "partner") {
		return
	}
	var req startVerifyReq
	if !bindJSON(c, &req) {
		return
	}
	j, err := h.jobs.StartVerification(c.Request.Context(), pathID(c), caller(c), req.Method)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *JobHandler) CompleteVerification(c *gin.Context) {
	h.partnerStep(c, h.jobs.CompleteVerification)
}

type photosReq struct {
	Kind string   `json:"kind" binding:"required,oneof=before after"`
	URLs []string `json:"urls" binding:"required,min=1"`
}

func (h *JobHandler) AddPhotos(c *gin.Context) {
	if !requireRole(c, "partner") {
		return
	}
	var req photosReq
	if !bindJSON(c, &req) {
		return
	}
	j, err := h.jobs.AddPhotos(c.Request.Context(), pathID(c), caller(c), job.PhotoKind(req.Kind), req.URLs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *JobHandler) Start(c *gin.Context) {
	h.partnerStep(c, h.jobs.Start)
}

type pauseReq struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *JobHandler) Pause(c *gin.Context) {
	if !requireRole(c, "partner") {
		return
	}
	var req pauseReq
	if !bindJSON(c, &req) {
		return
	}
	j, err := h.jobs.Pause(c.Request.Context(), pathID(c), caller(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *JobHandler) Resume(c *gin.Context) {
	h.partnerStep(c, h.jobs.Resume)
}

func (h *JobHandler) Complete(c *gin.Context) {
	h.partnerStep(c, h.jobs.Complete)
}

func (h *JobHandler) Approve(c *gin.Context) {
	if !requireRole(c, "customer") {
		return
	}
	j, err := h.jobs.Approve(c.Request.Context(), pathID(c), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

type issueReq struct {
	Description string `json:"description" binding:"required"`
}

func (h *JobHandler) RaiseIssue(c *gin.Context) {
	if !requireRole(c, "customer") {
		return
	}
	var req issueReq
	if !bindJSON(c, &req) {
		return
	}
	j, err := h.jobs.RaiseIssue(c.Request.Context(), pathID(c), caller(c), req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}
