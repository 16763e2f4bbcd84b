// Package handler exposes the REST API and its middleware.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/permit"
	"github.com/safesite/ptw-service/internal/repository"
	"github.com/safesite/ptw-service/internal/service"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	auth          *service.AuthService
	permits       *service.PermitService
	lifecycle     *service.LifecycleService
	notifications *service.NotificationService
	log           zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	auth *service.AuthService,
	permits *service.PermitService,
	lifecycle *service.LifecycleService,
	notifications *service.NotificationService,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		auth:          auth,
		permits:       permits,
		lifecycle:     lifecycle,
		notifications: notifications,
		log:           log,
	}
}

// respondError maps a service error to its HTTP status and a reason the
// caller can act on. "Not your permit", "already decided" and "wrong stage"
// stay distinguishable.
func respondError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), gin.H{
		"code":  errors.Code(err),
		"error": errors.Message(err),
	})
}
type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

func (h *HTTPHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	u, err := h.auth.Register(c.Request.Context(), req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, u, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

type createPermitRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description *string   `json:"description"`
	Location    string    `json:"location" binding:"required"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`

	AreaManagerID   *string `json:"area_manager_id"`
	SafetyOfficerID *string `json:"safety_officer_id"`
	SiteLeaderID    *string `json:"site_leader_id"`

	TeamMembers []struct {
		Name    string `json:"name" binding:"required"`
		Trade   string `json:"trade"`
		Company string `json:"company"`
	} `json:"team_members"`
	Hazards []struct {
		Category       string `json:"category" binding:"required"`
		Description    string `json:"description"`
		ControlMeasure string `json:"control_measure"`
	} `json:"hazards"`
	PPE              []string `json:"ppe"`
	ChecklistAnswers []struct {
		Question string `json:"question" binding:"required"`
		Answer   bool   `json:"answer"`
	} `json:"checklist_answers"`
}

func (h *HTTPHandler) CreatePermit(c *gin.Context) {
	var req createPermitRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	svcReq := &service.CreatePermitRequest{
		Title:           req.Title,
		Description:     req.Description,
		Location:        req.Location,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		AreaManagerID:   req.AreaManagerID,
		SafetyOfficerID: req.SafetyOfficerID,
		SiteLeaderID:    req.SiteLeaderID,
		PPE:             req.PPE,
		CreatedBy:       CallerID(c),
	}
	for _, m := range req.TeamMembers {
		svcReq.TeamMembers = append(svcReq.TeamMembers, service.TeamMemberRequest{
			Name: m.Name, Trade: m.Trade, Company: m.Company,
		})
	}
	for _, hz := range req.Hazards {
		svcReq.Hazards = append(svcReq.Hazards, service.HazardRequest{
			Category: hz.Category, Description: hz.Description, ControlMeasure: hz.ControlMeasure,
		})
	}
	for _, a := range req.ChecklistAnswers {
		svcReq.ChecklistAnswers = append(svcReq.ChecklistAnswers, service.ChecklistAnswerRequest{
			Question: a.Question, Answer: a.Answer,
		})
	}

	p, err := h.permits.CreatePermit(c.Request.Context(), svcReq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *HTTPHandler) GetPermit(c *gin.Context) {
	p, exts, err := h.permits.GetPermit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permit": p, "extensions": exts})
}

func (h *HTTPHandler) ListPermits(c *gin.Context) {
	var f repository.PermitFilter
	if v := c.Query("status"); v != "" {
		f.Status = &v
	}
	if c.Query("mine") == "true" {
		id := CallerID(c)
		f.CreatedBy = &id
	}
	if c.Query("pending_approval") == "true" {
		id := CallerID(c)
		f.PendingApprover = &id
	}

	permits, err := h.permits.ListPermits(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permits": permits})
}

func (h *HTTPHandler) DeletePermit(c *gin.Context) {
	if err := h.permits.DeletePermit(c.Request.Context(), c.Param("id"), CallerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type approveRequest struct {
	Role      string `json:"role" binding:"required"`
	Signature string `json:"signature"`
}

func (h *HTTPHandler) ApprovePermit(c *gin.Context) {
	var req approveRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	status, allApproved, err := h.lifecycle.Approve(
		c.Request.Context(), c.Param("id"), permit.Role(req.Role), CallerID(c), req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "all_approved": allApproved})
}

type rejectRequest struct {
	Role   string `json:"role" binding:"required"`
	Reason string `json:"reason"`
}

func (h *HTTPHandler) RejectPermit(c *gin.Context) {
	var req rejectRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	status, err := h.lifecycle.Reject(
		c.Request.Context(), c.Param("id"), permit.Role(req.Role), CallerID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *HTTPHandler) SubmitPermit(c *gin.Context) {
	status, err := h.lifecycle.FinalSubmit(c.Request.Context(), c.Param("id"), CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *HTTPHandler) StartPermit(c *gin.Context) {
	status, err := h.lifecycle.Start(c.Request.Context(), c.Param("id"), CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type extensionRequest struct {
	NewEndTime    time.Time `json:"new_end_time" binding:"required"`
	Justification string    `json:"justification"`
}

func (h *HTTPHandler) RequestExtension(c *gin.Context) {
	var req extensionRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ext, err := h.lifecycle.RequestExtension(
		c.Request.Context(), c.Param("id"), CallerID(c), req.NewEndTime, req.Justification)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ext)
}

type extensionDecisionRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Reason  string `json:"reason"`
}

func (h *HTTPHandler) DecideExtension(c *gin.Context) {
	var req extensionDecisionRequest
	if err := c.BindJSON(&req); err != nil || req.Approve == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	status, err := h.lifecycle.DecideExtension(
		c.Request.Context(), c.Param("id"), CallerID(c), *req.Approve, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type closeRequest struct {
	Housekeeping *bool `json:"housekeeping"`
	ToolsRemoved *bool `json:"tools_removed"`
	LocksRemoved *bool `json:"locks_removed"`
	AreaRestored *bool `json:"area_restored"`
}

func (h *HTTPHandler) ClosePermit(c *gin.Context) {
	var req closeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	status, err := h.lifecycle.ClosePermit(c.Request.Context(), c.Param("id"), CallerID(c), permit.ClosureInput{
		Housekeeping: req.Housekeeping,
		ToolsRemoved: req.ToolsRemoved,
		LocksRemoved: req.LocksRemoved,
		AreaRestored: req.AreaRestored,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *HTTPHandler) ListNotifications(c *gin.Context) {
	notes, err := h.notifications.ListForUser(c.Request.Context(), CallerID(c), c.Query("unread") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes})
}

func (h *HTTPHandler) MarkNotificationRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), CallerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
