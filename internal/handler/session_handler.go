package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/examhall/examhall-backend/internal/validator"
)

// SessionHandler handles the student-facing exam session endpoints.
type SessionHandler struct {
	sessionService    *service.SessionService
	autosaveService   *service.AutosaveService
	completionService *service.CompletionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	sessionService *service.SessionService,
	autosaveService *service.AutosaveService,
	completionService *service.CompletionService,
) *SessionHandler {
	return &SessionHandler{
		sessionService:    sessionService,
		autosaveService:   autosaveService,
		completionService: completionService,
	}
}

// StartSession godoc
// POST /api/v1/exams/:examId/sessions
// Starts (or idempotently rejoins) a session on a published exam.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := paramUUID(c, "examId")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.sessionService.Start(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": sess})
}

// GetSessionState godoc
// GET /api/v1/sessions/:sessionId
// Returns the resume payload: saved answers plus the remaining clock.
func (h *SessionHandler) GetSessionState(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), sess)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrStoreUnavailable)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// Autosave godoc
// POST /api/v1/sessions/:sessionId/answers
// Reconciles a batch of answer updates into the transient store.
//
// State and ownership violations are real 4xx errors; anything past that
// boundary is reported inside a success-shaped body so a degraded store
// never hard-fails the exam-taking flow.
func (h *SessionHandler) Autosave(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.sessionService.RequireActive(sess); err != nil {
		h.failSessionError(c, err)
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome := h.autosaveService.Reconcile(c.Request.Context(), sess, req.Responses)

	response.Success(c, http.StatusOK, gin.H{
		"success": outcome.Success(),
		"result":  outcome,
	})
}

// CompleteSession godoc
// POST /api/v1/sessions/:sessionId/complete
// Drains the transient answers, persists and scores them, and closes the
// session. A recoverable failure leaves the answers intact for a retry.
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	finalized, err := h.completionService.Complete(c.Request.Context(), sess)
	if err != nil {
		var compErr *service.CompletionError
		if errors.As(err, &compErr) {
			response.FailRecoverable(c, http.StatusInternalServerError, response.ErrCompletionFailed, compErr.Recoverable)
			return
		}
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, finalized)
}

// PauseSession godoc
// POST /api/v1/sessions/:sessionId/pause
func (h *SessionHandler) PauseSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	if err := h.sessionService.Pause(c.Request.Context(), sess); err != nil {
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// ResumeSession godoc
// POST /api/v1/sessions/:sessionId/resume
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	if err := h.sessionService.Resume(c.Request.Context(), sess); err != nil {
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// ownedSession resolves the :sessionId path param to a session owned by
// the authenticated student, writing the error response itself on failure.
func (h *SessionHandler) ownedSession(c *gin.Context) (*model.ExamSession, bool) {
	claims := middleware.GetClaims(c)
	sessionID, ok := paramUUID(c, "sessionId")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	sess, err := h.sessionService.GetOwned(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		h.failSessionError(c, err)
		return nil, false
	}
	return sess, true
}

// failSessionError maps session-service errors onto the response envelope.
func (h *SessionHandler) failSessionError(c *gin.Context, err error) {
	var stateErr *service.InvalidStateError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotSessionOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrIdentityNotVerified):
		response.Fail(c, http.StatusForbidden, response.ErrIdentityNotVerified)
	case errors.Is(err, service.ErrSessionFinished):
		response.Fail(c, http.StatusConflict, response.ErrSessionFinished)
	case errors.As(err, &stateErr):
		response.FailWithMessage(c, http.StatusConflict, response.ErrInvalidSessionState, stateErr.Error())
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
