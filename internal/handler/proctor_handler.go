package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
)

// ProctorHandler handles the elevated cross-session endpoints.
type ProctorHandler struct {
	sessionService *service.SessionService
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(sessionService *service.SessionService) *ProctorHandler {
	return &ProctorHandler{sessionService: sessionService}
}

// GetSession godoc
// GET /api/v1/proctor/sessions/:sessionId
// Returns any session without an ownership check.
func (h *ProctorHandler) GetSession(c *gin.Context) {
	sessionID, ok := paramUUID(c, "sessionId")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.sessionService.Get(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// TerminateSession godoc
// POST /api/v1/proctor/sessions/:sessionId/terminate
// Forcibly closes a session. Its transient answers are never drained.
func (h *ProctorHandler) TerminateSession(c *gin.Context) {
	sessionID, ok := paramUUID(c, "sessionId")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.sessionService.Get(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if err := h.sessionService.Terminate(c.Request.Context(), sess); err != nil {
		var stateErr *service.InvalidStateError
		if errors.As(err, &stateErr) {
			response.FailWithMessage(c, http.StatusConflict, response.ErrInvalidSessionState, stateErr.Error())
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// GetExamResults godoc
// GET /api/v1/proctor/exams/:examId/results?page=&per_page=
// Lists per-student results for an exam, paginated.
func (h *ProctorHandler) GetExamResults(c *gin.Context) {
	examID, ok := paramUUID(c, "examId")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	results, total, err := h.sessionService.Results(c.Request.Context(), examID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	})
}
