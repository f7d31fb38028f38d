package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/service"
	ws "github.com/examhall/examhall-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams auto-save and completion over a WebSocket. Both paths
// go through the same services as their HTTP counterparts, so the conflict
// policy and the completion saga behave identically on either transport.
type WSHandler struct {
	sessionService    *service.SessionService
	autosaveService   *service.AutosaveService
	completionService *service.CompletionService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	sessionService *service.SessionService,
	autosaveService *service.AutosaveService,
	completionService *service.CompletionService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessionService:    sessionService,
		autosaveService:   autosaveService,
		completionService: completionService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:sessionId/stream?token=...
// Upgrades to WebSocket for real-time auto-save and completion.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sess, err := h.sessionService.GetOwned(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		ws.WriteError(conn, "session not found or not yours")
		return
	}
	if sess.Status != model.SessionStatusActive {
		ws.WriteError(conn, "session is not active")
		return
	}

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		data, err := ws.ReadRaw(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, wsLog, sess, data)
		case ws.ActionComplete:
			if done := h.handleComplete(conn, wsLog, sess); done {
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(envelope.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(conn *websocket.Conn, wsLog zerolog.Logger, sess *model.ExamSession, data []byte) {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ws.WriteError(conn, "malformed autosave payload")
		return
	}

	// The session object is held for the life of the socket; re-check the
	// durable state so a session terminated mid-stream stops saving.
	ctx := context.Background()
	latest, err := h.sessionService.Get(ctx, sess.ID)
	if err != nil {
		ws.WriteError(conn, "session lookup failed")
		return
	}
	sess.Status = latest.Status
	if err := h.sessionService.RequireActive(sess); err != nil {
		ws.WriteError(conn, err.Error())
		return
	}

	outcome := h.autosaveService.Reconcile(ctx, sess, req.Responses)

	ws.WriteTyped(conn, ws.AutosaveResult{
		Event:   ws.EventAutosaveResult,
		Success: outcome.Success(),
		Result:  outcome,
	})
}

// handleComplete runs the completion saga. It returns true when the
// session is closed and the socket should shut down.
func (h *WSHandler) handleComplete(conn *websocket.Conn, wsLog zerolog.Logger, sess *model.ExamSession) bool {
	ctx := context.Background()
	latest, err := h.sessionService.Get(ctx, sess.ID)
	if err != nil {
		ws.WriteError(conn, "session lookup failed")
		return false
	}
	sess.Status = latest.Status

	finalized, err := h.completionService.Complete(ctx, sess)
	if err != nil {
		var compErr *service.CompletionError
		if errors.As(err, &compErr) {
			wsLog.Error().Err(err).Str("step", compErr.Step).Msg("Completion failed")
			ws.WriteTyped(conn, ws.ErrorResponse{
				Event:       ws.EventError,
				Error:       "completion failed",
				Recoverable: &compErr.Recoverable,
			})
			return false
		}
		ws.WriteError(conn, err.Error())
		return false
	}

	wsLog.Info().Msg("Session completed over WebSocket")
	ws.WriteTyped(conn, ws.CompletedResponse{
		Event:  ws.EventCompleted,
		Result: *finalized,
	})
	return true
}
