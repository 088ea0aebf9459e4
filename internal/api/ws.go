package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codesync/internal/metrics"
	"codesync/internal/models"
	"codesync/internal/session"
)

const (
	// room run payloads carry up to MAX_CODE_BYTES of source plus JSON overhead
	maxMessageBytes = 1 << 20
	eventTimeout    = 10 * time.Second
	cleanupTimeout  = 10 * time.Second
)

/*** Collab WebSocket: room membership, shared editor state and runs ***/

func (h *Handlers) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

// an empty allow list accepts every origin
func (h *Handlers) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// CollabWS serves one connection. Frames from a connection are handled in
// the order they arrive; runs are dispatched on their own goroutine.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	client := session.NewClient(uuid.NewString(), conn)
	client.KeepAlive()
	go client.WritePump()
	h.registry.Add(client.ID)
	metrics.ConnectionOpened()
	h.logger.Debug("connection opened", zap.String("connId", client.ID))

	defer h.disconnect(client)

	for {
		var frame models.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("connection read failed", zap.String("connId", client.ID), zap.Error(err))
			}
			return
		}
		h.handleFrame(client, frame)
	}
}

// disconnect runs the leave logic for every room the connection was in.
func (h *Handlers) disconnect(client *session.Client) {
	h.registry.Remove(client.ID)

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := h.rooms.LeaveAll(ctx, client.ID); err != nil {
		h.logger.Error("disconnect cleanup failed", zap.String("connId", client.ID), zap.Error(err))
	}
	h.hub.UnsubscribeAll(client.ID)

	metrics.ConnectionClosed()
	client.Close()
	h.logger.Debug("connection closed", zap.String("connId", client.ID))
}

func (h *Handlers) handleFrame(client *session.Client, frame models.ClientFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch frame.Type {
	case models.EventJoinRoom:
		h.onJoin(ctx, client, frame)

	case models.EventLeaveRoom:
		var p models.LeaveRoomPayload
		if !h.decode(client, frame, &p) || p.RoomID == "" {
			return
		}
		h.logDropped(frame, p.RoomID, h.rooms.Leave(ctx, p.RoomID, client.ID, p.EndRoom))

	case models.EventCodeChange:
		var p models.CodeChangePayload
		if !h.decode(client, frame, &p) || p.RoomID == "" || p.Text == nil {
			return
		}
		h.logDropped(frame, p.RoomID, h.rooms.SetDocument(ctx, p.RoomID, client.ID, *p.Text))

	case models.EventLanguageChange:
		var p models.LanguageChangePayload
		if !h.decode(client, frame, &p) || p.RoomID == "" {
			return
		}
		h.logDropped(frame, p.RoomID, h.rooms.SetLanguage(ctx, p.RoomID, p.Language))

	case models.EventInputChange:
		var p models.InputChangePayload
		if !h.decode(client, frame, &p) || p.RoomID == "" || p.Input == nil {
			return
		}
		h.logDropped(frame, p.RoomID, h.rooms.SetTestInput(ctx, p.RoomID, *p.Input))

	case models.EventResetDocument:
		var p models.RoomRefPayload
		if !h.decode(client, frame, &p) || p.RoomID == "" {
			return
		}
		h.logDropped(frame, p.RoomID, h.rooms.ResetDocument(ctx, p.RoomID))

	case models.EventSetQuestion:
		var p models.SetQuestionPayload
		if !h.decode(client, frame, &p) || p.RoomID == "" || p.QuestionID == "" {
			return
		}
		h.logDropped(frame, p.RoomID, h.rooms.SetSelectedQuestion(ctx, p.RoomID, p.QuestionID))

	case models.EventRunExecute:
		var p models.RunExecutePayload
		if !h.decode(client, frame, &p) || p.RoomID == "" {
			return
		}
		// the gateway applies its own timeout; the result is broadcast even
		// if the submitter disconnects meanwhile
		go h.rooms.DispatchExecution(context.Background(), p.RoomID, client.ID, p)

	default:
		client.Send(models.WSFrame{
			Type:  models.EventError,
			ReqID: frame.ReqID,
			Data:  models.ErrorResponse{Code: models.ErrCodeUnknownType, Message: frame.Type},
		})
	}
}

func (h *Handlers) onJoin(ctx context.Context, client *session.Client, frame models.ClientFrame) {
	var p models.JoinRoomPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil || p.RoomID == "" {
		h.ackJoinFailed(client, frame.ReqID)
		return
	}
	snap, err := h.rooms.Join(ctx, client, p.RoomID, p.DisplayName)
	if err != nil {
		h.logger.Warn("join failed", zap.String("roomId", p.RoomID), zap.String("connId", client.ID), zap.Error(err))
		h.ackJoinFailed(client, frame.ReqID)
		return
	}
	client.Send(models.WSFrame{Type: models.EventJoinRoom, ReqID: frame.ReqID, Data: snap})
}

func (h *Handlers) ackJoinFailed(client *session.Client, reqID string) {
	client.Send(models.WSFrame{
		Type:  models.EventJoinRoom,
		ReqID: reqID,
		Data:  models.ErrorResponse{Code: models.ErrCodeJoinFailed},
	})
}

// decode reports whether frame.Data fits out; malformed payloads are dropped.
func (h *Handlers) decode(client *session.Client, frame models.ClientFrame, out any) bool {
	if err := json.Unmarshal(frame.Data, out); err != nil {
		h.logger.Debug("dropping malformed frame",
			zap.String("connId", client.ID),
			zap.String("type", frame.Type),
			zap.Error(err))
		return false
	}
	return true
}

func (h *Handlers) logDropped(frame models.ClientFrame, roomID string, err error) {
	if err == nil {
		return
	}
	h.logger.Debug("event dropped",
		zap.String("type", frame.Type),
		zap.String("roomId", roomID),
		zap.Error(err))
}
