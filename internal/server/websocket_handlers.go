package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"socialgraph/internal/directory"
	"socialgraph/internal/middleware"
	"socialgraph/internal/notifications"
	"socialgraph/internal/observability"
	"socialgraph/internal/presence"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Frame types written to websocket clients besides graph events.
const (
	FrameDirectory = "directory"
	FrameError     = "error"
)

// clientMessage is a frame sent by the browser tab.
type clientMessage struct {
	Type   string `json:"type"`
	Hidden bool   `json:"hidden"`
}

// WebsocketHandler handles GET /api/ws. Each connection is one presence
// session and one directory watcher: the client receives its full directory
// view on connect and again after every change, plus the graph events it
// takes part in. The client reports tab visibility and may send heartbeats.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals(middleware.UserIDLocal).(string)
		if uid == "" {
			_ = conn.Close()
			return
		}

		// Register connection with scaling guardrails
		client, err := s.hub.Register(uid, conn)
		if err != nil {
			observability.Logger.Warn("websocket register failed",
				slog.String("user_id", uid),
				slog.String("error", err.Error()),
			)
			if frame, ferr := notifications.Encode(FrameError, err.Error()); ferr == nil {
				_ = conn.WriteMessage(websocket.TextMessage, frame)
			}
			_ = conn.Close()
			return
		}

		connCtx := observability.WithCorrelationID(context.Background(), observability.GenerateCorrelationID())
		ctx, cancel := context.WithCancel(observability.WithUserID(connCtx, uid))
		defer cancel()

		session, err := s.tracker.StartSession(ctx, uid)
		if err != nil {
			// The directory still works; the user just appears offline.
			observability.Logger.WarnContext(ctx, "presence session unavailable",
				slog.String("error", err.Error()))
		}
		defer func() {
			if session != nil {
				session.Close()
			}
		}()

		watcher, err := s.projection.Watch(ctx, uid)
		if err != nil {
			if frame, ferr := notifications.Encode(FrameError, err.Error()); ferr == nil {
				_ = conn.WriteMessage(websocket.TextMessage, frame)
			}
			s.hub.UnregisterClient(client)
			_ = conn.Close()
			return
		}

		forwarded := make(chan struct{})
		go func() {
			defer close(forwarded)
			forwardViews(client, watcher)
		}()

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			s.handleClientMessage(ctx, c, session, message)
		}

		go client.WritePump()
		client.ReadPump()

		// Stops the watcher through its context and ends forwarding.
		cancel()
		watcher.Stop()
		<-forwarded
		client.Close()
	})
}

func forwardViews(client *notifications.Client, watcher *directory.Watcher) {
	for view := range watcher.C() {
		frame, err := notifications.Encode(FrameDirectory, view)
		if err != nil {
			observability.Logger.Error("failed to encode directory view",
				slog.String("user_id", watcher.UID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		client.TrySend(frame)
	}
}

func (s *Server) handleClientMessage(ctx context.Context, c *notifications.Client, session *presence.Session, message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		observability.Logger.DebugContext(ctx, "invalid websocket message", slog.String("user_id", c.UserID))
		return
	}

	ctx, span := observability.TraceWebSocket(ctx, s.hub.Name(), msg.Type)
	defer span.End()

	if session == nil {
		return
	}

	var err error
	switch msg.Type {
	case "visibility":
		err = session.SetVisible(ctx, !msg.Hidden)
	case "heartbeat":
		err = session.Heartbeat(ctx)
	default:
		return
	}
	if err != nil {
		span.RecordError(err)
		observability.Logger.WarnContext(ctx, "presence update failed",
			slog.String("message_type", msg.Type),
			slog.String("error", err.Error()),
		)
	}
}
