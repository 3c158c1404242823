package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/handler"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	sendQueueSize     = 64
	responseQueueSize = 16

	notificationMethod = "notification"
)

type ConnectionLifecycle interface {
	OnDisconnect(ctx context.Context, connectionId string)
}

type RequestRouter interface {
	RouteRequest(ctx context.Context, request handler.Request) *handler.Response
}

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader

	lifecycle ConnectionLifecycle
	router    RequestRouter
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	lifecycle ConnectionLifecycle,
	router RequestRouter,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		lifecycle,
		router,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/websocket", s.serve)
}

func (s *WebSocketServer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connection := broadcaster.NewConnection(sendQueueSize)
	logger := s.logger.With(
		zap.String("connectionId", connection.Id),
		zap.String("remoteAddr", r.RemoteAddr))

	logger.Info("websocket connection established")

	ctx, cancel := context.WithCancel(broadcaster.WithConnection(r.Context(), connection))
	responses := make(chan handler.Response, responseQueueSize)
	writerDone := make(chan struct{})

	go s.writePump(ctx, logger, conn, connection, responses, writerDone)

	s.readPump(ctx, logger, conn, responses, writerDone)

	cancel()
	s.lifecycle.OnDisconnect(context.WithoutCancel(ctx), connection.Id)
	// unauthenticated connections were never registered
	connection.Close()
	<-writerDone

	logger.Info("websocket connection closed")
}

func (s *WebSocketServer) readPump(
	ctx context.Context,
	logger *zap.Logger,
	conn *websocket.Conn,
	responses chan<- handler.Response,
	writerDone <-chan struct{},
) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var request handler.Request
		err = json.Unmarshal(message, &request)
		if err != nil {
			logger.Warn("invalid request, closing connection", zap.Error(err))

			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNoStatusReceived, ""),
				time.Now().Add(writeWait),
			)
			return
		}

		response := s.router.RouteRequest(ctx, request)
		if response == nil {
			continue
		}

		select {
		case responses <- *response:
		case <-writerDone:
			return
		}
	}
}

func (s *WebSocketServer) writePump(
	ctx context.Context,
	logger *zap.Logger,
	conn *websocket.Conn,
	connection *broadcaster.Connection,
	responses <-chan handler.Response,
	writerDone chan<- struct{},
) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		close(writerDone)
	}()

	for {
		select {
		case event, ok := <-connection.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// evicted or disconnected by the registry
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := s.writeNotification(conn, event)
			if err != nil {
				logger.Warn("failed to write notification", zap.String("eventId", event.Id), zap.Error(err))
				return
			}

		case response := <-responses:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteJSON(response)
			if err != nil {
				logger.Warn("failed to write response", zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *WebSocketServer) writeNotification(conn *websocket.Conn, event broadcaster.Event) error {
	rawJson, err := json.Marshal(event)
	if err != nil {
		return err
	}

	params := json.RawMessage(rawJson)

	return conn.WriteJSON(handler.NewNotification(notificationMethod, &params))
}
