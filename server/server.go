package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dfcx-bridge/go-bridge/client"
	"github.com/dfcx-bridge/go-bridge/logging"
	"github.com/dfcx-bridge/go-bridge/session"
)

// MediaPath is where media hosts connect.
const MediaPath = "/v1/dialogflow"

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	maxFrameBytes           = 1 << 20
)

func getLogger() *slog.Logger {

	logger, _ := logging.GetLogger()
	return logger
}

// MediaHandler serves one call per websocket connection. The first text
// frame must be a start message; the session lives until the host stops it,
// hangs up or closes the socket, or the agent ends or transfers the call.
type MediaHandler struct {
	Client *client.SdkClient

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	upgrader websocket.Upgrader
}

// NewMediaHandler returns a MediaHandler starting sessions with sdkClient.
func NewMediaHandler(sdkClient *client.SdkClient) *MediaHandler {

	return &MediaHandler{
		Client:           sdkClient,
		HandshakeTimeout: defaultHandshakeTimeout,
		WriteTimeout:     defaultWriteTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (handler *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	logger := getLogger()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed",
			"remote", r.RemoteAddr,
			"error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameBytes)

	_ = conn.SetReadDeadline(time.Now().Add(handler.HandshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		logger.Debug("no start message",
			"remote", r.RemoteAddr,
			"error", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	start, err := decodeClientMessage(firstFrame)
	if messageType != websocket.TextMessage || err != nil || start.Type != MessageStart {
		handler.writeError(conn, "", "first frame must be a start message")
		return
	}

	if start.SessionId == "" {
		start.SessionId = uuid.NewString()
	}

	variables := session.NewMapVariables(handler.Client.DefaultVariables())
	for name, value := range start.Variables {
		variables.Set(name, value)
	}

	channel := newWsChannel(conn, start.SessionId, variables, handler.WriteTimeout, handler.Client.PlaybackTimeout())

	newSession, err := handler.Client.NewSession(r.Context(), channel, client.SessionSettings{
		SessionId:       start.SessionId,
		AgentToken:      start.AgentToken,
		LanguageCode:    start.LanguageCode,
		Event:           start.Event,
		Text:            start.Text,
		InputSampleRate: start.SampleRate,
		OnResponse: func(sessionId string, eventKind string, payload []byte) {
			_ = channel.send(ServerMessage{
				Type:      MessageEvent,
				SessionId: sessionId,
				Kind:      eventKind,
				Payload:   payload,
			})
		},
		OnError: func(sessionId string, payload []byte) {
			_ = channel.send(ServerMessage{
				Type:      MessageError,
				SessionId: sessionId,
				Payload:   payload,
			})
		},
	})
	if err != nil {
		handler.writeError(conn, start.SessionId, err.Error())
		return
	}

	_ = channel.send(ServerMessage{Type: MessageStarted, SessionId: newSession.SessionId})

	handler.serveSession(conn, channel, newSession)
}

// serveSession pumps host frames into the session until either side ends
// the call.
func (handler *MediaHandler) serveSession(conn *websocket.Conn, channel *wsChannel, activeSession *session.SessionObject) {

	logger := getLogger()
	sessionId := activeSession.SessionId

	defer func() {
		channel.close()
		if err := activeSession.Stop(); err != nil && !errors.Is(err, session.ErrNotAttached) {
			logger.Warn("stopping session",
				"sessionId", sessionId,
				"error", err)
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("media connection closed",
					"sessionId", sessionId,
					"error", err)
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			activeSession.WriteFrame(data)
			continue
		}

		message, err := decodeClientMessage(data)
		if err != nil {
			channel.sendError("invalid message")
			continue
		}

		switch message.Type {
		case MessageStop, MessageHangup:
			logger.Info("host ended session",
				"sessionId", sessionId,
				"type", message.Type)
			return

		case MessageSetVariables:
			for name, value := range message.Variables {
				channel.variables.Set(name, value)
			}
			for _, name := range message.Unset {
				channel.variables.Unset(name)
			}

		case MessagePlayDone:
			if !channel.playDone(message.Id) {
				logger.Debug("play_done for unknown playback",
					"sessionId", sessionId,
					"id", message.Id)
			}

		default:
			channel.sendError("unknown message type " + message.Type)
		}
	}
}

// writeError reports a failure before the session exists, while the handler
// is the only writer.
func (handler *MediaHandler) writeError(conn *websocket.Conn, sessionId string, message string) {

	getLogger().Warn("media host error",
		"sessionId", sessionId,
		"message", message)

	deadline := time.Now().Add(handler.WriteTimeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteJSON(ServerMessage{
		Type:      MessageError,
		SessionId: sessionId,
		Message:   message,
	})
}

// NewServeMux routes the media endpoint, a health check and, when
// metricsHandler is non-nil, the metrics endpoint.
func NewServeMux(mediaHandler http.Handler, metricsHandler http.Handler) *http.ServeMux {

	mux := http.NewServeMux()
	mux.Handle(MediaPath, mediaHandler)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
