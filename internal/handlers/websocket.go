package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lumenhealth/consult/internal/config"
	"github.com/lumenhealth/consult/internal/connections"
	"github.com/lumenhealth/consult/internal/services/agent"
	"github.com/lumenhealth/consult/internal/wire"
	"github.com/lumenhealth/consult/pkg/logger"
)

var (
	manager                   = connections.NewManager(connections.DefaultTimeouts)
	responder agent.Responder = agent.Scripted{}

	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // In production, implement proper origin checking
		},
	}
)

// SetTimeouts temporarily changes the keepalive timeouts and returns a
// function to restore them. This is primarily used for testing.
func SetTimeouts(timeouts connections.TimeoutConfig) func() {
	previous := manager.GetTimeouts()
	manager.SetTimeouts(timeouts)
	return func() {
		manager.SetTimeouts(previous)
	}
}

// SetResponder temporarily swaps the agent responder and returns a function
// to restore it. This is primarily used for testing.
func SetResponder(r agent.Responder) func() {
	previous := responder
	responder = r
	return func() {
		responder = previous
	}
}

// UseConfiguredResponder installs the responder selected from environment
// configuration. Called once at startup.
func UseConfiguredResponder() {
	responder = agent.NewResponder()
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}

func validateTokenAndGetSession(tokenString string) (string, bool) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return config.GetJWTSecret(), nil
	})

	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.SessionID == "" {
		return "", false
	}

	return claims.SessionID, true
}

// HandleWebSocket authenticates the handshake, re-hydrates the caller with a
// history snapshot, and then folds inbound intents into response event
// streams until the connection drops.
func HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString := extractToken(r)
	if tokenString == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID, valid := validateTokenAndGetSession(tokenString)
	if !valid {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "Could not upgrade connection", http.StatusInternalServerError)
		return
	}

	logger.Info(logger.HANDLER, "Session %s connected", sessionID)

	manager.AddConnection(conn)
	defer func() {
		manager.RemoveConnection(conn)
		conn.Close()
		logger.Info(logger.HANDLER, "Session %s disconnected", sessionID)
	}()

	timeouts := manager.GetTimeouts()

	// Set up ping/pong handlers
	conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(timeouts.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	state := manager.Session(sessionID)

	emit := func(ev wire.Event) error {
		conn.SetWriteDeadline(time.Now().Add(timeouts.WriteWait))
		return conn.WriteJSON(ev)
	}

	// Re-hydrate the client before any other event.
	if err := emit(wire.Event{Type: wire.EventHistory, Messages: state.History()}); err != nil {
		return
	}

	for {
		conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn(logger.HANDLER, "Session %s read error: %v", sessionID, err)
			}
			break
		}

		intent, err := wire.DecodeIntent(data)
		if err != nil {
			logger.Warn(logger.HANDLER, "Session %s sent undecodable frame: %v", sessionID, err)
			continue
		}

		switch intent.Type {
		case wire.IntentMessage:
			handleMessage(r.Context(), state, intent.Message, emit)
		case wire.IntentDeactivate:
			logger.Debug(logger.HANDLER, "Session %s deactivated", sessionID)
			state.Reset()
		default:
			logger.Debug(logger.HANDLER, "Session %s sent unknown intent %q", sessionID, intent.Type)
		}
	}
}

func handleMessage(ctx context.Context, state *connections.SessionState, text string, emit agent.Emit) {
	state.Append(wire.HistoryMessage{
		ID:      uuid.New().String(),
		Role:    "user",
		Content: text,
	})

	respID := uuid.New().String()
	content, err := responder.Respond(ctx, state.History(), respID, emit)
	if err != nil {
		logger.Error(logger.HANDLER, "Responder failed: %v", err)
		emit(wire.Event{Type: wire.EventError, ID: respID, Error: "The assistant could not complete this response."})
		return
	}

	state.Append(wire.HistoryMessage{
		ID:      respID,
		Role:    "assistant",
		Content: content,
	})
}
