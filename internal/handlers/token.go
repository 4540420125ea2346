package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumenhealth/consult/internal/config"
	"github.com/lumenhealth/consult/pkg/httpext"
	"github.com/lumenhealth/consult/pkg/logger"
)

const tokenLifetime = 1 * time.Hour

// SessionClaims carries the session id that keys server-side conversation
// state across reconnects.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// HandleToken mints a session-scoped bearer token for the websocket
// handshake. The reference backend has no user accounts; every mint starts a
// fresh session.
func HandleToken(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.New().String()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        sessionID,
		},
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(config.GetJWTSecret())
	if err != nil {
		logger.Error(logger.HANDLER, "Failed to sign session token: %v", err)
		httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	logger.Debug(logger.HANDLER, "Minted token for session %s", sessionID)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(tokenLifetime.Seconds()),
	}); err != nil {
		logger.Error(logger.HANDLER, "Failed to encode token response: %v", err)
	}
}
