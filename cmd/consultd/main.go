// consultd is the reference conversation backend: it mints session tokens
// and serves the websocket event stream the consult client consumes.
package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lumenhealth/consult/internal/config"
	"github.com/lumenhealth/consult/internal/handlers"
	"github.com/lumenhealth/consult/internal/middleware"
)

func main() {
	handlers.UseConfiguredResponder()
	r := setupRouter()

	addr := config.GetListenAddr()
	log.Println("Server starting on", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal("ListenAndServe error:", err)
	}
}

func setupRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/token", middleware.RateLimit("token")(http.HandlerFunc(handlers.HandleToken))).Methods("POST")
	r.HandleFunc("/ws", handlers.HandleWebSocket)
	return r
}
