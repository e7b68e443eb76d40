package handlers

import (
	"encoding/json"
	"net/http"
)

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// MethodNotAllowed backs the router's 405 handler.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "Method Not Allowed",
	})
}
