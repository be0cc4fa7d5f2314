package handlers

import (
	"encoding/json"
	"net/http"
)

// IndexMessage is the body of GET /, used by operators to check the bridge is up.
const IndexMessage = "Twilio Media Stream Server is running!"

type IndexHandler struct{}

func (h IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": IndexMessage})
}
