package handlers

import (
	"net/http"

	"github.com/vango-go/callbridge/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mw.WriteJSONError(w, r, http.StatusNotFound, &mw.Error{
		Type:    "not_found_error",
		Message: "not found",
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow ...string) {
	for _, m := range allow {
		w.Header().Add("Allow", m)
	}
	mw.WriteJSONError(w, r, http.StatusMethodNotAllowed, &mw.Error{
		Type:    "invalid_request_error",
		Message: "method not allowed",
		Code:    "method_not_allowed",
	})
}
