package web

// errors.go provides unified error response handling for the web layer.
//
// Errors are logged with full detail through the request-scoped logger, then
// returned to the client as the user-facing message from core.MapError, as
// JSON for API routes and as an HTML fragment otherwise.

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/JonMunkholm/wqingest/internal/core"
	"github.com/JonMunkholm/wqingest/internal/logging"
	"github.com/JonMunkholm/wqingest/internal/web/templates"
)

var (
	errInvalidLimit = errors.New("limit must be a positive integer")
	errRunNotFound  = errors.New("run not found")
)

// webMessages covers errors raised by the web layer itself.
var webMessages = map[error]core.UserMessage{
	errInvalidLimit: {
		Message: "The limit parameter is invalid.",
		Action:  "Use a positive whole number, e.g. ?limit=20.",
		Code:    "WEB001",
	},
	errRunNotFound: {
		Message: "No run with that ID is retained.",
		Action:  "Only recent runs are kept in memory; check /api/runs.",
		Code:    "WEB002",
	},
}

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg, ok := webMessages[err]
	if !ok {
		userMsg = core.MapError(err)
	}

	logging.FromContext(r.Context()).Warn("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
		return
	}
	respondErrorHTML(w, r, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorHTML renders the error fragment.
func respondErrorHTML(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}

	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
