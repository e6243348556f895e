package common

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/stacklok/thv-git-api/internal/gitcmd"
	"github.com/stacklok/thv-git-api/internal/pathguard"
	"github.com/stacklok/thv-git-api/internal/repository"
)

// Messages sent for classified errors. They never carry git output or paths.
const (
	MessageInvalidRequest = "invalid request"
	MessageRepoNotFound   = "repository not found"
	MessageNotFound       = "not found"
	MessageInternalError  = "Internal Server Error"
)

// StatusForError maps a service error to the HTTP status and message sent to clients
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, pathguard.ErrInvalidInput):
		return http.StatusBadRequest, MessageInvalidRequest
	case errors.Is(err, repository.ErrRepositoryNotFound):
		return http.StatusNotFound, MessageRepoNotFound
	case errors.Is(err, gitcmd.ErrNoLastElement):
		return http.StatusNotFound, MessageNotFound
	default:
		return http.StatusInternalServerError, MessageInternalError
	}
}

// WriteServiceError logs err and writes its classified response
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := StatusForError(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.DebugContext(r.Context(), "Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	WriteErrorResponse(w, message, status)
}
