package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/storage"
	"github.com/starford/izy/internal/workspace"
)

// kindInvalid marks request validation failures.
const kindInvalid = "invalid"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError renders err as {error, kind} with a matching status code.
func writeError(w http.ResponseWriter, op string, err error) {
	var verr validation.Errors
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: verr.Error(), Kind: kindInvalid})
		return
	case errors.Is(err, workspace.ErrEmptyDraft), errors.Is(err, storage.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error(), Kind: kindInvalid})
		return
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		return
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	status := remoteStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	slog.Warn(op+" failed", slog.String("error", err.Error()))
	n := apperr.Describe(err)
	writeJSON(w, status, errResponse{Error: n.Message, Kind: n.Kind})
}

// remoteStatus maps failures of the remote path to gateway statuses.
// Anything else is an internal error.
func remoteStatus(err error) int {
	var rr *apperr.RemoteRejectedError
	switch {
	case errors.Is(err, apperr.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, apperr.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &rr),
		errors.Is(err, apperr.ErrNetworkUnreachable),
		errors.Is(err, apperr.ErrTransportFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
