package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/simple-share/pkg/simpleshare"
)

// StatusFor maps a service error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, simpleshare.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, simpleshare.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simpleshare.ErrExpired):
		return http.StatusGone
	case errors.Is(err, simpleshare.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, simpleshare.ErrKeyspaceExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, simpleshare.ErrStorageBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is what a client sees. Backend details stay in the logs.
func errorMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusNotFound:
		return "Content not found"
	case http.StatusGone:
		return "Content has expired"
	case http.StatusForbidden:
		return "Content has expired and can no longer be deleted"
	case http.StatusServiceUnavailable:
		return "No share keys available, please try again later"
	case http.StatusBadGateway:
		return "Storage backend error"
	default:
		return "Internal server error"
	}
}

func (h *ContentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSONError(w, r, status, errorMessage(status, err))
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, Response{Success: false, Error: msg})
}
